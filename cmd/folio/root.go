// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/AleutianAI/folio/services/folio"
	"github.com/AleutianAI/folio/services/folio/kb"
)

// Persistent flag values shared by every subcommand.
var (
	kbSource     string
	rulesDir     string
	logLevel     string
	gcsAnonymous bool
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Portfolio question answering",
	Long: `Folio resolves free-text questions against a portfolio knowledge base
(projects, experiences, skills, ...) with lexical fuzzy matching, synonym
expansion and short follow-up conversations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger(logLevel, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&kbSource, "kb", os.Getenv("FOLIO_KB"),
		"knowledge base: path, http(s):// URL or gs://bucket/object (env FOLIO_KB)")
	rootCmd.PersistentFlags().StringVar(&rulesDir, "rules-dir", os.Getenv("FOLIO_RULES_DIR"),
		"directory with synonyms.yaml, smalltalk.yaml, shortcuts.yaml or engine.yaml overrides (env FOLIO_RULES_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("FOLIO_LOG_LEVEL", "warn"),
		"log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&gcsAnonymous, "gcs-anonymous", os.Getenv("FOLIO_GCS_ANONYMOUS") == "true",
		"read gs:// knowledge bases without credentials (env FOLIO_GCS_ANONYMOUS)")
}

// newLogger builds the text handler used by every subcommand.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// openService builds a service for one-shot commands. A missing or broken
// knowledge base is an error here, unlike in serve.
func openService(ctx context.Context) (*folio.Service, error) {
	if kbSource == "" {
		return nil, errors.New("no knowledge base: set --kb or FOLIO_KB")
	}
	svc, err := folio.NewService(ctx, folio.ServiceConfig{
		Source:   kbSource,
		RulesDir: rulesDir,
	}, serviceOptions()...)
	if err != nil {
		return nil, err
	}
	if st := svc.Status(); !st.Ready {
		_ = svc.Close()
		if st.LastError != nil {
			return nil, fmt.Errorf("loading knowledge base: %w", st.LastError)
		}
		return nil, errors.New("knowledge base not loaded")
	}
	return svc, nil
}

func serviceOptions() []folio.ServiceOption {
	loaderOpts := []kb.LoaderOption{kb.WithLogger(slog.Default())}
	if gcsAnonymous {
		loaderOpts = append(loaderOpts, kb.WithGCSClientOptions(option.WithoutAuthentication()))
	}
	return []folio.ServiceOption{
		folio.WithServiceLogger(slog.Default()),
		folio.WithLoader(kb.NewLoader(loaderOpts...)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}
