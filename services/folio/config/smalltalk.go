// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

//go:embed smalltalk.yaml
var defaultSmallTalkYAML []byte

const (
	// DefaultSmallTalkMaxTokens is the longest query still eligible for small talk.
	DefaultSmallTalkMaxTokens = 3
)

// SmallTalkResponse maps one canonical key to the reply it triggers.
type SmallTalkResponse struct {
	Key  string `yaml:"key" validate:"required"`
	Text string `yaml:"text" validate:"required"`
}

// SmallTalkConfig is the closed small-talk vocabulary and its replies.
//
// Responses are matched in list order; the first key a token matches wins.
type SmallTalkConfig struct {
	// MaxTokens gates the classifier: longer queries never count as small talk.
	MaxTokens int `yaml:"max_tokens" validate:"gte=1"`

	// Tokens is the closed set of small-talk words.
	Tokens []string `yaml:"tokens" validate:"required,min=1,dive,required"`

	// Typos maps known misspellings to the token they stand for ("helo" ->
	// "hello"). Only listed misspellings qualify, so content words one edit
	// from a greeting ("they", "good" vs "gold") never do.
	Typos map[string]string `yaml:"typos"`

	// Responses are the canonical keys in enumeration order.
	Responses []SmallTalkResponse `yaml:"responses" validate:"required,min=1,dive"`
}

// LoadSmallTalk parses and validates small-talk configuration from YAML bytes.
// Tokens and keys are lowercased on load.
func LoadSmallTalk(ctx context.Context, data []byte) (*SmallTalkConfig, error) {
	_, span := configTracer.Start(ctx, "config.LoadSmallTalk")
	defer span.End()

	if err := checkSize(data); err != nil {
		return nil, fmt.Errorf("LoadSmallTalk: %w", err)
	}

	var cfg SmallTalkConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadSmallTalk: parsing YAML: %w", err)
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultSmallTalkMaxTokens
	}
	vocabulary := make(map[string]struct{}, len(cfg.Tokens))
	for i := range cfg.Tokens {
		cfg.Tokens[i] = strings.ToLower(strings.TrimSpace(cfg.Tokens[i]))
		vocabulary[cfg.Tokens[i]] = struct{}{}
	}
	typos := make(map[string]string, len(cfg.Typos))
	for typo, token := range cfg.Typos {
		typo, token = strings.ToLower(strings.TrimSpace(typo)), strings.ToLower(strings.TrimSpace(token))
		if _, ok := vocabulary[token]; !ok {
			return nil, fmt.Errorf("LoadSmallTalk: typo %q maps to %q, which is not a small-talk token", typo, token)
		}
		typos[typo] = token
	}
	cfg.Typos = typos
	for i := range cfg.Responses {
		cfg.Responses[i].Key = strings.ToLower(strings.TrimSpace(cfg.Responses[i].Key))
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("LoadSmallTalk: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("tokens", len(cfg.Tokens)),
		attribute.Int("typos", len(cfg.Typos)),
		attribute.Int("responses", len(cfg.Responses)),
	)
	slog.Info("small-talk table loaded",
		slog.Int("tokens", len(cfg.Tokens)),
		slog.Int("typos", len(cfg.Typos)),
		slog.Int("responses", len(cfg.Responses)),
	)
	return &cfg, nil
}
