// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the rule files that drive query resolution: the
// synonym table, the small-talk table, the canonical shortcut rules and the
// matcher/answer settings. Each file ships embedded and can be overridden
// from a rules directory on disk.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// MaxYAMLFileSize bounds every rule file read from disk or embedded.
const MaxYAMLFileSize = 1 << 20

// Rule file names looked up inside a rules directory.
const (
	SynonymsFile  = "synonyms.yaml"
	SmallTalkFile = "smalltalk.yaml"
	ShortcutsFile = "shortcuts.yaml"
	EngineFile    = "engine.yaml"
)

var configTracer = otel.Tracer("folio.config")

// validate is shared by every loader. Safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// errEmptyYAML is returned by loaders handed zero bytes.
var errEmptyYAML = errors.New("empty YAML data")

// Rules bundles every rule file the engine needs.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Rules struct {
	Synonyms  *SynonymTable
	SmallTalk *SmallTalkConfig
	Shortcuts *ShortcutConfig
	Engine    *EngineConfig
}

// LoadRules loads all rule files.
//
// # Description
//
//	When dir is empty the embedded defaults are used. Otherwise each file is
//	read from dir if it exists there; files missing from dir fall back to the
//	embedded default so a directory may override only what it needs.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - dir: Rules directory, or "" for embedded defaults.
//
// # Outputs
//
//   - *Rules: Fully populated on success.
//   - error: Non-nil if any present file fails to parse or validate.
func LoadRules(ctx context.Context, dir string) (*Rules, error) {
	ctx, span := configTracer.Start(ctx, "config.LoadRules")
	defer span.End()
	span.SetAttributes(attribute.String("dir", dir))

	synData, err := ruleBytes(dir, SynonymsFile, defaultSynonymsYAML)
	if err != nil {
		return nil, err
	}
	smallTalkData, err := ruleBytes(dir, SmallTalkFile, defaultSmallTalkYAML)
	if err != nil {
		return nil, err
	}
	shortcutData, err := ruleBytes(dir, ShortcutsFile, defaultShortcutsYAML)
	if err != nil {
		return nil, err
	}
	engineData, err := ruleBytes(dir, EngineFile, defaultEngineYAML)
	if err != nil {
		return nil, err
	}

	rules := &Rules{}
	if rules.Synonyms, err = LoadSynonyms(ctx, synData); err != nil {
		return nil, err
	}
	if rules.SmallTalk, err = LoadSmallTalk(ctx, smallTalkData); err != nil {
		return nil, err
	}
	if rules.Shortcuts, err = LoadShortcuts(ctx, shortcutData); err != nil {
		return nil, err
	}
	if rules.Engine, err = LoadEngineConfig(ctx, engineData); err != nil {
		return nil, err
	}
	return rules, nil
}

// MustLoadRules loads rules from dir and falls back to the embedded defaults
// when dir cannot be loaded. It panics only if the embedded defaults are
// themselves broken, which the package tests guard against.
func MustLoadRules(ctx context.Context, dir string) *Rules {
	rules, err := LoadRules(ctx, dir)
	if err == nil {
		return rules
	}
	slog.Warn("rules directory failed to load, using embedded defaults",
		slog.String("dir", dir),
		slog.String("error", err.Error()),
	)
	rules, err = LoadRules(ctx, "")
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return rules
}

// ruleBytes returns the contents of dir/name, or fallback when dir is empty
// or the file does not exist.
func ruleBytes(dir, name string, fallback []byte) ([]byte, error) {
	if dir == "" {
		return fallback, nil
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("%s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// checkSize applies the shared size and emptiness limits.
func checkSize(data []byte) error {
	if len(data) == 0 {
		return errEmptyYAML
	}
	if len(data) > MaxYAMLFileSize {
		return fmt.Errorf("YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}
	return nil
}
