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

//go:embed shortcuts.yaml
var defaultShortcutsYAML []byte

// Shortcut maps canonical phrasings to a deterministic document filter.
//
// Description:
//
//	When the normalized query equals one of Phrases (optionally after stop
//	words are removed from both sides) the engine skips fuzzy matching and
//	lists every document that passes the filter: documents of Category whose
//	Field contains an element with a token starting with one of Prefixes.
//	An empty Field selects every document of the category.
type Shortcut struct {
	// Name identifies the rule in logs and metrics.
	Name string `yaml:"name" validate:"required"`

	// Phrases are canonical phrasings of the question.
	Phrases []string `yaml:"phrases" validate:"required,min=1,dive,required"`

	// Category restricts the filter to one knowledge-base category. Empty means all.
	Category string `yaml:"category"`

	// Field is the document field inspected by the filter.
	Field string `yaml:"field" validate:"omitempty,oneof=technologies skills skillsGained problemsSolved lessonsGained"`

	// Prefixes are lowercase token prefixes; any match selects the document.
	Prefixes []string `yaml:"prefixes" validate:"required_with=Field,dive,required"`

	// Answer is a text/template rendered with .Names (joined) and .Count.
	Answer string `yaml:"answer" validate:"required"`

	// FollowUp is a text/template rendered with .First, the first match's name.
	FollowUp string `yaml:"follow_up" validate:"required"`
}

// ShortcutConfig is the closed table of canonical shortcuts, checked in order.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type ShortcutConfig struct {
	Shortcuts []Shortcut `yaml:"shortcuts" validate:"dive"`
}

// LoadShortcuts parses and validates the shortcut table from YAML bytes.
//
// Description:
//
//	Prefixes are lowercased on load. Rule names must be unique so that
//	metrics labelled by rule stay unambiguous.
func LoadShortcuts(ctx context.Context, data []byte) (*ShortcutConfig, error) {
	_, span := configTracer.Start(ctx, "config.LoadShortcuts")
	defer span.End()

	if err := checkSize(data); err != nil {
		return nil, fmt.Errorf("LoadShortcuts: %w", err)
	}

	var cfg ShortcutConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadShortcuts: parsing YAML: %w", err)
	}

	for i := range cfg.Shortcuts {
		for j, p := range cfg.Shortcuts[i].Prefixes {
			cfg.Shortcuts[i].Prefixes[j] = strings.ToLower(strings.TrimSpace(p))
		}
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("LoadShortcuts: validation: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Shortcuts))
	for i, s := range cfg.Shortcuts {
		if seen[s.Name] {
			return nil, fmt.Errorf("LoadShortcuts: shortcut[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}

	span.SetAttributes(attribute.Int("shortcuts", len(cfg.Shortcuts)))
	slog.Info("shortcut table loaded", slog.Int("shortcuts", len(cfg.Shortcuts)))
	return &cfg, nil
}
