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
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// SynonymEntry is one canonical term and the phrasings that expand into it.
type SynonymEntry struct {
	Canonical string
	Synonyms  []string
}

// SynonymTable maps canonical terms to their synonyms.
//
// Unlike a plain map, the table keeps the document order of the YAML file.
// That order is the enumeration order used when canonical terms are appended
// to an expanded query, so it must be stable across runs.
//
// # Thread Safety
//
// Immutable after load; safe for concurrent use.
type SynonymTable struct {
	entries []SynonymEntry
}

// NewSynonymTable builds a table from entries in the given order.
// Canonical terms must be unique and every entry needs at least one synonym.
func NewSynonymTable(entries []SynonymEntry) (*SynonymTable, error) {
	t := &SynonymTable{entries: make([]SynonymEntry, 0, len(entries))}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		canonical := strings.TrimSpace(e.Canonical)
		if canonical == "" {
			return nil, fmt.Errorf("synonym entry %d: canonical term must not be empty", i)
		}
		key := strings.ToLower(canonical)
		if seen[key] {
			return nil, fmt.Errorf("synonym entry %d: duplicate canonical term %q", i, canonical)
		}
		seen[key] = true
		if len(e.Synonyms) == 0 {
			return nil, fmt.Errorf("synonym entry %q: synonym list must not be empty", canonical)
		}
		t.entries = append(t.entries, SynonymEntry{
			Canonical: canonical,
			Synonyms:  append([]string(nil), e.Synonyms...),
		})
	}
	return t, nil
}

// Entries returns the entries in enumeration order. The returned slice must
// not be modified.
func (t *SynonymTable) Entries() []SynonymEntry {
	if t == nil {
		return nil
	}
	return t.entries
}

// Len returns the number of canonical terms.
func (t *SynonymTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// UnmarshalYAML decodes a YAML mapping of canonical term to synonym list
// while preserving key order.
func (t *SynonymTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: synonyms must be a mapping, got %s", node.Line, kindName(node.Kind))
	}
	entries := make([]SynonymEntry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var synonyms []string
		if err := valueNode.Decode(&synonyms); err != nil {
			return fmt.Errorf("line %d: synonyms for %q: %w", valueNode.Line, keyNode.Value, err)
		}
		entries = append(entries, SynonymEntry{Canonical: keyNode.Value, Synonyms: synonyms})
	}
	built, err := NewSynonymTable(entries)
	if err != nil {
		return err
	}
	*t = *built
	return nil
}

var (
	cachedSynonyms *SynonymTable
	synonymsOnce   sync.Once
	synonymsErr    error
)

// LoadSynonyms parses a synonym table from YAML bytes.
//
// # Description
//
//	The YAML format is a mapping of canonical term to a list of synonyms.
//	Key order in the file becomes the table's enumeration order.
//
// # Outputs
//
//   - *SynonymTable: Never nil on success.
//   - error: Non-nil if the YAML is empty, oversized, malformed, or has
//     duplicate/empty entries.
func LoadSynonyms(ctx context.Context, data []byte) (*SynonymTable, error) {
	_, span := configTracer.Start(ctx, "config.LoadSynonyms")
	defer span.End()

	if err := checkSize(data); err != nil {
		return nil, fmt.Errorf("LoadSynonyms: %w", err)
	}

	var table SynonymTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("LoadSynonyms: parsing YAML: %w", err)
	}

	span.SetAttributes(attribute.Int("canonical_terms", table.Len()))
	slog.Info("synonym table loaded", slog.Int("canonical_terms", table.Len()))
	return &table, nil
}

// DefaultSynonyms returns the embedded synonym table, parsed once and cached.
func DefaultSynonyms() (*SynonymTable, error) {
	synonymsOnce.Do(func() {
		cachedSynonyms, synonymsErr = LoadSynonyms(context.Background(), defaultSynonymsYAML)
	})
	return cachedSynonyms, synonymsErr
}

// MustDefaultSynonyms returns the embedded synonym table or an empty table on
// error. Expansion then becomes a no-op rather than stopping the engine.
func MustDefaultSynonyms() *SynonymTable {
	table, err := DefaultSynonyms()
	if err != nil {
		slog.Warn("synonym table failed to load, continuing without expansion",
			slog.String("error", err.Error()),
		)
		return &SynonymTable{}
	}
	return table
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
