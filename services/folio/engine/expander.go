// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"strings"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/text"
)

type expansionEntry struct {
	canonical       string
	canonicalTokens []string
	synonyms        [][]string
}

// Expander appends canonical terms for synonyms found in a query.
//
// # Description
//
//	Expansion is additive only: the original text is kept verbatim and
//	canonical terms are appended after it, space separated, in synonym table
//	order. A synonym matches when its normalized tokens occur as a contiguous
//	run of query tokens. A canonical term already present in the query is
//	not appended, and the tokens of every matched canonical term count as
//	query tokens for the other entries until nothing new matches. Together
//	these make Expand idempotent.
//
// # Thread Safety
//
//	Immutable after construction; safe for concurrent use.
type Expander struct {
	entries []expansionEntry
}

// NewExpander builds an expander over table. A nil or empty table yields an
// expander that returns queries unchanged.
func NewExpander(table *config.SynonymTable) *Expander {
	e := &Expander{}
	for _, entry := range table.Entries() {
		canonical := text.Normalize(entry.Canonical)
		if len(canonical) == 0 {
			continue
		}
		ee := expansionEntry{canonical: strings.Join(canonical, " "), canonicalTokens: canonical}
		for _, s := range entry.Synonyms {
			if toks := text.Normalize(s); len(toks) > 0 {
				ee.synonyms = append(ee.synonyms, toks)
			}
		}
		e.entries = append(e.entries, ee)
	}
	return e
}

// Terms returns the canonical terms Expand would append to query, in table
// order.
func (e *Expander) Terms(query string) []string {
	original := text.Normalize(query)
	if len(original) == 0 || len(e.entries) == 0 {
		return nil
	}

	tokens := append([]string(nil), original...)
	matched := make([]bool, len(e.entries))
	for changed := true; changed; {
		changed = false
		for i, entry := range e.entries {
			if matched[i] || !entry.matches(tokens) {
				continue
			}
			matched[i] = true
			changed = true
			tokens = append(tokens, entry.canonicalTokens...)
		}
	}

	var terms []string
	for i, entry := range e.entries {
		if matched[i] && !text.ContainsRun(original, entry.canonicalTokens) {
			terms = append(terms, entry.canonical)
		}
	}
	return terms
}

// Expand returns query followed by the canonical terms of every synonym it
// contains.
func (e *Expander) Expand(query string) string {
	terms := e.Terms(query)
	if len(terms) == 0 {
		return query
	}
	return query + " " + strings.Join(terms, " ")
}

// matches reports whether a synonym, or the canonical term itself, occurs
// in tokens.
func (ee expansionEntry) matches(tokens []string) bool {
	if text.ContainsRun(tokens, ee.canonicalTokens) {
		return true
	}
	for _, syn := range ee.synonyms {
		if text.ContainsRun(tokens, syn) {
			return true
		}
	}
	return false
}
