// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Search scores every document against query and returns the candidates
// sorted ascending by score, ties broken by build order.
//
// # Description
//
//	expansion holds extra terms (canonical synonyms) that count toward
//	coverage like query tokens. The exact-match rule, which scores a field 0,
//	compares the field with query alone, so expansion never costs an exact
//	name its perfect score.
//
//	The query is normalized, stripped of stop words and deduplicated. Tokens
//	that resemble nothing in the index vocabulary are dropped so that filler
//	words do not dilute coverage. Each configured field is scored on its
//	own and weighted; a document's score is its best (lowest) weighted field
//	score. Documents with no field at least MinSimilarity similar are
//	excluded. An empty index, or a query left with no tokens, returns no
//	candidates.
//
// # Outputs
//
//   - []Candidate: Possibly empty, never containing a score outside [0,1].
//   - error: Only ctx.Err() when the context is already done.
func (idx *Index) Search(ctx context.Context, query string, expansion ...string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := tracer.Start(ctx, "index.Search")
	defer span.End()

	if idx.Len() == 0 {
		span.SetAttributes(attribute.Int("candidates", 0))
		return nil, nil
	}

	q := idx.queryText(query, expansion)
	span.SetAttributes(
		attribute.Int("query_tokens", len(q.tokens)),
		attribute.Int("expansion_terms", len(expansion)),
	)
	if len(q.tokens) == 0 {
		span.SetAttributes(attribute.Int("candidates", 0))
		return nil, nil
	}

	maxRaw := 1 - idx.minSimilarity
	var out []Candidate
	for i, fields := range idx.prepared {
		bestScore, bestField := 1.0, ""
		admitted := false
		for _, pf := range fields {
			raw := 1.0
			for _, ft := range pf.texts {
				if r := rawFieldScore(q, ft, idx.tokenFloor); r < raw {
					raw = r
				}
			}
			if raw <= maxRaw {
				admitted = true
			}
			if w := weighted(raw, pf.weight); w < bestScore || bestField == "" {
				bestScore, bestField = w, pf.name
			}
		}
		if !admitted {
			continue
		}
		out = append(out, Candidate{Document: idx.docs[i], Score: bestScore, Field: bestField})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score < out[b].Score
		}
		return out[a].Document.Order < out[b].Document.Order
	})

	span.SetAttributes(attribute.Int("candidates", len(out)))
	if len(out) > 0 {
		span.SetAttributes(attribute.Float64("best_score", out[0].Score))
	}
	return out, nil
}

// queryText prepares the query: normalized, stop-word-free, deduplicated and
// limited to tokens with some similarity to the index vocabulary. Expansion
// terms join the scored tokens but not the exact-match text.
func (idx *Index) queryText(query string, expansion []string) queryText {
	original := idx.vocabularyTokens(idx.toFieldText(query).tokens)
	full := original
	if len(expansion) > 0 {
		full = idx.vocabularyTokens(idx.toFieldText(query + " " + strings.Join(expansion, " ")).tokens)
	}
	return queryText{
		fieldText: fieldText{tokens: full, joined: strings.Join(full, " ")},
		exact:     strings.Join(original, " "),
	}
}

func (idx *Index) vocabularyTokens(tokens []string) []string {
	kept := tokens[:0:0]
	for _, t := range tokens {
		if idx.inVocabulary(t) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (idx *Index) inVocabulary(token string) bool {
	i := sort.SearchStrings(idx.vocab, token)
	if i < len(idx.vocab) && idx.vocab[i] == token {
		return true
	}
	for _, v := range idx.vocab {
		if tokenSimilarity(token, v, idx.tokenFloor) > 0 {
			return true
		}
	}
	return false
}
