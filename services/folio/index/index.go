// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index flattens a knowledge base into an immutable document set and
// runs weighted fuzzy search over it.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/kb"
	"github.com/AleutianAI/folio/services/folio/text"
)

var tracer = otel.Tracer("folio.index")

// Candidate is a document with its match score.
type Candidate struct {
	Document kb.Document

	// Score is in [0,1]; 0 is a perfect match and lower is better.
	Score float64

	// Field is the field that produced Score.
	Field string
}

// preparedField is one weighted field of one document, pre-tokenized.
type preparedField struct {
	name   string
	weight float64
	texts  []fieldText
}

// Index is the searchable document set.
//
// # Thread Safety
//
// Immutable after Build; safe for concurrent use. A reload builds a new
// Index rather than mutating an existing one.
type Index struct {
	docs      []kb.Document
	byID      map[string]int
	prepared  [][]preparedField
	vocab     []string
	stopWords map[string]struct{}

	minSimilarity float64
	tokenFloor    float64
	builtAt       time.Time
}

// Build flattens kb into documents, one per record.
//
// # Description
//
//	List entries get ID "category-i" (i is the position in the source list)
//	and singleton objects get ID "category". Documents are numbered in
//	category file order, then record order; that number is Document.Order.
//	Each configured field is tokenized once here so Search does no
//	normalization of document text. A nil knowledge base yields an empty
//	index.
func Build(ctx context.Context, source *kb.KnowledgeBase, cfg config.MatcherConfig) *Index {
	_, span := tracer.Start(ctx, "index.Build")
	defer span.End()
	start := time.Now()

	idx := &Index{
		byID:          make(map[string]int),
		stopWords:     cfg.StopWordSet(),
		minSimilarity: cfg.MinSimilarity,
		tokenFloor:    cfg.TokenSimilarityFloor,
		builtAt:       time.Now(),
	}
	if idx.minSimilarity <= 0 {
		idx.minSimilarity = config.DefaultMinSimilarity
	}
	if idx.tokenFloor <= 0 {
		idx.tokenFloor = config.DefaultTokenSimilarityFloor
	}

	vocab := make(map[string]struct{})
	if source != nil {
		for _, cat := range source.Categories {
			kind := kb.KindForCategory(cat.Name)
			for _, rec := range cat.Records {
				id := cat.Name
				if !cat.Singleton {
					id = fmt.Sprintf("%s-%d", cat.Name, rec.Index)
				}
				if _, dup := idx.byID[id]; dup {
					slog.Warn("duplicate document id, later record not addressable by id",
						slog.String("id", id),
					)
				} else {
					idx.byID[id] = len(idx.docs)
				}

				doc := kb.Document{
					Category: cat.Name,
					ID:       id,
					Order:    len(idx.docs),
					Kind:     kind,
					Fields:   rec.Fields,
				}
				fields := idx.prepare(doc, cfg.Fields)
				for _, pf := range fields {
					for _, ft := range pf.texts {
						for _, tok := range ft.tokens {
							vocab[tok] = struct{}{}
						}
					}
				}
				idx.docs = append(idx.docs, doc)
				idx.prepared = append(idx.prepared, fields)
			}
		}
	}

	idx.vocab = make([]string, 0, len(vocab))
	for tok := range vocab {
		idx.vocab = append(idx.vocab, tok)
	}
	sort.Strings(idx.vocab)

	span.SetAttributes(
		attribute.Int("documents", len(idx.docs)),
		attribute.Int("vocabulary", len(idx.vocab)),
	)
	slog.Info("document index built",
		slog.Int("documents", len(idx.docs)),
		slog.Int("vocabulary", len(idx.vocab)),
		slog.Duration("duration", time.Since(start)),
	)
	return idx
}

// prepare tokenizes the weighted fields of doc. List fields contribute one
// text per element plus the whole list joined, so both a single element and
// a multi-element query can match.
func (idx *Index) prepare(doc kb.Document, weights []config.FieldWeight) []preparedField {
	out := make([]preparedField, 0, len(weights))
	for _, w := range weights {
		values, isList := doc.Fields.Values(w.Name)
		if len(values) == 0 {
			continue
		}
		pf := preparedField{name: w.Name, weight: w.Weight}
		for _, v := range values {
			if ft := idx.toFieldText(v); len(ft.tokens) > 0 {
				pf.texts = append(pf.texts, ft)
			}
		}
		if isList && len(values) > 1 {
			if ft := idx.toFieldText(strings.Join(values, " ")); len(ft.tokens) > 0 {
				pf.texts = append(pf.texts, ft)
			}
		}
		if len(pf.texts) > 0 {
			out = append(out, pf)
		}
	}
	return out
}

// toFieldText normalizes s, drops stop words and duplicate tokens.
func (idx *Index) toFieldText(s string) fieldText {
	tokens := text.Normalize(s)
	seen := make(map[string]struct{}, len(tokens))
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := idx.stopWords[t]; stop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		kept = append(kept, t)
	}
	return fieldText{tokens: kept, joined: strings.Join(kept, " ")}
}

// Len returns the number of documents.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.docs)
}

// Documents returns every document in build order. The slice must not be
// modified.
func (idx *Index) Documents() []kb.Document {
	if idx == nil {
		return nil
	}
	return idx.docs
}

// Get returns the document with the given ID.
func (idx *Index) Get(id string) (kb.Document, bool) {
	if idx == nil {
		return kb.Document{}, false
	}
	i, ok := idx.byID[id]
	if !ok {
		return kb.Document{}, false
	}
	return idx.docs[i], true
}

// ByCategory returns the documents of one category in build order.
// An empty category returns every document.
func (idx *Index) ByCategory(category string) []kb.Document {
	if idx == nil {
		return nil
	}
	if category == "" {
		return idx.docs
	}
	var out []kb.Document
	for _, d := range idx.docs {
		if strings.EqualFold(d.Category, category) {
			out = append(out, d)
		}
	}
	return out
}

// Categories returns the distinct category names in build order.
func (idx *Index) Categories() []string {
	if idx == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, d := range idx.docs {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	return out
}

// BuiltAt reports when the index was built.
func (idx *Index) BuiltAt() time.Time {
	if idx == nil {
		return time.Time{}
	}
	return idx.builtAt
}
