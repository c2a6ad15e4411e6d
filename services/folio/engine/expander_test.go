// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/folio/services/folio/config"
)

func testExpander(t *testing.T) *Expander {
	t.Helper()
	table, err := config.NewSynonymTable([]config.SynonymEntry{
		{Canonical: "mongodb", Synonyms: []string{"mongo", "mern", "nosql"}},
		{Canonical: "react", Synonyms: []string{"reactjs", "mern", "jsx"}},
		{Canonical: "machine learning", Synonyms: []string{"ml", "deep learning"}},
		{Canonical: "node", Synonyms: []string{"nodejs", "node js"}},
	})
	require.NoError(t, err)
	return NewExpander(table)
}

func TestExpander_Expand(t *testing.T) {
	e := testExpander(t)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "no synonyms", query: "tell me about golang", want: "tell me about golang"},
		{name: "single synonym keeps original case", query: "Which projects used MERN?", want: "Which projects used MERN? mongodb react"},
		{name: "multi-word synonym", query: "any Deep Learning work", want: "any Deep Learning work machine learning"},
		{name: "synonym for single-token canonical", query: "built with nodejs", want: "built with nodejs node"},
		{name: "canonical present after punctuation split", query: "built with Node.js", want: "built with Node.js"},
		{name: "canonical already present", query: "mongodb and mongo", want: "mongodb and mongo"},
		{name: "partial token is not a match", query: "mongoose models", want: "mongoose models"},
		{name: "table order not query order", query: "jsx and nosql", want: "jsx and nosql mongodb react"},
		{name: "empty", query: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Expand(tt.query))
		})
	}
}

func TestExpander_Idempotent(t *testing.T) {
	e := testExpander(t)

	for _, q := range []string{
		"which projects used mern stack",
		"ml with nodejs",
		"mongo react node ml",
		"nothing to see",
	} {
		once := e.Expand(q)
		twice := e.Expand(once)
		assert.Equal(t, once, twice, "Expand should add nothing the second time for %q", q)
	}
}

func TestExpander_ChainedCanonicalTerms(t *testing.T) {
	table, err := config.NewSynonymTable([]config.SynonymEntry{
		{Canonical: "backend", Synonyms: []string{"api"}},
		{Canonical: "api", Synonyms: []string{"rest"}},
	})
	require.NoError(t, err)
	e := NewExpander(table)

	// "rest" adds "api", which in turn adds "backend". Appended terms keep
	// table order.
	got := e.Expand("rest services")
	assert.Equal(t, "rest services backend api", got)
	assert.Equal(t, got, e.Expand(got))
}

func TestExpander_EmbeddedTableIdempotent(t *testing.T) {
	e := NewExpander(config.MustDefaultSynonyms())
	for _, q := range []string{
		"which projects used mern stack?",
		"golang gopher projects",
		"show me your ML and AI work",
		"where did you study",
	} {
		once := e.Expand(q)
		assert.Equal(t, once, e.Expand(once), q)
	}
}

func TestExpander_NilTable(t *testing.T) {
	e := NewExpander(nil)
	assert.Equal(t, "hello", e.Expand("hello"))
	assert.Nil(t, e.Terms("hello"))
}
