// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"math"
	"testing"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/kb"
)

func testKB() *kb.KnowledgeBase {
	return &kb.KnowledgeBase{Categories: []kb.Category{
		{Name: "projects", Records: []kb.Record{
			{Index: 0, Fields: kb.Fields{
				Name:         "Orbit Tracker",
				Description:  "Tracks satellites in real time on a globe",
				Technologies: []string{"MongoDB", "Express", "React", "Node.js"},
			}},
			{Index: 1, Fields: kb.Fields{
				Name:         "Ledger Sync",
				Description:  "Reconciles bank statements",
				Technologies: []string{"Go", "PostgreSQL"},
			}},
			{Index: 2, Fields: kb.Fields{
				Name:         "Recipe Box",
				Technologies: []string{"React", "Firebase"},
			}},
		}},
		{Name: "experiences", Records: []kb.Record{
			{Index: 0, Fields: kb.Fields{
				Title:        "Backend Engineer",
				CompanyName:  "Acme",
				SkillsGained: []string{"Kafka", "distributed tracing"},
			}},
		}},
		{Name: "about", Singleton: true, Records: []kb.Record{
			{Index: 0, Fields: kb.Fields{Name: "Jane Doe", Headline: "Full-stack developer"}},
		}},
	}}
}

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	return Build(context.Background(), testKB(), config.DefaultMatcherConfig())
}

func TestBuild_IDsAndOrder(t *testing.T) {
	idx := buildTestIndex(t)

	if idx.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", idx.Len())
	}
	wantIDs := []string{"projects-0", "projects-1", "projects-2", "experiences-0", "about"}
	for i, d := range idx.Documents() {
		if d.ID != wantIDs[i] {
			t.Errorf("doc %d ID = %q, want %q", i, d.ID, wantIDs[i])
		}
		if d.Order != i {
			t.Errorf("doc %s Order = %d, want %d", d.ID, d.Order, i)
		}
	}

	doc, ok := idx.Get("experiences-0")
	if !ok || doc.Kind != kb.KindExperience {
		t.Errorf("Get(experiences-0) = %+v, %v", doc, ok)
	}
	if got := len(idx.ByCategory("projects")); got != 3 {
		t.Errorf("ByCategory(projects) = %d docs, want 3", got)
	}
	if got := idx.Categories(); len(got) != 3 || got[0] != "projects" || got[2] != "about" {
		t.Errorf("Categories() = %v", got)
	}
}

func TestBuild_EmptyKnowledgeBase(t *testing.T) {
	for name, source := range map[string]*kb.KnowledgeBase{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			idx := Build(context.Background(), source, config.DefaultMatcherConfig())
			if idx.Len() != 0 {
				t.Fatalf("Len() = %d, want 0", idx.Len())
			}
			for _, q := range []string{"react", "Orbit Tracker", "hello world", ""} {
				got, err := idx.Search(context.Background(), q)
				if err != nil {
					t.Fatalf("Search(%q) error: %v", q, err)
				}
				if len(got) != 0 {
					t.Errorf("Search(%q) = %d candidates, want 0", q, len(got))
				}
			}
		})
	}
}

func TestSearch_ExactNameScoresZero(t *testing.T) {
	idx := buildTestIndex(t)

	for _, q := range []string{"Orbit Tracker", "orbit tracker", "ORBIT TRACKER!"} {
		got, err := idx.Search(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) == 0 {
			t.Fatalf("Search(%q) returned no candidates", q)
		}
		if got[0].Document.ID != "projects-0" || got[0].Score != 0 {
			t.Errorf("Search(%q) top = %s score %v, want projects-0 score 0", q, got[0].Document.ID, got[0].Score)
		}
		if got[0].Field != "name" {
			t.Errorf("Search(%q) best field = %q, want name", q, got[0].Field)
		}
	}
}

func TestSearch_ExpansionKeepsExactMatch(t *testing.T) {
	source := &kb.KnowledgeBase{Categories: []kb.Category{
		{Name: "projects", Records: []kb.Record{
			{Index: 0, Fields: kb.Fields{Name: "Portfolio App", Description: "A home for my projects"}},
			{Index: 1, Fields: kb.Fields{Name: "Projects Board", Description: "Kanban for projects"}},
		}},
	}}
	idx := Build(context.Background(), source, config.DefaultMatcherConfig())

	got, err := idx.Search(context.Background(), "Portfolio App", "projects")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("Search returned no candidates")
	}
	if got[0].Document.ID != "projects-0" || got[0].Score != 0 || got[0].Field != "name" {
		t.Errorf("top = %s score %v field %q, want projects-0 score 0 on name", got[0].Document.ID, got[0].Score, got[0].Field)
	}

	// Expansion terms still count toward coverage.
	got, err = idx.Search(context.Background(), "zzzz", "projects")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Error("expansion term alone should find candidates")
	}
}

func TestSearch_SortedAndBounded(t *testing.T) {
	idx := buildTestIndex(t)

	queries := []string{
		"react", "react projects", "mongo", "backend", "tracking satellites",
		"kafka tracing", "jane", "postgres bank", "recipe", "node express",
	}
	for _, q := range queries {
		got, err := idx.Search(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		for i, c := range got {
			if c.Score < 0 || c.Score > 1 || math.IsNaN(c.Score) {
				t.Errorf("Search(%q)[%d] score %v outside [0,1]", q, i, c.Score)
			}
			if i == 0 {
				continue
			}
			prev := got[i-1]
			if c.Score < prev.Score {
				t.Errorf("Search(%q) not ascending at %d: %v < %v", q, i, c.Score, prev.Score)
			}
			if c.Score == prev.Score && c.Document.Order < prev.Document.Order {
				t.Errorf("Search(%q) tie at %d not in build order", q, i)
			}
		}
	}
}

func TestSearch_TiesBrokenByBuildOrder(t *testing.T) {
	idx := buildTestIndex(t)

	got, err := idx.Search(context.Background(), "react")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) < 2 {
		t.Fatalf("want at least two react projects, got %d", len(got))
	}
	if got[0].Document.ID != "projects-0" || got[1].Document.ID != "projects-2" {
		t.Errorf("order = %s, %s; want projects-0, projects-2", got[0].Document.ID, got[1].Document.ID)
	}
	if got[0].Score != 0 || got[1].Score != 0 {
		t.Errorf("exact technology element should score 0, got %v and %v", got[0].Score, got[1].Score)
	}
}

func TestSearch_ToleratesMisspelling(t *testing.T) {
	idx := buildTestIndex(t)

	got, err := idx.Search(context.Background(), "orbt trackr")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].Document.ID != "projects-0" {
		t.Fatalf("misspelled name should still find projects-0, got %+v", got)
	}
	if got[0].Score <= 0 {
		t.Errorf("misspelling should not score a perfect 0, got %v", got[0].Score)
	}
}

func TestSearch_PartialTokenOverlap(t *testing.T) {
	idx := buildTestIndex(t)

	got, err := idx.Search(context.Background(), "mongo")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].Document.ID != "projects-0" {
		t.Fatalf("prefix of MongoDB should match projects-0, got %+v", got)
	}
}

func TestSearch_UnrelatedQueryExcludesEverything(t *testing.T) {
	idx := buildTestIndex(t)

	for _, q := range []string{"zzzz qqqq", "the of and", "xylophone"} {
		got, err := idx.Search(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("Search(%q) = %d candidates, want none", q, len(got))
		}
	}
}

func TestSearch_CaseInsensitive(t *testing.T) {
	idx := buildTestIndex(t)

	lower, _ := idx.Search(context.Background(), "ledger sync")
	upper, _ := idx.Search(context.Background(), "LEDGER SYNC")
	if len(lower) == 0 || len(lower) != len(upper) {
		t.Fatalf("case changed results: %d vs %d", len(lower), len(upper))
	}
	for i := range lower {
		if lower[i].Document.ID != upper[i].Document.ID || lower[i].Score != upper[i].Score {
			t.Errorf("result %d differs by case", i)
		}
	}
}

func TestSearch_CancelledContext(t *testing.T) {
	idx := buildTestIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Search(ctx, "react"); err == nil {
		t.Error("expected context error")
	}
}

func TestTokenSimilarity(t *testing.T) {
	const floor = 0.5
	tests := []struct {
		a, b     string
		min, max float64
	}{
		{"react", "react", 1, 1},
		{"mongo", "mongodb", 0.9, 0.95},
		{"gres", "postgres", 0.5, 0.7},
		{"trackr", "tracker", 0.7, 0.95},
		{"go", "golang", 0, 0},
		{"abc", "xyz", 0, 0},
		{"a", "b", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			got := tokenSimilarity(tt.a, tt.b, floor)
			if got < tt.min || got > tt.max {
				t.Errorf("tokenSimilarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
			if rev := tokenSimilarity(tt.b, tt.a, floor); rev != got {
				t.Errorf("not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestWeighted(t *testing.T) {
	if weighted(0, 0.6) != 0 || weighted(1, 0.6) != 1 {
		t.Error("0 and 1 must be fixed points")
	}
	if !(weighted(0.5, 0.9) < weighted(0.5, 0.6)) {
		t.Error("heavier field should score lower for the same raw score")
	}
}
