// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/index"
	"github.com/AleutianAI/folio/services/folio/kb"
)

// =============================================================================
// Fixtures
// =============================================================================

func testKnowledgeBase() *kb.KnowledgeBase {
	return &kb.KnowledgeBase{Categories: []kb.Category{
		{Name: "projects", Records: []kb.Record{
			{Index: 0, Fields: kb.Fields{
				Name:         "Orbit Tracker",
				Description:  "Tracks satellites in real time on a globe",
				Technologies: []string{"MongoDB", "Express", "React", "Node.js"},
				SourceLink:   "https://example.com/orbit",
				Performance:  "Serves ten thousand position updates per second",
			}},
			{Index: 1, Fields: kb.Fields{
				Name:         "Ledger Sync",
				Description:  "Reconciles bank statements",
				Technologies: []string{"Go", "PostgreSQL"},
			}},
		}},
		{Name: "experiences", Records: []kb.Record{
			{Index: 0, Fields: kb.Fields{
				Title:        "Platform Engineer",
				CompanyName:  "Acme",
				SkillsGained: []string{"Kafka", "distributed tracing"},
			}},
		}},
		{Name: "about", Singleton: true, Records: []kb.Record{
			{Index: 0, Fields: kb.Fields{Name: "Jane Doe", Headline: "Full-stack developer"}},
		}},
	}}
}

func loadRules(t *testing.T) *config.Rules {
	t.Helper()
	rules, err := config.LoadRules(context.Background(), "")
	require.NoError(t, err)
	return rules
}

func newTestEngine(t *testing.T) (*Engine, *config.Rules) {
	t.Helper()
	rules := loadRules(t)
	e, err := New(rules)
	require.NoError(t, err)
	e.SetIndex(index.Build(context.Background(), testKnowledgeBase(), rules.Engine.Matcher))
	return e, rules
}

// stubSearcher returns fixed candidates regardless of the query.
type stubSearcher struct {
	candidates []index.Candidate
	docs       []kb.Document
}

func newStubSearcher(scores ...float64) *stubSearcher {
	s := &stubSearcher{}
	for i, score := range scores {
		doc := kb.Document{
			Category: "projects",
			ID:       "projects-" + string(rune('0'+i)),
			Order:    i,
			Kind:     kb.KindProject,
			Fields:   kb.Fields{Name: "Project " + string(rune('A'+i))},
		}
		s.docs = append(s.docs, doc)
		s.candidates = append(s.candidates, index.Candidate{Document: doc, Score: score, Field: "name"})
	}
	return s
}

func (s *stubSearcher) Search(context.Context, string, ...string) ([]index.Candidate, error) {
	return append([]index.Candidate(nil), s.candidates...), nil
}
func (s *stubSearcher) Documents() []kb.Document { return s.docs }
func (s *stubSearcher) ByCategory(string) []kb.Document {
	return nil
}
func (s *stubSearcher) Get(id string) (kb.Document, bool) {
	for _, d := range s.docs {
		if d.ID == id {
			return d, true
		}
	}
	return kb.Document{}, false
}

func docIDs(docs []kb.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

// =============================================================================
// End-to-end scenarios
// =============================================================================

func TestResolve_SmallTalkGreeting(t *testing.T) {
	e, rules := newTestEngine(t)

	res, err := e.Resolve(context.Background(), "hi", Conversation{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSmallTalk, res.Outcome)
	assert.Equal(t, rules.SmallTalk.Responses[0].Text, res.Text)
	assert.Empty(t, res.FollowUps)
	assert.Empty(t, res.Conversation.PendingFollowUps)
}

func TestResolve_MernShortcut(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Resolve(context.Background(), "which projects used mern stack?", Conversation{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeShortcut, res.Outcome)
	assert.Equal(t, "mern_projects", res.Rule)
	assert.Contains(t, res.Text, "Orbit Tracker")
	assert.NotContains(t, res.Text, "Ledger Sync")
	require.Len(t, res.FollowUps, 1)
	assert.Contains(t, res.FollowUps[0], "Orbit Tracker")
	assert.Equal(t, res.FollowUps, res.Conversation.PendingFollowUps)
	assert.Nil(t, res.Conversation.LastTopic, "shortcut answers do not set a topic")
}

func TestResolve_ExactNameIsConfident(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Resolve(context.Background(), "Orbit Tracker", Conversation{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeConfident, res.Outcome)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, 0.0, res.Candidates[0].Score)

	topic := res.Conversation.LastTopic
	require.NotNil(t, topic)
	assert.Equal(t, "projects", topic.Category)
	assert.Equal(t, "projects-0", topic.Document.ID)

	assert.True(t, strings.HasPrefix(res.Text, "Orbit Tracker\n"))
	assert.Contains(t, res.Text, "MongoDB, Express, React, Node.js")
	assert.Contains(t, res.Text, "https://example.com/orbit")
	assert.Len(t, res.FollowUps, 2)
	assert.Equal(t, res.FollowUps, res.Conversation.PendingFollowUps)
	assert.Zero(t, res.Conversation.FollowUpCursor)
}

func TestResolve_ExactNameScoresZeroDespiteExpansion(t *testing.T) {
	rules := loadRules(t)
	e, err := New(rules)
	require.NoError(t, err)
	e.SetIndex(index.Build(context.Background(), &kb.KnowledgeBase{Categories: []kb.Category{
		{Name: "projects", Records: []kb.Record{
			{Index: 0, Fields: kb.Fields{Name: "Portfolio App", Description: "A home for my projects"}},
			{Index: 1, Fields: kb.Fields{Name: "Recipe Box", Description: "Family recipes"}},
		}},
	}}, rules.Engine.Matcher))

	require.Contains(t, e.Expand("Portfolio App"), "projects", "name contains synonyms")

	res, err := e.Resolve(context.Background(), "Portfolio App", Conversation{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfident, res.Outcome)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, "projects-0", res.Candidates[0].Document.ID)
	assert.Equal(t, 0.0, res.Candidates[0].Score)
	assert.Equal(t, "name", res.Candidates[0].Field)
}

func TestResolve_FallbackWithThreeCandidates(t *testing.T) {
	e, _ := New(loadRules(t))
	e.SetIndex(newStubSearcher(0.5, 0.6, 0.7))

	prior := Conversation{PendingFollowUps: []string{"old prompt"}, FollowUpCursor: 1}
	res, err := e.Resolve(context.Background(), "something vague", prior)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Equal(t, []string{"projects-0", "projects-1", "projects-2"}, docIDs(res.Conversation.DidYouMean))
	assert.Empty(t, res.Conversation.PendingFollowUps, "fallback clears pending follow-ups")
	assert.Empty(t, res.FollowUps)
	assert.Contains(t, res.Text, "1. Project A")
	assert.Contains(t, res.Text, "2. Project B")
	assert.Contains(t, res.Text, "3. Project C")
	assert.Nil(t, res.Conversation.LastTopic)
}

// =============================================================================
// Properties
// =============================================================================

func TestResolve_ConfidenceBoundaryIsInclusive(t *testing.T) {
	tests := []struct {
		score float64
		want  Outcome
	}{
		{score: 0, want: OutcomeConfident},
		{score: 0.35, want: OutcomeConfident},
		{score: 0.3501, want: OutcomeFallback},
		{score: 1, want: OutcomeFallback},
	}
	for _, tt := range tests {
		e, err := New(loadRules(t))
		require.NoError(t, err)
		e.SetIndex(newStubSearcher(tt.score))

		res, err := e.Resolve(context.Background(), "anything at all", Conversation{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Outcome, "score %v", tt.score)
	}
}

func TestResolve_FallbackNeverExceedsLimit(t *testing.T) {
	for n := 1; n <= 6; n++ {
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = 0.5 + float64(i)*0.05
		}
		e, err := New(loadRules(t))
		require.NoError(t, err)
		e.SetIndex(newStubSearcher(scores...))

		res, err := e.Resolve(context.Background(), "vague", Conversation{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFallback, res.Outcome)
		assert.Len(t, res.Conversation.DidYouMean, min(3, n))
	}
}

func TestResolve_FollowUpsCycle(t *testing.T) {
	e, _ := newTestEngine(t)

	a := "Tell me more about Orbit Tracker"
	b := "Tell me more about Ledger Sync"
	conv := Conversation{PendingFollowUps: []string{a, b}}

	wantPrompts := []string{a, b, a}
	wantDocs := []string{"projects-0", "projects-1", "projects-0"}
	for i := range wantPrompts {
		res, err := e.Resolve(context.Background(), "yes", conv)
		require.NoError(t, err)
		assert.Equal(t, wantPrompts[i], res.Prompt, "affirmation %d", i+1)
		require.NotNil(t, res.Document, "affirmation %d", i+1)
		assert.Equal(t, wantDocs[i], res.Document.ID, "affirmation %d", i+1)
		assert.Equal(t, []string{a, b}, res.Conversation.PendingFollowUps, "pending kept while cycling")
		conv = res.Conversation
	}
}

func TestResolve_AffirmedPromptFallingBackClearsPending(t *testing.T) {
	e, err := New(loadRules(t))
	require.NoError(t, err)
	e.SetIndex(newStubSearcher(0.5, 0.6))

	conv := Conversation{PendingFollowUps: []string{"zzz qqq prompt", "other"}, FollowUpCursor: 0}
	res, err := e.Resolve(context.Background(), "yes", conv)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Equal(t, "zzz qqq prompt", res.Prompt)
	assert.Empty(t, res.FollowUps)
	assert.Empty(t, res.Conversation.PendingFollowUps, "suggestions wait on a choice")
	assert.Zero(t, res.Conversation.FollowUpCursor)
	assert.Len(t, res.Conversation.DidYouMean, 2)

	// The next "yes" is a fresh query, and a number still picks a suggestion.
	pick, err := e.Resolve(context.Background(), "1", res.Conversation)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSelection, pick.Outcome)
	require.NotNil(t, pick.Document)
	assert.Equal(t, "projects-0", pick.Document.ID)
}

func TestResolve_AffirmedPromptWithNoMatchTakesItsFollowUps(t *testing.T) {
	e, rules := newTestEngine(t)

	conv := Conversation{PendingFollowUps: []string{"xylophone quartet", "Tell me more about Ledger Sync"}}
	res, err := e.Resolve(context.Background(), "yes", conv)
	require.NoError(t, err)

	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.Equal(t, rules.Engine.Answers.NoMatchFollowUps, res.FollowUps)
	assert.Equal(t, res.FollowUps, res.Conversation.PendingFollowUps)
	assert.Zero(t, res.Conversation.FollowUpCursor)
}

func TestResolve_AffirmationVariants(t *testing.T) {
	e, _ := newTestEngine(t)
	conv := Conversation{PendingFollowUps: []string{"Tell me more about Ledger Sync"}}

	for _, reply := range []string{"yes", "Y", "more", "please", "Tell me more!", "yes please"} {
		res, err := e.Resolve(context.Background(), reply, conv)
		require.NoError(t, err)
		assert.Equal(t, "Tell me more about Ledger Sync", res.Prompt, reply)
	}
}

func TestResolve_PerformanceFollowUpUsesLastTopic(t *testing.T) {
	e, rules := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Resolve(ctx, "Orbit Tracker", Conversation{})
	require.NoError(t, err)
	require.Contains(t, first.FollowUps[0], "performance")

	res, err := e.Resolve(ctx, "yes", first.Conversation)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFollowUp, res.Outcome)
	assert.Contains(t, res.Text, "ten thousand position updates")
	assert.Empty(t, res.Candidates, "performance follow-ups bypass the matcher")
	assert.Equal(t, 1, res.Conversation.FollowUpCursor)

	// A topic without performance data falls back to the generic statement.
	ledger, err := e.Resolve(ctx, "Ledger Sync", Conversation{})
	require.NoError(t, err)
	res, err = e.Resolve(ctx, "yes", ledger.Conversation)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFollowUp, res.Outcome)
	assert.Equal(t, rules.Engine.FollowUps.GenericPerformance, res.Text)
}

func TestResolve_AffirmationWithoutPendingIsAQuery(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.Resolve(context.Background(), "yes", Conversation{})
	require.NoError(t, err)
	assert.NotEqual(t, OutcomeFollowUp, res.Outcome)
	assert.Empty(t, res.Prompt)
}

func TestResolve_NewQueryReplacesPending(t *testing.T) {
	e, _ := newTestEngine(t)

	conv := Conversation{PendingFollowUps: []string{"x", "y"}, FollowUpCursor: 1}
	res, err := e.Resolve(context.Background(), "Ledger Sync", conv)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfident, res.Outcome)
	assert.Equal(t, res.FollowUps, res.Conversation.PendingFollowUps)
	assert.Zero(t, res.Conversation.FollowUpCursor)
}

func TestResolve_NoMatch(t *testing.T) {
	e, rules := newTestEngine(t)

	res, err := e.Resolve(context.Background(), "xylophone quartet", Conversation{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.Contains(t, res.Text, "xylophone quartet")
	assert.Equal(t, rules.Engine.Answers.NoMatchFollowUps, res.FollowUps)
	assert.Len(t, res.FollowUps, 2)
}

func TestResolve_EmptyIndexAlwaysNoMatch(t *testing.T) {
	rules := loadRules(t)
	e, err := New(rules)
	require.NoError(t, err)
	e.SetIndex(index.Build(context.Background(), &kb.KnowledgeBase{}, rules.Engine.Matcher))

	for _, q := range []string{"Orbit Tracker", "react", "backend engineer"} {
		res, err := e.Resolve(context.Background(), q, Conversation{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoMatch, res.Outcome, q)
	}
}

func TestResolve_NotReady(t *testing.T) {
	e, err := New(loadRules(t))
	require.NoError(t, err)
	assert.False(t, e.Ready())

	conv := Conversation{PendingFollowUps: []string{"keep me"}}
	res, err := e.Resolve(context.Background(), "hi", conv)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Equal(t, conv, res.Conversation)

	_, err = e.Document("projects-0")
	assert.ErrorIs(t, err, ErrNotReady)

	e.SetIndex(newStubSearcher(0.1))
	assert.True(t, e.Ready())
	e.SetIndex(nil)
	assert.False(t, e.Ready())
}

func TestResolve_EmptyQueryIsNoMatch(t *testing.T) {
	e, rules := newTestEngine(t)
	conv := Conversation{PendingFollowUps: []string{"Tell me more about Ledger Sync"}, FollowUpCursor: 0}

	for _, q := range []string{"", "   ", "?!..."} {
		res, err := e.Resolve(context.Background(), q, conv)
		require.NoError(t, err, q)
		assert.Equal(t, OutcomeNoMatch, res.Outcome, q)
		assert.Equal(t, rules.Engine.Answers.NoMatchFollowUps, res.FollowUps, q)
		assert.Equal(t, res.FollowUps, res.Conversation.PendingFollowUps, q)
		assert.Empty(t, res.Prompt, q)
	}
}

func TestResolve_DoesNotMutateCallerConversation(t *testing.T) {
	e, _ := newTestEngine(t)

	pending := []string{"Tell me more about Orbit Tracker", "Tell me more about Ledger Sync"}
	conv := Conversation{PendingFollowUps: pending}
	_, err := e.Resolve(context.Background(), "yes", conv)
	require.NoError(t, err)

	assert.Zero(t, conv.FollowUpCursor)
	assert.Nil(t, conv.LastTopic)
	assert.Equal(t, "Tell me more about Orbit Tracker", pending[0])
}

// =============================================================================
// Did-you-mean selection
// =============================================================================

func TestResolve_NumberPicksSuggestion(t *testing.T) {
	e, err := New(loadRules(t))
	require.NoError(t, err)
	e.SetIndex(newStubSearcher(0.5, 0.6, 0.7))

	fallback, err := e.Resolve(context.Background(), "vague", Conversation{})
	require.NoError(t, err)
	require.Equal(t, OutcomeFallback, fallback.Outcome)

	res, err := e.Resolve(context.Background(), "2", fallback.Conversation)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSelection, res.Outcome)
	require.NotNil(t, res.Conversation.LastTopic)
	assert.Equal(t, "projects-1", res.Conversation.LastTopic.Document.ID)
	assert.Empty(t, res.Conversation.DidYouMean)
	assert.Equal(t, res.FollowUps, res.Conversation.PendingFollowUps)

	// Out-of-range numbers are ordinary queries.
	res, err = e.Resolve(context.Background(), "7", fallback.Conversation)
	require.NoError(t, err)
	assert.NotEqual(t, OutcomeSelection, res.Outcome)
}

func TestSelectDidYouMean(t *testing.T) {
	e, _ := newTestEngine(t)

	doc, err := e.Document("experiences-0")
	require.NoError(t, err)

	conv := Conversation{DidYouMean: []kb.Document{doc}}
	res, err := e.SelectDidYouMean(context.Background(), doc, conv)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSelection, res.Outcome)
	assert.True(t, strings.HasPrefix(res.Text, "Platform Engineer at Acme"))
	assert.Contains(t, res.Text, "Kafka, distributed tracing")
	assert.Empty(t, res.Conversation.DidYouMean)
	require.NotNil(t, res.Conversation.LastTopic)
	assert.Equal(t, "experiences", res.Conversation.LastTopic.Category)
	assert.Len(t, conv.DidYouMean, 1, "caller's conversation untouched")

	_, err = e.Document("nope")
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestDidYouMeanPick(t *testing.T) {
	tests := []struct {
		tokens []string
		count  int
		want   int
		ok     bool
	}{
		{tokens: []string{"1"}, count: 3, want: 0, ok: true},
		{tokens: []string{"3"}, count: 3, want: 2, ok: true},
		{tokens: []string{"0"}, count: 3},
		{tokens: []string{"4"}, count: 3},
		{tokens: []string{"1"}, count: 0},
		{tokens: []string{"one"}, count: 3},
		{tokens: []string{"1", "2"}, count: 3},
	}
	for _, tt := range tests {
		got, ok := didYouMeanPick(tt.tokens, tt.count)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("didYouMeanPick(%v, %d) = %d, %v; want %d, %v", tt.tokens, tt.count, got, ok, tt.want, tt.ok)
		}
	}
}

// =============================================================================
// OTel Span Tests (using test exporter)
// =============================================================================

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestResolve_SpanRecordsOutcome(t *testing.T) {
	exporter := setupTestTracer(t)
	e, _ := newTestEngine(t)

	_, err := e.Resolve(context.Background(), "Orbit Tracker", Conversation{})
	require.NoError(t, err)

	var found bool
	for _, span := range exporter.GetSpans() {
		if span.Name != "engine.Resolve" {
			continue
		}
		for _, attr := range span.Attributes {
			if string(attr.Key) == "outcome" && attr.Value.AsString() == string(OutcomeConfident) {
				found = true
			}
		}
	}
	assert.True(t, found, "engine.Resolve span with outcome attribute not exported")
}
