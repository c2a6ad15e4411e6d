// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine resolves a user turn against the document index: small
// talk, canonical shortcuts, synonym expansion, fuzzy search with a
// confidence threshold, did-you-mean fallback and follow-up continuation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/index"
	"github.com/AleutianAI/folio/services/folio/kb"
	"github.com/AleutianAI/folio/services/folio/text"
)

// Searcher is the read side of a document index.
type Searcher interface {
	// Search returns candidates sorted ascending by score. expansion terms
	// add coverage but never take part in exact matching.
	Search(ctx context.Context, query string, expansion ...string) ([]index.Candidate, error)

	// Documents returns every document in build order.
	Documents() []kb.Document

	// ByCategory returns the documents of one category; "" means all.
	ByCategory(category string) []kb.Document

	// Get looks a document up by ID.
	Get(id string) (kb.Document, bool)
}

// Outcome is the terminal state of one resolution.
type Outcome string

const (
	OutcomeSmallTalk Outcome = "small_talk"
	OutcomeShortcut  Outcome = "canonical_shortcut"
	OutcomeConfident Outcome = "confident_match"
	OutcomeFallback  Outcome = "fallback_suggestions"
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeFollowUp  Outcome = "follow_up"
	OutcomeSelection Outcome = "selection"
)

// Result is the reply to one turn plus the updated conversation.
type Result struct {
	Outcome   Outcome
	Text      string
	FollowUps []string

	// Conversation is the state to pass into the next call.
	Conversation Conversation

	// Candidates are the fuzzy-match results, when a search ran.
	Candidates []index.Candidate

	// Document is the answered document for confident and selection
	// outcomes.
	Document *kb.Document

	// Rule names the shortcut that answered, if any.
	Rule string

	// Prompt is the follow-up consumed by an affirmation, if any.
	Prompt string
}

type searcherRef struct {
	searcher Searcher
}

// Engine is the query resolution engine.
//
// # Description
//
//	The engine owns only immutable rules and a pointer to the active index.
//	All per-session state travels in the Conversation passed to each call,
//	so one Engine serves any number of sessions.
//
// # Thread Safety
//
//	Safe for concurrent use. SetIndex swaps the index atomically; a call in
//	flight finishes against the index it started with.
type Engine struct {
	smallTalk *SmallTalkClassifier
	expander  *Expander
	shortcuts *ShortcutMatcher
	answers   *AnswerBuilder

	matcher      config.MatcherConfig
	followUps    config.FollowUpConfig
	affirmations map[string]struct{}
	perfKeyword  []string
	separator    string

	index  atomic.Pointer[searcherRef]
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an engine from loaded rules. The engine is not ready until
// SetIndex installs an index.
func New(rules *config.Rules, opts ...Option) (*Engine, error) {
	if rules == nil || rules.Engine == nil {
		return nil, errors.New("engine: rules must include engine settings")
	}

	e := &Engine{
		smallTalk:    NewSmallTalkClassifier(rules.SmallTalk),
		expander:     NewExpander(rules.Synonyms),
		matcher:      rules.Engine.Matcher,
		followUps:    rules.Engine.FollowUps,
		affirmations: make(map[string]struct{}),
		perfKeyword:  text.Normalize(rules.Engine.FollowUps.PerformanceKeyword),
		separator:    rules.Engine.Answers.ListSeparator,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.matcher.ConfidenceThreshold <= 0 {
		e.matcher.ConfidenceThreshold = config.DefaultConfidenceThreshold
	}
	if e.matcher.FallbackLimit <= 0 {
		e.matcher.FallbackLimit = config.DefaultFallbackLimit
	}
	for _, a := range rules.Engine.FollowUps.Affirmations {
		if joined := text.Join(a); joined != "" {
			e.affirmations[joined] = struct{}{}
		}
	}

	var err error
	if e.shortcuts, err = NewShortcutMatcher(rules.Shortcuts, e.matcher.StopWordSet(), e.separator); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if e.answers, err = NewAnswerBuilder(rules.Engine.Answers); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return e, nil
}

// SetIndex installs s as the active index. Passing nil makes the engine
// not ready again.
func (e *Engine) SetIndex(s Searcher) {
	if s == nil {
		e.index.Store(nil)
		indexDocuments.Set(0)
		return
	}
	e.index.Store(&searcherRef{searcher: s})
	indexDocuments.Set(float64(len(s.Documents())))
	indexSwaps.Inc()
	e.logger.Info("index installed", slog.Int("documents", len(s.Documents())))
}

// Ready reports whether an index is installed.
func (e *Engine) Ready() bool {
	return e.index.Load() != nil
}

// Index returns the active index, or nil when not ready.
func (e *Engine) Index() Searcher {
	ref := e.index.Load()
	if ref == nil {
		return nil
	}
	return ref.searcher
}

// Document looks up a document in the active index.
func (e *Engine) Document(id string) (kb.Document, error) {
	s := e.Index()
	if s == nil {
		return kb.Document{}, ErrNotReady
	}
	doc, ok := s.Get(id)
	if !ok {
		return kb.Document{}, fmt.Errorf("%q: %w", id, ErrUnknownDocument)
	}
	return doc, nil
}

// ConfidenceThreshold returns the score at or below which a match is
// answered directly.
func (e *Engine) ConfidenceThreshold() float64 {
	return e.matcher.ConfidenceThreshold
}

// Expand exposes the synonym expander for diagnostics.
func (e *Engine) Expand(query string) string {
	return e.expander.Expand(query)
}

// isAffirmation reports whether the whole normalized input is an
// affirmation.
func (e *Engine) isAffirmation(tokens []string) bool {
	_, ok := e.affirmations[strings.Join(tokens, " ")]
	return ok
}
