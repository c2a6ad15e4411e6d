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
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/folio/services/folio/kb"
	"github.com/AleutianAI/folio/services/folio/text"
)

// Resolve answers one user turn.
//
// # Description
//
//	Checked in order:
//	  1. a number picking one of the current did-you-mean suggestions;
//	  2. an affirmation while follow-ups are pending, which continues the
//	     next pending follow-up;
//	  3. otherwise the query pipeline: small talk, canonical shortcuts,
//	     synonym expansion and fuzzy search, then the confidence threshold.
//	A fresh query replaces the pending follow-ups with the ones its answer
//	offers and resets the cursor. Suggestions survive only a fallback.
//
// # Inputs
//
//   - ctx: Tracing context. Must not be nil.
//   - query: Raw user text.
//   - conv: State returned by the previous call; the zero value for a new
//     session. It is not modified.
//
// # Outputs
//
//   - Result: Reply text, follow-ups and the updated Conversation.
//   - error: ErrNotReady when no index is installed. On error the returned
//     Conversation equals conv. A query with no tokens is a no-match.
func (e *Engine) Resolve(ctx context.Context, query string, conv Conversation) (Result, error) {
	ctx, span := tracer.Start(ctx, "engine.Resolve")
	defer span.End()
	start := time.Now()

	s := e.Index()
	if s == nil {
		span.SetStatus(codes.Error, ErrNotReady.Error())
		return Result{Conversation: conv}, ErrNotReady
	}

	tokens := text.Normalize(query)
	span.SetAttributes(attribute.Int("query_tokens", len(tokens)))

	next := conv.clone()
	var (
		res Result
		err error
	)
	if pick, ok := didYouMeanPick(tokens, len(next.DidYouMean)); ok {
		res, err = e.selectDocument(ctx, next.DidYouMean[pick], next)
	} else if next.AwaitingFollowUp() && e.isAffirmation(tokens) {
		res, err = e.continueFollowUp(ctx, s, next)
	} else {
		res, err = e.resolveFresh(ctx, s, query, next)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		return Result{Conversation: conv}, err
	}

	elapsed := time.Since(start)
	resolutionsTotal.WithLabelValues(string(res.Outcome)).Inc()
	resolutionLatency.Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Int("candidates", len(res.Candidates)),
		attribute.Int("follow_ups", len(res.FollowUps)),
	)
	e.logger.Debug("turn resolved",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("candidates", len(res.Candidates)),
		slog.Duration("duration", elapsed),
	)
	return res, nil
}

// SelectDidYouMean answers a suggestion the user picked directly.
//
// The answer is the same one a confident match on doc would give.
// LastTopic becomes doc and the suggestion list is cleared.
func (e *Engine) SelectDidYouMean(ctx context.Context, doc kb.Document, conv Conversation) (Result, error) {
	ctx, span := tracer.Start(ctx, "engine.SelectDidYouMean")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", doc.ID))

	res, err := e.selectDocument(ctx, doc, conv.clone())
	if err != nil {
		span.RecordError(err)
		return Result{Conversation: conv}, err
	}
	resolutionsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

// resolveFresh runs the query pipeline and resets follow-up state from its
// result.
func (e *Engine) resolveFresh(ctx context.Context, s Searcher, query string, conv Conversation) (Result, error) {
	res, err := e.resolveQuery(ctx, s, query, &conv)
	if err != nil {
		return Result{}, err
	}
	conv.PendingFollowUps = append([]string(nil), res.FollowUps...)
	conv.FollowUpCursor = 0
	res.Conversation = conv
	return res, nil
}

// resolveQuery is the query pipeline proper. It sets conv.LastTopic on a
// confident match and conv.DidYouMean on a fallback (clearing it
// otherwise); follow-up bookkeeping is left to the caller.
func (e *Engine) resolveQuery(ctx context.Context, s Searcher, query string, conv *Conversation) (Result, error) {
	if reply, ok := e.smallTalk.Classify(query); ok {
		conv.DidYouMean = nil
		return Result{Outcome: OutcomeSmallTalk, Text: reply}, nil
	}

	if rule, ok := e.shortcuts.match(query); ok {
		if docs := rule.selectDocs(s.ByCategory(rule.category)); len(docs) > 0 {
			answer, followUp, err := rule.render(docs, e.shortcuts.separator)
			if err != nil {
				return Result{}, err
			}
			shortcutHits.WithLabelValues(rule.name).Inc()
			conv.DidYouMean = nil
			return Result{
				Outcome:   OutcomeShortcut,
				Text:      answer,
				FollowUps: []string{followUp},
				Rule:      rule.name,
			}, nil
		}
	}

	candidates, err := s.Search(ctx, query, e.expander.Terms(query)...)
	if err != nil {
		return Result{}, fmt.Errorf("searching: %w", err)
	}
	candidateCount.Observe(float64(len(candidates)))

	if len(candidates) == 0 {
		reply, followUps, err := e.answers.NoMatch(query)
		if err != nil {
			return Result{}, err
		}
		conv.DidYouMean = nil
		return Result{Outcome: OutcomeNoMatch, Text: reply, FollowUps: followUps}, nil
	}

	best := candidates[0]
	bestScore.Observe(best.Score)
	if best.Score <= e.matcher.ConfidenceThreshold {
		doc := best.Document
		reply, followUps, err := e.answers.Answer(doc)
		if err != nil {
			return Result{}, err
		}
		conv.LastTopic = &Topic{Category: doc.Category, Document: doc}
		conv.DidYouMean = nil
		return Result{
			Outcome:    OutcomeConfident,
			Text:       reply,
			FollowUps:  followUps,
			Candidates: candidates,
			Document:   &doc,
		}, nil
	}

	n := min(e.matcher.FallbackLimit, len(candidates))
	suggestions := make([]kb.Document, n)
	for i := range suggestions {
		suggestions[i] = candidates[i].Document
	}
	conv.DidYouMean = suggestions
	return Result{
		Outcome:    OutcomeFallback,
		Text:       e.answers.DidYouMean(suggestions),
		Candidates: candidates,
	}, nil
}

// selectDocument answers doc directly, as for a confident match.
func (e *Engine) selectDocument(_ context.Context, doc kb.Document, conv Conversation) (Result, error) {
	reply, followUps, err := e.answers.Answer(doc)
	if err != nil {
		return Result{}, err
	}
	conv.LastTopic = &Topic{Category: doc.Category, Document: doc}
	conv.DidYouMean = nil
	conv.PendingFollowUps = append([]string(nil), followUps...)
	conv.FollowUpCursor = 0
	return Result{
		Outcome:      OutcomeSelection,
		Text:         reply,
		FollowUps:    followUps,
		Conversation: conv,
		Document:     &doc,
	}, nil
}
