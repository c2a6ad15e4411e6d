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
	"strconv"

	"github.com/AleutianAI/folio/services/folio/text"
)

// continueFollowUp consumes the pending follow-up at the cursor.
//
// # Description
//
//	The cursor advances modulo the pending list, so repeated affirmations
//	cycle through the prompts instead of exhausting them. The pending list
//	itself is kept while prompts are answered. A prompt mentioning the
//	performance keyword is answered straight from the last topic when there
//	is one; any other prompt is run through the query pipeline as if the user
//	had typed it. When that yields suggestions or no match, the pending list
//	is replaced by the result's follow-ups (none for suggestions), as for a
//	typed query.
func (e *Engine) continueFollowUp(ctx context.Context, s Searcher, conv Conversation) (Result, error) {
	pending := conv.PendingFollowUps
	prompt := pending[conv.FollowUpCursor%len(pending)]
	conv.FollowUpCursor = (conv.FollowUpCursor + 1) % len(pending)

	if conv.LastTopic != nil && e.mentionsPerformance(prompt) {
		conv.DidYouMean = nil
		return Result{
			Outcome:      OutcomeFollowUp,
			Text:         e.answers.Performance(conv.LastTopic.Document, e.followUps.GenericPerformance),
			FollowUps:    append([]string(nil), pending...),
			Conversation: conv,
			Prompt:       prompt,
		}, nil
	}

	res, err := e.resolveQuery(ctx, s, prompt, &conv)
	if err != nil {
		return Result{}, err
	}
	res.Prompt = prompt
	if !keepsPending(res.Outcome) {
		// Suggestions or a no-match reply start a new exchange.
		conv.PendingFollowUps = append([]string(nil), res.FollowUps...)
		conv.FollowUpCursor = 0
		res.Conversation = conv
		return res, nil
	}
	res.FollowUps = append([]string(nil), pending...)
	res.Conversation = conv
	return res, nil
}

// keepsPending reports whether a prompt answered with outcome leaves the
// pending follow-ups cycling.
func keepsPending(outcome Outcome) bool {
	switch outcome {
	case OutcomeConfident, OutcomeShortcut, OutcomeSmallTalk:
		return true
	default:
		return false
	}
}

func (e *Engine) mentionsPerformance(prompt string) bool {
	return text.ContainsRun(text.Normalize(prompt), e.perfKeyword)
}

// didYouMeanPick parses a reply of a single number n in 1..count and
// returns the zero-based suggestion index.
func didYouMeanPick(tokens []string, count int) (int, bool) {
	if count == 0 || len(tokens) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(tokens[0])
	if err != nil || n < 1 || n > count {
		return 0, false
	}
	return n - 1, true
}
