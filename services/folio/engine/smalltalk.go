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
	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/text"
)

// SmallTalkClassifier recognizes short greetings and thanks.
//
// # Description
//
//	Only queries of at most MaxTokens tokens are considered, so a real
//	question that happens to contain "hi" is never short-circuited. A token
//	qualifies when it is in the closed small-talk vocabulary or is a listed
//	misspelling of a vocabulary word ("helo"), which is replaced by that
//	word. Content words near a greeting ("they", "gold") do not qualify.
//	Response keys are tried in configured order against every qualifying
//	token, exact or within one edit; the first key that matches wins.
//
// # Thread Safety
//
//	Immutable after construction; safe for concurrent use.
type SmallTalkClassifier struct {
	maxTokens  int
	vocabulary map[string]struct{}
	typos      map[string]string
	responses  []config.SmallTalkResponse
}

// NewSmallTalkClassifier builds a classifier from loaded configuration.
func NewSmallTalkClassifier(cfg *config.SmallTalkConfig) *SmallTalkClassifier {
	c := &SmallTalkClassifier{
		maxTokens:  config.DefaultSmallTalkMaxTokens,
		vocabulary: make(map[string]struct{}),
		typos:      make(map[string]string),
	}
	if cfg == nil {
		return c
	}
	if cfg.MaxTokens > 0 {
		c.maxTokens = cfg.MaxTokens
	}
	for _, tok := range cfg.Tokens {
		c.vocabulary[tok] = struct{}{}
	}
	for typo, tok := range cfg.Typos {
		if _, ok := c.vocabulary[tok]; ok {
			c.typos[typo] = tok
		}
	}
	c.responses = append(c.responses, cfg.Responses...)
	return c
}

// Classify returns the small-talk reply for query, if any.
func (c *SmallTalkClassifier) Classify(query string) (string, bool) {
	tokens := text.Normalize(query)
	if len(tokens) == 0 || len(tokens) > c.maxTokens {
		return "", false
	}

	qualifying := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if word, ok := c.qualify(tok); ok {
			qualifying = append(qualifying, word)
		}
	}
	if len(qualifying) == 0 {
		return "", false
	}

	for _, r := range c.responses {
		for _, tok := range qualifying {
			if tok == r.Key || text.WithinDistance(tok, r.Key, 1) {
				return r.Text, true
			}
		}
	}
	return "", false
}

// qualify returns the vocabulary word tok stands for, if any.
func (c *SmallTalkClassifier) qualify(tok string) (string, bool) {
	if _, ok := c.vocabulary[tok]; ok {
		return tok, true
	}
	word, ok := c.typos[tok]
	return word, ok
}
