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
	"fmt"
	"strings"
	"text/template"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/kb"
	"github.com/AleutianAI/folio/services/folio/text"
)

type shortcutRule struct {
	name     string
	category string
	field    string
	prefixes []string

	// phrases and stripped are the normalized phrasings, with and without
	// stop words.
	phrases  map[string]struct{}
	stripped map[string]struct{}

	answer   *template.Template
	followUp *template.Template
}

// shortcutView is the data passed to shortcut templates.
type shortcutView struct {
	Names string
	Count int
	First string
}

// ShortcutMatcher answers canonical phrasings with a fixed document filter.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type ShortcutMatcher struct {
	rules     []shortcutRule
	stopWords map[string]struct{}
	separator string
}

// NewShortcutMatcher compiles the shortcut table. It fails if a template
// does not parse.
func NewShortcutMatcher(cfg *config.ShortcutConfig, stopWords map[string]struct{}, separator string) (*ShortcutMatcher, error) {
	if separator == "" {
		separator = ", "
	}
	m := &ShortcutMatcher{stopWords: stopWords, separator: separator}
	if cfg == nil {
		return m, nil
	}
	for _, s := range cfg.Shortcuts {
		answer, err := template.New(s.Name + ".answer").Parse(s.Answer)
		if err != nil {
			return nil, fmt.Errorf("shortcut %q answer: %w", s.Name, err)
		}
		followUp, err := template.New(s.Name + ".follow_up").Parse(s.FollowUp)
		if err != nil {
			return nil, fmt.Errorf("shortcut %q follow_up: %w", s.Name, err)
		}
		rule := shortcutRule{
			name:     s.Name,
			category: s.Category,
			field:    s.Field,
			prefixes: s.Prefixes,
			phrases:  make(map[string]struct{}, len(s.Phrases)),
			stripped: make(map[string]struct{}, len(s.Phrases)),
			answer:   answer,
			followUp: followUp,
		}
		for _, p := range s.Phrases {
			tokens := text.Normalize(p)
			if len(tokens) == 0 {
				continue
			}
			rule.phrases[strings.Join(tokens, " ")] = struct{}{}
			if st := m.strip(tokens); st != "" {
				rule.stripped[st] = struct{}{}
			}
		}
		m.rules = append(m.rules, rule)
	}
	return m, nil
}

// match returns the first rule whose phrasing equals query, compared after
// normalization and, failing that, after stop words are removed from both.
func (m *ShortcutMatcher) match(query string) (*shortcutRule, bool) {
	tokens := text.Normalize(query)
	if len(tokens) == 0 {
		return nil, false
	}
	joined := strings.Join(tokens, " ")
	stripped := m.strip(tokens)
	for i := range m.rules {
		r := &m.rules[i]
		if _, ok := r.phrases[joined]; ok {
			return r, true
		}
		if stripped == "" {
			continue
		}
		if _, ok := r.stripped[stripped]; ok {
			return r, true
		}
	}
	return nil, false
}

func (m *ShortcutMatcher) strip(tokens []string) string {
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := m.stopWords[t]; !stop {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

// selectDocs applies the rule's filter to the documents of its category.
// With no field every document of the category is selected; otherwise a
// document is kept when some element of the field has a token starting with
// one of the prefixes.
func (r *shortcutRule) selectDocs(docs []kb.Document) []kb.Document {
	var out []kb.Document
	for _, d := range docs {
		if r.category != "" && !strings.EqualFold(d.Category, r.category) {
			continue
		}
		if r.field == "" || r.fieldMatches(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r *shortcutRule) fieldMatches(d kb.Document) bool {
	values, _ := d.Fields.Values(r.field)
	for _, v := range values {
		for _, tok := range text.Normalize(v) {
			for _, p := range r.prefixes {
				if strings.HasPrefix(tok, p) {
					return true
				}
			}
		}
	}
	return false
}

// render produces the listing answer and its single follow-up.
func (r *shortcutRule) render(docs []kb.Document, separator string) (string, string, error) {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.DisplayName()
	}
	view := shortcutView{Names: strings.Join(names, separator), Count: len(docs)}
	if len(names) > 0 {
		view.First = names[0]
	}

	var answer, followUp strings.Builder
	if err := r.answer.Execute(&answer, view); err != nil {
		return "", "", fmt.Errorf("shortcut %q answer: %w", r.name, err)
	}
	if err := r.followUp.Execute(&followUp, view); err != nil {
		return "", "", fmt.Errorf("shortcut %q follow_up: %w", r.name, err)
	}
	return answer.String(), followUp.String(), nil
}
