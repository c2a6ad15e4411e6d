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
	"strconv"
	"strings"
	"text/template"

	"github.com/AleutianAI/folio/services/folio/config"
	"github.com/AleutianAI/folio/services/folio/kb"
)

// documentView is the data passed to answer and follow-up templates.
// Name, Title and CompanyName fall back to the display name so prompts never
// render with a hole.
type documentView struct {
	ID          string
	Category    string
	Name        string
	Title       string
	CompanyName string
}

func viewOf(d kb.Document) documentView {
	display := d.DisplayName()
	v := documentView{
		ID:          d.ID,
		Category:    d.Category,
		Name:        d.Fields.Name,
		Title:       d.Fields.Title,
		CompanyName: d.Fields.CompanyName,
	}
	if v.Name == "" {
		v.Name = display
	}
	if v.Title == "" {
		v.Title = display
	}
	if v.CompanyName == "" {
		v.CompanyName = display
	}
	return v
}

// AnswerBuilder assembles reply text from documents.
//
// # Description
//
//	Answers are a pure function of the document: a title line followed by
//	one line per present field in a fixed order. Absent fields are omitted.
//	Follow-up prompts depend only on the document's kind.
//
// # Thread Safety
//
//	Immutable after construction; safe for concurrent use.
type AnswerBuilder struct {
	cfg config.AnswerConfig

	experienceTitle  *template.Template
	noMatch          *template.Template
	projectFollow    []*template.Template
	experienceFollow []*template.Template
	genericFollow    []*template.Template
	noMatchFollow    []string
}

// NewAnswerBuilder parses the answer templates.
func NewAnswerBuilder(cfg config.AnswerConfig) (*AnswerBuilder, error) {
	if cfg.ListSeparator == "" {
		cfg.ListSeparator = ", "
	}
	b := &AnswerBuilder{cfg: cfg, noMatchFollow: append([]string(nil), cfg.NoMatchFollowUps...)}

	var err error
	if b.experienceTitle, err = template.New("experience_title").Parse(cfg.ExperienceTitle); err != nil {
		return nil, fmt.Errorf("experience_title: %w", err)
	}
	if b.noMatch, err = template.New("no_match").Parse(cfg.NoMatch); err != nil {
		return nil, fmt.Errorf("no_match: %w", err)
	}
	if b.projectFollow, err = parseAll("project_follow_ups", cfg.ProjectFollowUps); err != nil {
		return nil, err
	}
	if b.experienceFollow, err = parseAll("experience_follow_ups", cfg.ExperienceFollowUps); err != nil {
		return nil, err
	}
	if b.genericFollow, err = parseAll("generic_follow_ups", cfg.GenericFollowUps); err != nil {
		return nil, err
	}
	return b, nil
}

func parseAll(name string, sources []string) ([]*template.Template, error) {
	out := make([]*template.Template, 0, len(sources))
	for i, src := range sources {
		t, err := template.New(name + "." + strconv.Itoa(i)).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Answer returns the structured answer for d and its follow-up prompts.
func (b *AnswerBuilder) Answer(d kb.Document) (string, []string, error) {
	title, err := b.titleLine(d)
	if err != nil {
		return "", nil, err
	}

	f := d.Fields
	lines := []string{title}
	add := func(label, value string) {
		if value == "" {
			return
		}
		if label == "" {
			lines = append(lines, value)
			return
		}
		lines = append(lines, label+": "+value)
	}
	join := func(values []string) string {
		return strings.Join(values, b.cfg.ListSeparator)
	}

	labels := b.cfg.Labels
	add(labels.Headline, f.Headline)
	add(labels.Description, f.Description)
	add(labels.ProblemsSolved, join(f.ProblemsSolved))
	add(labels.Technologies, join(f.Technologies))
	if len(f.Skills) > 0 {
		add(labels.Skills, join(f.Skills))
	} else {
		add(labels.Skills, join(f.SkillsGained))
	}
	add(labels.Lessons, join(f.LessonsGained))
	add(labels.Impact, f.Impact)
	add(labels.SourceLink, f.SourceLink)
	add(labels.Media, f.Media)

	followUps, err := b.FollowUps(d)
	if err != nil {
		return "", nil, err
	}
	return strings.Join(lines, "\n"), followUps, nil
}

// titleLine is "Title at Company" for experiences carrying both, otherwise
// the display name.
func (b *AnswerBuilder) titleLine(d kb.Document) (string, error) {
	if d.Kind == kb.KindExperience && d.Fields.Title != "" && d.Fields.CompanyName != "" {
		var sb strings.Builder
		if err := b.experienceTitle.Execute(&sb, viewOf(d)); err != nil {
			return "", fmt.Errorf("experience_title: %w", err)
		}
		return sb.String(), nil
	}
	return d.DisplayName(), nil
}

// FollowUps returns the prompts offered after answering d.
func (b *AnswerBuilder) FollowUps(d kb.Document) ([]string, error) {
	var set []*template.Template
	switch d.Kind {
	case kb.KindProject:
		set = b.projectFollow
	case kb.KindExperience:
		set = b.experienceFollow
	default:
		set = b.genericFollow
	}
	view := viewOf(d)
	out := make([]string, 0, len(set))
	for _, t := range set {
		var sb strings.Builder
		if err := t.Execute(&sb, view); err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name(), err)
		}
		out = append(out, sb.String())
	}
	return out, nil
}

// NoMatch returns the templated no-match reply and its generic follow-ups.
func (b *AnswerBuilder) NoMatch(query string) (string, []string, error) {
	var sb strings.Builder
	if err := b.noMatch.Execute(&sb, struct{ Query string }{Query: strings.TrimSpace(query)}); err != nil {
		return "", nil, fmt.Errorf("no_match: %w", err)
	}
	return sb.String(), append([]string(nil), b.noMatchFollow...), nil
}

// DidYouMean returns the numbered suggestion message.
func (b *AnswerBuilder) DidYouMean(docs []kb.Document) string {
	lines := make([]string, 0, len(docs)+2)
	lines = append(lines, b.cfg.DidYouMeanHeader)
	for i, d := range docs {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, d.DisplayName()))
	}
	if b.cfg.DidYouMeanFooter != "" {
		lines = append(lines, b.cfg.DidYouMeanFooter)
	}
	return strings.Join(lines, "\n")
}

// Performance answers a performance follow-up about d without searching.
func (b *AnswerBuilder) Performance(d kb.Document, generic string) string {
	if d.Fields.Performance == "" {
		return generic
	}
	if b.cfg.Labels.Performance == "" {
		return d.Fields.Performance
	}
	return fmt.Sprintf("%s (%s): %s", b.cfg.Labels.Performance, d.DisplayName(), d.Fields.Performance)
}
