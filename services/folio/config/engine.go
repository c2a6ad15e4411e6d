// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

//go:embed engine.yaml
var defaultEngineYAML []byte

// Matcher defaults.
const (
	// DefaultConfidenceThreshold is the highest score still answered directly.
	DefaultConfidenceThreshold = 0.35

	// DefaultFallbackLimit is the size of the did-you-mean list.
	DefaultFallbackLimit = 3

	// DefaultMinSimilarity excludes documents whose best field is weaker.
	DefaultMinSimilarity = 0.2

	// DefaultTokenSimilarityFloor is the lowest bigram similarity counted as a
	// near-miss token match.
	DefaultTokenSimilarityFloor = 0.5
)

// FieldWeight assigns a weight in (0,1] to one searchable document field.
type FieldWeight struct {
	Name   string  `yaml:"name" validate:"required,oneof=name title companyName description headline technologies skills skillsGained problemsSolved lessonsGained impact"`
	Weight float64 `yaml:"weight" validate:"gt=0,lte=1"`
}

// MatcherConfig tunes the fuzzy matcher and the confidence cut-off.
type MatcherConfig struct {
	// ConfidenceThreshold: a best score <= this value is answered directly.
	// Zero selects DefaultConfidenceThreshold.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gt=0,lte=1"`

	// FallbackLimit caps the did-you-mean list.
	FallbackLimit int `yaml:"fallback_limit" validate:"gte=1"`

	// MinSimilarity: documents with no field at least this similar are dropped.
	MinSimilarity float64 `yaml:"min_similarity" validate:"gt=0,lte=1"`

	// TokenSimilarityFloor is the lowest bigram similarity counted for a token.
	TokenSimilarityFloor float64 `yaml:"token_similarity_floor" validate:"gt=0,lte=1"`

	// Fields lists the searchable fields and their weights.
	Fields []FieldWeight `yaml:"fields" validate:"required,min=1,dive"`

	// StopWords are ignored on both the query and the field side.
	StopWords []string `yaml:"stop_words"`
}

// FollowUpConfig drives the follow-up state machine.
type FollowUpConfig struct {
	// Affirmations are whole normalized replies that accept a pending follow-up.
	Affirmations []string `yaml:"affirmations" validate:"required,min=1,dive,required"`

	// PerformanceKeyword marks follow-ups answered from the last topic directly.
	PerformanceKeyword string `yaml:"performance_keyword" validate:"required"`

	// GenericPerformance is used when the last topic has no performance data.
	GenericPerformance string `yaml:"generic_performance" validate:"required"`
}

// AnswerLabels prefixes each optional field line of an answer.
type AnswerLabels struct {
	Headline       string `yaml:"headline"`
	Description    string `yaml:"description"`
	ProblemsSolved string `yaml:"problems_solved"`
	Technologies   string `yaml:"technologies"`
	Skills         string `yaml:"skills"`
	Lessons        string `yaml:"lessons"`
	Impact         string `yaml:"impact"`
	SourceLink     string `yaml:"source_link"`
	Media          string `yaml:"media"`
	Performance    string `yaml:"performance"`
}

// AnswerConfig holds the text/template strings used to build replies.
type AnswerConfig struct {
	ExperienceTitle     string       `yaml:"experience_title" validate:"required"`
	ListSeparator       string       `yaml:"list_separator"`
	Labels              AnswerLabels `yaml:"labels"`
	NoMatch             string       `yaml:"no_match" validate:"required"`
	NoMatchFollowUps    []string     `yaml:"no_match_follow_ups" validate:"required,min=1,dive,required"`
	DidYouMeanHeader    string       `yaml:"did_you_mean_header" validate:"required"`
	DidYouMeanFooter    string       `yaml:"did_you_mean_footer"`
	ProjectFollowUps    []string     `yaml:"project_follow_ups" validate:"required,min=1,dive,required"`
	ExperienceFollowUps []string     `yaml:"experience_follow_ups" validate:"required,min=1,dive,required"`
	GenericFollowUps    []string     `yaml:"generic_follow_ups" validate:"required,min=1,dive,required"`
}

// EngineConfig groups the matcher, follow-up and answer settings.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type EngineConfig struct {
	Matcher   MatcherConfig  `yaml:"matcher"`
	FollowUps FollowUpConfig `yaml:"follow_ups"`
	Answers   AnswerConfig   `yaml:"answers"`
}

// LoadEngineConfig parses engine settings from YAML bytes, applies defaults
// for missing matcher values, and validates the result.
func LoadEngineConfig(ctx context.Context, data []byte) (*EngineConfig, error) {
	_, span := configTracer.Start(ctx, "config.LoadEngineConfig")
	defer span.End()

	if err := checkSize(data); err != nil {
		return nil, fmt.Errorf("LoadEngineConfig: %w", err)
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadEngineConfig: parsing YAML: %w", err)
	}

	cfg.Matcher.applyDefaults()
	if cfg.Answers.ListSeparator == "" {
		cfg.Answers.ListSeparator = ", "
	}
	for i, w := range cfg.Matcher.StopWords {
		cfg.Matcher.StopWords[i] = strings.ToLower(strings.TrimSpace(w))
	}
	cfg.FollowUps.PerformanceKeyword = strings.ToLower(strings.TrimSpace(cfg.FollowUps.PerformanceKeyword))

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("LoadEngineConfig: validation: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Matcher.Fields))
	for _, f := range cfg.Matcher.Fields {
		if seen[f.Name] {
			return nil, fmt.Errorf("LoadEngineConfig: field %q weighted twice", f.Name)
		}
		seen[f.Name] = true
	}

	span.SetAttributes(
		attribute.Float64("confidence_threshold", cfg.Matcher.ConfidenceThreshold),
		attribute.Int("fields", len(cfg.Matcher.Fields)),
		attribute.Int("stop_words", len(cfg.Matcher.StopWords)),
	)
	slog.Info("engine config loaded",
		slog.Float64("confidence_threshold", cfg.Matcher.ConfidenceThreshold),
		slog.Int("fallback_limit", cfg.Matcher.FallbackLimit),
		slog.Int("fields", len(cfg.Matcher.Fields)),
	)
	return &cfg, nil
}

// DefaultMatcherConfig returns the matcher settings from the embedded
// engine.yaml. It panics if the embedded file is invalid.
func DefaultMatcherConfig() MatcherConfig {
	cfg, err := LoadEngineConfig(context.Background(), defaultEngineYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded engine.yaml is invalid: %v", err))
	}
	return cfg.Matcher
}

// applyDefaults fills zero values.
func (m *MatcherConfig) applyDefaults() {
	if m.ConfidenceThreshold <= 0 {
		m.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if m.FallbackLimit <= 0 {
		m.FallbackLimit = DefaultFallbackLimit
	}
	if m.MinSimilarity <= 0 {
		m.MinSimilarity = DefaultMinSimilarity
	}
	if m.TokenSimilarityFloor <= 0 {
		m.TokenSimilarityFloor = DefaultTokenSimilarityFloor
	}
}

// StopWordSet returns the stop words as a set.
func (m MatcherConfig) StopWordSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.StopWords))
	for _, w := range m.StopWords {
		set[w] = struct{}{}
	}
	return set
}
