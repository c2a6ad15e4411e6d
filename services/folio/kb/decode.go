// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kb

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned when the knowledge base root is not a mapping of
// category names.
var ErrMalformed = errors.New("knowledge base must be a mapping of category to records")

// Record is one decoded record with its position inside its category.
type Record struct {
	// Index is the position in the source sequence. Skipped entries keep
	// their slot so IDs stay stable when a neighbour is malformed.
	Index  int
	Fields Fields
}

// Category is one top-level collection of the knowledge base.
type Category struct {
	Name string

	// Singleton is true when the category held a single record object
	// rather than a sequence.
	Singleton bool

	Records []Record
}

// KnowledgeBase is the decoded source, categories in file key order.
type KnowledgeBase struct {
	Categories []Category
}

// RecordCount returns the number of records across all categories.
func (k *KnowledgeBase) RecordCount() int {
	if k == nil {
		return 0
	}
	n := 0
	for _, c := range k.Categories {
		n += len(c.Records)
	}
	return n
}

// Decode parses a JSON or YAML knowledge base.
//
// # Description
//
//	The root must be a mapping from category name to either a sequence of
//	record objects or a single record object. JSON is valid YAML, so one
//	decoder serves both. The node API is used so category order follows the
//	file. Everything below the root is decoded tolerantly: unknown keys are
//	ignored, a list field that is not a sequence is treated as absent,
//	non-scalar list elements are skipped, and non-object records are
//	skipped. Each degradation is logged at debug level.
//
// # Outputs
//
//   - *KnowledgeBase: Never nil on success. Empty input yields zero categories.
//   - error: ErrMalformed (wrapped) if the root is not a mapping, or a YAML
//     syntax error.
func Decode(data []byte, logger *slog.Logger) (*KnowledgeBase, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(jsonTabsToSpaces(data), &doc); err != nil {
		return nil, fmt.Errorf("decoding knowledge base: %w", err)
	}

	// Empty or whitespace-only input decodes to a zero node.
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &KnowledgeBase{}, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return &KnowledgeBase{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: %w", root.Line, ErrMalformed)
	}

	kb := &KnowledgeBase{Categories: make([]Category, 0, len(root.Content)/2)}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := strings.TrimSpace(root.Content[i].Value)
		value := resolveAlias(root.Content[i+1])
		if name == "" {
			logger.Debug("skipping category with empty name", slog.Int("line", root.Content[i].Line))
			continue
		}

		switch value.Kind {
		case yaml.SequenceNode:
			cat := Category{Name: name}
			for idx, item := range value.Content {
				item = resolveAlias(item)
				if item.Kind != yaml.MappingNode {
					logger.Debug("skipping non-object record",
						slog.String("category", name),
						slog.Int("index", idx),
					)
					continue
				}
				cat.Records = append(cat.Records, Record{Index: idx, Fields: decodeFields(item, name, logger)})
			}
			kb.Categories = append(kb.Categories, cat)

		case yaml.MappingNode:
			kb.Categories = append(kb.Categories, Category{
				Name:      name,
				Singleton: true,
				Records:   []Record{{Index: 0, Fields: decodeFields(value, name, logger)}},
			})

		default:
			logger.Debug("skipping category that is neither a list nor an object",
				slog.String("category", name),
				slog.Int("line", value.Line),
			)
		}
	}
	return kb, nil
}

// fieldAliases maps accepted key spellings onto canonical field names.
var fieldAliases = map[string]string{
	"name":            FieldName,
	"title":           FieldTitle,
	"role":            FieldTitle,
	"companyname":     FieldCompanyName,
	"company_name":    FieldCompanyName,
	"company":         FieldCompanyName,
	"description":     FieldDescription,
	"headline":        FieldHeadline,
	"technologies":    FieldTechnologies,
	"tech":            FieldTechnologies,
	"skills":          FieldSkills,
	"skillsgained":    FieldSkillsGained,
	"skills_gained":   FieldSkillsGained,
	"problemssolved":  FieldProblemsSolved,
	"problems_solved": FieldProblemsSolved,
	"lessonsgained":   FieldLessonsGained,
	"lessons_gained":  FieldLessonsGained,
	"impact":          FieldImpact,
	"sourcelink":      FieldSourceLink,
	"source_link":     FieldSourceLink,
	"media":           FieldMedia,
	"performance":     FieldPerformance,
}

// decodeFields extracts the known fields of one record mapping.
func decodeFields(node *yaml.Node, category string, logger *slog.Logger) Fields {
	var f Fields
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		field, ok := fieldAliases[strings.ToLower(key)]
		if !ok {
			continue
		}
		value := resolveAlias(node.Content[i+1])

		switch field {
		case FieldTechnologies, FieldSkills, FieldSkillsGained, FieldProblemsSolved, FieldLessonsGained:
			list, ok := stringList(value)
			if !ok {
				logger.Debug("list field is not a sequence, treating as absent",
					slog.String("category", category),
					slog.String("field", key),
					slog.Int("line", value.Line),
				)
				continue
			}
			setList(&f, field, list)
		default:
			s, ok := scalarString(value)
			if !ok {
				logger.Debug("text field is not a scalar, treating as absent",
					slog.String("category", category),
					slog.String("field", key),
					slog.Int("line", value.Line),
				)
				continue
			}
			setText(&f, field, s)
		}
	}
	return f
}

func setList(f *Fields, field string, list []string) {
	switch field {
	case FieldTechnologies:
		f.Technologies = list
	case FieldSkills:
		f.Skills = list
	case FieldSkillsGained:
		f.SkillsGained = list
	case FieldProblemsSolved:
		f.ProblemsSolved = list
	case FieldLessonsGained:
		f.LessonsGained = list
	}
}

func setText(f *Fields, field, s string) {
	switch field {
	case FieldName:
		f.Name = s
	case FieldTitle:
		f.Title = s
	case FieldCompanyName:
		f.CompanyName = s
	case FieldDescription:
		f.Description = s
	case FieldHeadline:
		f.Headline = s
	case FieldImpact:
		f.Impact = s
	case FieldSourceLink:
		f.SourceLink = s
	case FieldMedia:
		f.Media = s
	case FieldPerformance:
		f.Performance = s
	}
}

// scalarString returns the trimmed value of a non-null scalar.
func scalarString(n *yaml.Node) (string, bool) {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", false
	}
	s := strings.TrimSpace(n.Value)
	return s, s != ""
}

// stringList returns the scalar elements of a sequence, skipping anything
// else. A node that is not a sequence yields ok=false.
func stringList(n *yaml.Node) ([]string, bool) {
	if n.Kind != yaml.SequenceNode {
		return nil, false
	}
	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		if s, ok := scalarString(resolveAlias(item)); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, true
	}
	return out, true
}

// jsonTabsToSpaces rewrites tab indentation in JSON input, which YAML
// rejects. Valid JSON cannot contain a raw tab inside a string, so every tab
// byte is whitespace between tokens.
func jsonTabsToSpaces(data []byte) []byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return data
	}
	if bytes.IndexByte(data, '\t') < 0 {
		return data
	}
	return bytes.ReplaceAll(data, []byte{'\t'}, []byte{' '})
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
