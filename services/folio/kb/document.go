// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kb models the portfolio knowledge base: loosely structured records
// grouped by category, decoded into explicit optional-field structs and
// loaded from a file, an HTTP endpoint or Google Cloud Storage.
package kb

import "strings"

// Kind is the record variant, derived from the category a record came from.
type Kind int

const (
	// KindGeneric covers every category without a dedicated shape (skills,
	// about, education, ...).
	KindGeneric Kind = iota

	// KindProject is a record from the projects category.
	KindProject

	// KindExperience is a record from the experiences category.
	KindExperience
)

// Category names with a dedicated Kind.
const (
	CategoryProjects    = "projects"
	CategoryExperiences = "experiences"
)

// String returns the kind name used in logs and API responses.
func (k Kind) String() string {
	switch k {
	case KindProject:
		return "project"
	case KindExperience:
		return "experience"
	default:
		return "generic"
	}
}

// KindForCategory maps a category name to its record variant.
// Matching is case-insensitive and accepts the singular form.
func KindForCategory(category string) Kind {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case CategoryProjects, "project":
		return KindProject
	case CategoryExperiences, "experience":
		return KindExperience
	default:
		return KindGeneric
	}
}

// Fields is the closed set of optional record fields. The zero value of a
// field means "no data"; it is never an error.
type Fields struct {
	Name           string
	Title          string
	CompanyName    string
	Description    string
	Headline       string
	Technologies   []string
	Skills         []string
	SkillsGained   []string
	ProblemsSolved []string
	LessonsGained  []string
	Impact         string
	SourceLink     string
	Media          string
	Performance    string
}

// IsZero reports whether no field carries data.
func (f Fields) IsZero() bool {
	return f.Name == "" && f.Title == "" && f.CompanyName == "" &&
		f.Description == "" && f.Headline == "" &&
		len(f.Technologies) == 0 && len(f.Skills) == 0 && len(f.SkillsGained) == 0 &&
		len(f.ProblemsSolved) == 0 && len(f.LessonsGained) == 0 &&
		f.Impact == "" && f.SourceLink == "" && f.Media == "" && f.Performance == ""
}

// Field names as they appear in knowledge-base files and matcher config.
const (
	FieldName           = "name"
	FieldTitle          = "title"
	FieldCompanyName    = "companyName"
	FieldDescription    = "description"
	FieldHeadline       = "headline"
	FieldTechnologies   = "technologies"
	FieldSkills         = "skills"
	FieldSkillsGained   = "skillsGained"
	FieldProblemsSolved = "problemsSolved"
	FieldLessonsGained  = "lessonsGained"
	FieldImpact         = "impact"
	FieldSourceLink     = "sourceLink"
	FieldMedia          = "media"
	FieldPerformance    = "performance"
)

// Values returns the content of the named field. List fields return their
// elements and isList=true; text fields return a one-element slice when
// present. Unknown or absent fields return nil.
func (f Fields) Values(name string) (values []string, isList bool) {
	switch name {
	case FieldTechnologies:
		return f.Technologies, true
	case FieldSkills:
		return f.Skills, true
	case FieldSkillsGained:
		return f.SkillsGained, true
	case FieldProblemsSolved:
		return f.ProblemsSolved, true
	case FieldLessonsGained:
		return f.LessonsGained, true
	}

	var s string
	switch name {
	case FieldName:
		s = f.Name
	case FieldTitle:
		s = f.Title
	case FieldCompanyName:
		s = f.CompanyName
	case FieldDescription:
		s = f.Description
	case FieldHeadline:
		s = f.Headline
	case FieldImpact:
		s = f.Impact
	case FieldSourceLink:
		s = f.SourceLink
	case FieldMedia:
		s = f.Media
	case FieldPerformance:
		s = f.Performance
	}
	if s == "" {
		return nil, false
	}
	return []string{s}, false
}

// Document is one knowledge-base record after flattening.
//
// # Thread Safety
//
// Documents are values owned by an index and never mutated after build.
type Document struct {
	// Category is the source collection, e.g. "projects".
	Category string

	// ID is "category-i" for list entries and "category" for singletons.
	ID string

	// Order is the position in index-build order, used to break score ties.
	Order int

	// Kind is the record variant derived from Category.
	Kind Kind

	Fields Fields
}

// DisplayName is the label used when listing documents: the first present
// of Name, Title and CompanyName, falling back to ID.
func (d Document) DisplayName() string {
	switch {
	case d.Fields.Name != "":
		return d.Fields.Name
	case d.Fields.Title != "":
		return d.Fields.Title
	case d.Fields.CompanyName != "":
		return d.Fields.CompanyName
	default:
		return d.ID
	}
}
