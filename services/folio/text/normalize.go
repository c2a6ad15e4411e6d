// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package text holds the lexical primitives shared by the resolution engine:
// query normalization and a rune-aware edit distance.
package text

import (
	"strings"
	"unicode"
)

// quoteReplacer folds typographic quotes into their ASCII equivalents.
var quoteReplacer = strings.NewReplacer(
	"‘", "'", // left single
	"’", "'", // right single
	"‚", "'", // single low-9
	"‛", "'", // single high-reversed-9
	"“", `"`, // left double
	"”", `"`, // right double
	"„", `"`, // double low-9
	"‟", `"`, // double high-reversed-9
)

// Normalize lowercases s, folds curly quotes to straight ones, replaces every
// rune that is not a letter, digit, underscore, hyphen or whitespace with a
// space, and splits the result on whitespace runs.
//
// # Description
//
// Normalize is total and deterministic: the empty string yields an empty
// (non-nil) slice and the same input always yields the same tokens. Letter
// and digit classification follows Unicode, so "café" stays one token.
//
// # Examples
//
//	Normalize("Which projects used MERN stack?") // [which projects used mern stack]
//	Normalize("Node.js & React")                 // [node js react]
//	Normalize("don’t")                           // [don t]
func Normalize(s string) []string {
	if s == "" {
		return []string{}
	}

	s = quoteReplacer.Replace(strings.ToLower(s))

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			return r
		case unicode.IsSpace(r):
			return r
		default:
			return ' '
		}
	}, s)

	tokens := strings.Fields(cleaned)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

// Join returns the canonical normalized string form of s: its tokens joined
// by single spaces.
func Join(s string) string {
	return strings.Join(Normalize(s), " ")
}

// TokenSet returns the distinct tokens of s as a set.
func TokenSet(s string) map[string]struct{} {
	tokens := Normalize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// ContainsRun reports whether needle occurs in haystack as a contiguous run
// of whole tokens.
func ContainsRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
