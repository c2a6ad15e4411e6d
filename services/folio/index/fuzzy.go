// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"math"
	"unicode/utf8"
)

// maxDice caps bigram similarity below an exact match, since distinct
// strings can share every bigram ("aba" / "bab").
const maxDice = 0.95

// tokenSimilarity scores two normalized tokens in [0,1].
//
// # Description
//
//	1 for equal tokens. Otherwise the best of:
//	  - prefix: the shorter token (at least 3 runes) starts the longer one,
//	    0.7 + 0.3*ratio where ratio = shorter/longer rune length;
//	  - containment: the shorter token (at least 4 runes) occurs inside the
//	    longer one, 0.5 + 0.3*ratio;
//	  - character-bigram Dice coefficient, counted only when >= floor.
//	Returns 0 when none apply. Where a match occurs in the longer token is
//	not scored.
func tokenSimilarity(a, b string, floor float64) float64 {
	if a == b {
		return 1
	}
	short, long := a, b
	ls, ll := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if ls > ll {
		short, long = b, a
		ls, ll = ll, ls
	}
	if ls == 0 {
		return 0
	}
	ratio := float64(ls) / float64(ll)

	best := 0.0
	if ls >= 3 && hasPrefix(long, short) {
		best = 0.7 + 0.3*ratio
	} else if ls >= 4 && contains(long, short) {
		best = 0.5 + 0.3*ratio
	}

	if d := bigramDice(a, b); d >= floor && d > best {
		best = math.Min(d, maxDice)
	}
	return best
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// bigramDice returns the Sørensen–Dice coefficient over the multisets of
// adjacent rune pairs. Tokens shorter than two runes have no bigrams and
// score 0.
func bigramDice(a, b string) float64 {
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	counts := make(map[[2]rune]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	shared := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ba)+len(bb))
}

func bigrams(s string) [][2]rune {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make([][2]rune, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out = append(out, [2]rune{runes[i], runes[i+1]})
	}
	return out
}

// fieldText is one scorable text: a field value or a list element, already
// normalized, stop-word-stripped and deduplicated.
type fieldText struct {
	tokens []string
	joined string
}

// queryText is a prepared query. exact is the unexpanded query text.
type queryText struct {
	fieldText
	exact string
}

// rawFieldScore returns the unweighted score of one field text against the
// query: 0 when the field equals the unexpanded query, otherwise 1 minus the
// mean of query coverage and field coverage. Always in [0,1].
func rawFieldScore(q queryText, f fieldText, floor float64) float64 {
	if len(q.tokens) == 0 || len(f.tokens) == 0 {
		return 1
	}
	if q.exact != "" && q.exact == f.joined {
		return 0
	}

	fieldBest := make([]float64, len(f.tokens))
	querySum := 0.0
	for _, qt := range q.tokens {
		best := 0.0
		for j, ft := range f.tokens {
			s := tokenSimilarity(qt, ft, floor)
			if s > best {
				best = s
			}
			if s > fieldBest[j] {
				fieldBest[j] = s
			}
		}
		querySum += best
	}
	fieldSum := 0.0
	for _, s := range fieldBest {
		fieldSum += s
	}

	qCov := querySum / float64(len(q.tokens))
	fCov := fieldSum / float64(len(f.tokens))
	raw := 1 - (qCov+fCov)/2
	return clamp01(raw)
}

// weighted applies a field weight in (0,1]: raw^weight. 0 and 1 are fixed
// points and a heavier weight (closer to 1) keeps the score lower.
func weighted(raw, weight float64) float64 {
	if raw <= 0 {
		return 0
	}
	return clamp01(math.Pow(raw, weight))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
