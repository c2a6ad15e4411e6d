// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text

// Distance returns the Levenshtein edit distance between a and b with unit
// cost for insertion, deletion and substitution.
//
// Runes are compared, not bytes, so "café" and "cafe" are one edit apart.
// Only two DP rows are kept; inputs are expected to be short tokens.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// WithinDistance reports whether Distance(a, b) <= limit, skipping the DP when
// the length difference alone already exceeds the limit.
func WithinDistance(a, b string, limit int) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la-lb > limit || lb-la > limit {
		return false
	}
	return Distance(a, b) <= limit
}
