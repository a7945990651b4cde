// Completion: 100% - Utility module complete
package engine

import (
	"sort"
	"strings"
)

// utils.go - Utility helper functions
//
// String helpers shared by the listing front end for diagnostics:
// edit distance and "did you mean" suggestions for mnemonics and register names.

// EditDistance calculates the Levenshtein distance between two strings
func EditDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}

	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1, // deletion
				matrix[i][j-1]+1, // insertion
				matrix[i-1][j-1]+cost) // substitution
		}
	}

	return matrix[len(s1)][len(s2)]
}

// SuggestSimilar finds candidates within a small edit distance of name, closest first
func SuggestSimilar(name string, candidates []string, maxSuggestions int) []string {
	type suggestion struct {
		name     string
		distance int
	}

	var suggestions []suggestion
	threshold := 3 // Maximum edit distance for suggestions
	lower := strings.ToLower(name)

	for _, c := range candidates {
		dist := EditDistance(lower, strings.ToLower(c))
		if dist <= threshold && dist > 0 {
			suggestions = append(suggestions, suggestion{c, dist})
		}
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].distance == suggestions[j].distance {
			return suggestions[i].name < suggestions[j].name
		}
		return suggestions[i].distance < suggestions[j].distance
	})

	result := make([]string, 0, maxSuggestions)
	for i := 0; i < len(suggestions) && i < maxSuggestions; i++ {
		result = append(result, suggestions[i].name)
	}
	return result
}

// SplitSuffix splits "send.mem" into ("send", "mem"); the suffix is empty when there is no dot
func SplitSuffix(s string) (string, string) {
	if idx := strings.IndexByte(s, '.'); idx != -1 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}
