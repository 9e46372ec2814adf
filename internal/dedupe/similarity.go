package dedupe

import (
	"sort"
	"strings"
	"unicode"
)

// minPrefixLen is the shortest token allowed to match a longer token by prefix.
const minPrefixLen = 3

// Tokens splits s into its distinct lowercase words, sorted.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Similarity is the Jaccard index of the word sets of a and b.
//
// Two words are the same member when equal, or when the shorter (at least three characters)
// is a prefix of the longer, so truncated titles still correlate. Each word pairs at most once.
func Similarity(a, b string) float64 {
	left, right := Tokens(a), Tokens(b)
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	used := make([]bool, len(right))
	matched := 0
	for _, l := range left {
		if j := pairFor(l, right, used); j >= 0 {
			used[j] = true
			matched++
		}
	}

	union := len(left) + len(right) - matched
	return float64(matched) / float64(union)
}

// pairFor returns the index of the best unused partner for word, preferring exact matches, or -1.
func pairFor(word string, candidates []string, used []bool) int {
	for j, c := range candidates {
		if !used[j] && c == word {
			return j
		}
	}
	for j, c := range candidates {
		if used[j] {
			continue
		}
		short, long := word, c
		if len(short) > len(long) {
			short, long = long, short
		}
		if len(short) >= minPrefixLen && strings.HasPrefix(long, short) {
			return j
		}
	}
	return -1
}
