package services

import (
	"strings"
)

// surfaceSimilarity scores two surface forms in [0,1]. Exact match is 1.0;
// forms identical after case and punctuation folding score 0.95; otherwise
// a blend of edit-distance similarity on the folded forms and token overlap.
func surfaceSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	fa, fb := foldSurface(a), foldSurface(b)
	if fa == "" || fb == "" {
		return 0
	}
	if fa == fb {
		return 0.95
	}
	lev := levenshteinSimilarity(fa, fb)
	overlap := tokenOverlap(a, b)
	return 0.6*lev + 0.4*overlap
}

// foldSurface lowercases and drops everything but letters and digits.
func foldSurface(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func levenshteinSimilarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein is the classic two-row dynamic program.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// tokenOverlap is the Jaccard index over folded word tokens.
func tokenOverlap(a, b string) float64 {
	ta, tb := foldTokens(a), foldTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func foldTokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		out[tok] = true
	}
	return out
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
