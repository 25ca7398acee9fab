package services

import (
	"regexp"
	"strings"
)

var (
	paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)
	sentenceSplitRe  = regexp.MustCompile(`[.!?]+[\s"')\]]+`)
)

// splitParagraphs segments on blank lines. Single-paragraph text comes back
// as one segment.
func splitParagraphs(text string) []string {
	parts := paragraphSplitRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitSentences is deliberately conservative: it may under-split around
// abbreviations, which degrades gracefully to paragraph-level scope.
func splitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// containsSurface reports a word-bounded, case-insensitive occurrence of the
// surface inside the segment.
func containsSurface(segment, surface string) bool {
	if surface == "" {
		return false
	}
	seg := strings.ToLower(segment)
	needle := strings.ToLower(surface)
	for start := 0; ; {
		idx := strings.Index(seg[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(needle)
		if boundaryBefore(seg, idx) && boundaryAfter(seg, end) {
			return true
		}
		start = idx + 1
		if start >= len(seg) {
			return false
		}
	}
}

func boundaryBefore(s string, idx int) bool {
	return idx == 0 || !isWordByte(s[idx-1])
}

func boundaryAfter(s string, end int) bool {
	return end >= len(s) || !isWordByte(s[end])
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
