package utils

import (
	"strings"
	"unicode"
)

// DigitsOnly strips every non-digit rune from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LastN returns at most the last n bytes of s.
func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// IsBlank reports whether s contains only whitespace.
func IsBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}

// CountLines counts newline-separated lines the way the queue reports
// total_records: every line after the first, blank trailing line included.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n")
}
