// Package util holds small string helpers shared by clpipe's output code.
package util

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most max bytes, ending in "..." when cut.
// The cut never splits a multi-byte rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:runeBoundary(s, max)]
	}
	return s[:runeBoundary(s, max-3)] + "..."
}

// runeBoundary backs n up to the start of the rune it falls inside.
func runeBoundary(s string, n int) int {
	if n <= 0 {
		return 0
	}
	for n > 0 && n < len(s) && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// ShortID returns the first n bytes of an identifier such as a run UUID.
func ShortID(id string, n int) string {
	if len(id) > n {
		return id[:n]
	}
	return id
}
