package utils

import "unicode/utf8"

// Truncate shortens s to at most n bytes for log output, cutting on a rune
// boundary and appending "..." when anything was dropped.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n < 0 {
		n = 0
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
