package models

import (
	"strings"
	"unicode/utf8"
)

// Slugify converts a string to a filesystem-safe slug.
// Lowercases, maps spaces and underscores to hyphens, drops everything else
// outside [a-z0-9-].
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '_':
			b.WriteRune('-')
		}
	}
	return b.String()
}

// Truncate shortens s to at most n bytes, appending "..." when cut.
// Never splits a multi-byte rune.
// Used to keep logged payloads bounded.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := max(n-3, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
