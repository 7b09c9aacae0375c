// Package normalize cleans raw transcript lines before header matching.
package normalize

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// blankers maps directional/format controls and no-break spaces to an ordinary space.
var blankers = runes.Map(func(r rune) rune {
	switch {
	case r == '\u200e', r == '\u200f': // LRM, RLM
		return ' '
	case r >= '\u202a' && r <= '\u202e': // embeddings and overrides
		return ' '
	case r >= '\u2066' && r <= '\u2069': // isolates
		return ' '
	case r == '\u061c': // Arabic letter mark
		return ' '
	case r == '\u200b', r == '\ufeff': // zero width space, BOM
		return ' '
	case r == '\u00a0', r == '\u202f', r == '\u2007': // no-break spaces
		return ' '
	}
	return r
})

// Line replaces control marks with spaces, collapses whitespace runs to a single
// space and trims both ends. It is pure and idempotent.
func Line(raw string) string {
	out, _, err := transform.String(blankers, raw)
	if err != nil {
		out = raw
	}
	return strings.Join(strings.Fields(out), " ")
}

// Spaces collapses whitespace without touching other runes.
func Spaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
