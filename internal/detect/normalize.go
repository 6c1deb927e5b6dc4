// Package detect scores chat messages for the likelihood that they are prayer requests.
package detect

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes text for matching: lowercase, accents removed,
// whitespace runs collapsed to a single space and trimmed.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// transform.Chain is stateful, so build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		stripped = strings.ToLower(text)
	}

	return strings.Join(strings.Fields(stripped), " ")
}
