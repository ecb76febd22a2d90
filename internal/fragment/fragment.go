// Package fragment splits generated text into transport-sized messages.
package fragment

import (
	"strings"
	"unicode/utf8"
)

// DefaultLimit is the Discord message content limit in characters.
const DefaultLimit = 2000

// Split breaks text on single spaces into fragments of at most limit runes.
// Tokens are never split: a token longer than limit becomes its own
// oversized fragment. Joining the result with " " yields text again.
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var fragments []string
	var current []string
	currentLen := 0

	for _, token := range strings.Split(text, " ") {
		tokenLen := utf8.RuneCountInString(token)
		// len(current) accounts for the separating spaces, including the one
		// that would precede token.
		projected := currentLen + len(current) + tokenLen
		if projected > limit && len(current) > 0 {
			fragments = append(fragments, strings.Join(current, " "))
			current = current[:0]
			currentLen = 0
		}
		current = append(current, token)
		currentLen += tokenLen
	}
	if len(current) > 0 {
		fragments = append(fragments, strings.Join(current, " "))
	}
	return fragments
}
