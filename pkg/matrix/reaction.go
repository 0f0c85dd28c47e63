package matrix

import "strings"

// Positive reaction keys after normalization: thumbs up and check mark.
var positiveKeys = map[string]bool{
	"\U0001F44D": true,
	"\u2705":     true,
}

// NormalizeReactionKey trims whitespace and strips the Unicode variation
// selectors (U+FE0E text, U+FE0F emoji) clients append inconsistently.
func NormalizeReactionKey(key string) string {
	key = strings.TrimSpace(key)
	return strings.Map(func(r rune) rune {
		if r == '\uFE0E' || r == '\uFE0F' {
			return -1
		}
		return r
	}, key)
}

// IsPositiveReaction reports whether the raw reaction key counts as a human
// confirmation.
func IsPositiveReaction(key string) bool {
	return positiveKeys[NormalizeReactionKey(key)]
}
