package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeReactionKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"plain thumbs up", "\U0001F44D", "\U0001F44D"},
		{"emoji variation selector stripped", "\U0001F44D️", "\U0001F44D"},
		{"text variation selector stripped", "✅︎", "✅"},
		{"surrounding whitespace trimmed", "  \U0001F44D  ", "\U0001F44D"},
		{"other runes untouched", "ok", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeReactionKey(tt.key))
		})
	}
}

func TestIsPositiveReaction(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		positive bool
	}{
		{"thumbs up", "\U0001F44D", true},
		{"thumbs up with emoji selector", "\U0001F44D️", true},
		{"check mark", "✅", true},
		{"check mark padded", " ✅ ", true},
		{"thumbs down", "\U0001F44E", false},
		{"skin tone modifier is a different key", "\U0001F44D\U0001F3FB", false},
		{"empty key", "", false},
		{"plain text", "sim", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.positive, IsPositiveReaction(tt.key))
		})
	}
}
