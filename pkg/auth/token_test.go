package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	plaintext, hash, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, "tgm_"))
	// 32 random bytes hex-encoded after the prefix.
	assert.Len(t, plaintext, len("tgm_")+64)
	assert.Equal(t, HashToken(plaintext), hash)
	assert.NotEqual(t, plaintext, hash)
}

func TestGenerateTokenUnique(t *testing.T) {
	first, _, err := GenerateToken()
	require.NoError(t, err)
	second, _, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHashTokenStable(t *testing.T) {
	assert.Equal(t, HashToken("tgm_abc"), HashToken("tgm_abc"))
	assert.NotEqual(t, HashToken("tgm_abc"), HashToken("tgm_abd"))
	// sha256 hex digest.
	assert.Len(t, HashToken("anything"), 64)
}
