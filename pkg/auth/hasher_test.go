package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := BcryptHasher{}

	hash, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	assert.NoError(t, h.Verify(hash, "correct horse battery staple"))
	assert.Error(t, h.Verify(hash, "wrong password"))
}

func TestBcryptHasherSaltsEachHash(t *testing.T) {
	h := BcryptHasher{}

	first, err := h.Hash("same password")
	require.NoError(t, err)
	second, err := h.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NoError(t, h.Verify(first, "same password"))
	assert.NoError(t, h.Verify(second, "same password"))
}
