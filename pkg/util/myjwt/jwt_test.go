package myjwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	opts := Options{Key: "secret", Issuer: "ContextIndex", ExpireHours: 1}
	token, err := GenerateToken(opts, "svc-1", "context_chat")
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", claims.Uuid)
	assert.Equal(t, "context_chat", claims.Username)
	assert.Equal(t, "ContextIndex", claims.Issuer)
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, err := GenerateToken(Options{Key: "secret"}, "svc-1", "x")
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.Error(t, err)

	_, err = ParseToken("", token)
	assert.Error(t, err)
}

func TestGenerateRequiresKey(t *testing.T) {
	_, err := GenerateToken(Options{}, "svc-1", "x")
	assert.Error(t, err)
}
