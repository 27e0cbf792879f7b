package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken(7, "alice", "client", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateAndGetClaims(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, float64(7), claims["id"])
	assert.Equal(t, "alice", claims["username"])
	assert.Equal(t, "client", claims["role"])
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(7, "alice", "client", "secret")
	require.NoError(t, err)

	_, err = ValidateAndGetClaims(token, "other")
	assert.Error(t, err)
}

func TestGenerateRequiresSecret(t *testing.T) {
	_, err := GenerateToken(7, "alice", "client", "")
	assert.Error(t, err)
}
