package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-bytes!!"

func TestGenerateAndValidate(t *testing.T) {
	manager := NewManager(testSecret, "driftmail", 20*time.Minute)

	token, err := manager.Generate("abc123@x.test")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "abc123@x.test", claims.Email)
	assert.Equal(t, "driftmail", claims.Issuer)
}

func TestValidate_ExpiredToken(t *testing.T) {
	manager := NewManager(testSecret, "driftmail", -time.Minute)

	token, err := manager.Generate("abc123@x.test")
	require.NoError(t, err)

	_, err = manager.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_WrongSecret(t *testing.T) {
	manager := NewManager(testSecret, "driftmail", 20*time.Minute)
	other := NewManager("another-secret-key-also-32-bytes!!!", "driftmail", 20*time.Minute)

	token, err := manager.Generate("abc123@x.test")
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_Garbage(t *testing.T) {
	manager := NewManager(testSecret, "driftmail", 20*time.Minute)

	_, err := manager.Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
