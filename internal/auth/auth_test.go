package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken("admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "runpod-idle-monitor", claims.Issuer)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).GenerateToken("admin")
	require.NoError(t, err)

	_, err = NewService("secret-b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		_, err := svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewService("test-secret", time.Nanosecond)

	token, err := svc.GenerateToken("admin")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewService_DefaultDuration(t *testing.T) {
	svc := NewService("test-secret", 0)
	assert.Equal(t, 24*time.Hour, svc.TokenDuration())
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("hunter3", hash))
	assert.False(t, CheckPassword("hunter2", "not-a-bcrypt-hash"))
}
