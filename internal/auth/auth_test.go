package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	a, err := NewAuthenticator(Config{Enabled: true, Username: "operator", Password: "s3cret", JWTSecret: "test-secret"})
	require.NoError(t, err)
	assert.True(t, a.IsEnabled())

	token, expiresAt, err := a.Authenticate("operator", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.InDelta(t, time.Now().Add(24*time.Hour).Unix(), expiresAt, 5)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, "stresscam", claims.Issuer)
	assert.Equal(t, "operator", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	_, _, err = a.Authenticate("operator", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.Authenticate("admin", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateWithBcryptHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	a, err := NewAuthenticator(Config{Enabled: true, Password: hash})
	require.NoError(t, err)

	_, _, err = a.Authenticate("admin", "hunter2")
	assert.NoError(t, err)
}

func TestAuthenticateDisabled(t *testing.T) {
	a, err := NewAuthenticator(Config{})
	require.NoError(t, err)
	assert.False(t, a.IsEnabled())

	_, _, err = a.Authenticate("admin", "")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestValidateTokenRejectsForeignAndExpired(t *testing.T) {
	m, err := NewJWTManager("one", time.Hour)
	require.NoError(t, err)
	other, err := NewJWTManager("two", time.Hour)
	require.NoError(t, err)

	token, _, err := other.GenerateToken("operator")
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Username: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    issuer,
		},
	})
	signed, err := expired.SignedString([]byte("one"))
	require.NoError(t, err)
	_, err = m.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRandomSecretWhenUnset(t *testing.T) {
	m, err := NewJWTManager("", 0)
	require.NoError(t, err)
	assert.Len(t, m.secretKey, 32)
	assert.Equal(t, 24*time.Hour, m.Expiry())
}
