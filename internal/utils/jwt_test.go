package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("k", 9, "ADMIN", 15)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.Exp, 5*time.Second)

	claims, err := ParseAccessToken("k", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "9", claims.Subject)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	tok, err := NewAccessToken("k", 9, "ADMIN", 15)
	require.NoError(t, err)
	_, err = ParseAccessToken("other", tok.Token)
	assert.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid), "got %v", err)

	expired, err := NewAccessToken("k", 9, "ADMIN", -1)
	require.NoError(t, err)
	_, err = ParseAccessToken("k", expired.Token)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired), "got %v", err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{
		Issuer: "someone-else", Subject: "9", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	raw, err := foreign.SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ParseAccessToken("k", raw)
	assert.True(t, errors.Is(err, jwt.ErrTokenInvalidIssuer), "got %v", err)
}
