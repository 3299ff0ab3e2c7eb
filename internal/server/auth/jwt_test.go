package auth

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateToken("alice", secret, time.Hour)
	require.NoError(t, err)

	got, err := GetUserIDFromToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
}

func TestGetUserIDFromToken_Rejects(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")

	expired, err := GenerateToken("u1", secret, -time.Second)
	require.NoError(t, err)

	wrongSecret, err := GenerateToken("u1", []byte("other"), time.Hour)
	require.NoError(t, err)

	noUser, err := GenerateToken("", secret, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1"}).SignedString(secret)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "u1",
	}).SignedString(secret)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong secret": wrongSecret,
		"no user":      noUser,
		"no expiry":    noExpiry,
		"other alg":    hs512,
		"malformed":    "not.a.jwt",
		"empty":        "",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := GetUserIDFromToken(tok, secret)
			assert.ErrorIs(t, err, common.ErrInvalidToken)
		})
	}
}
