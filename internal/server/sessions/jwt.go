package sessions

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/server/auth"
)

// JWTStore accepts self-contained HS256 tokens signed with a shared secret.
type JWTStore struct {
	secret []byte
}

func NewJWTStore(secret []byte) *JWTStore {
	return &JWTStore{secret: secret}
}

func (s *JWTStore) Lookup(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", common.ErrUnauthorized
	}
	userID, err := auth.GetUserIDFromToken(token, s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	return userID, nil
}
