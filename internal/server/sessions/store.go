// Package sessions resolves session tokens to user ids. Tokens are issued
// elsewhere; this package only looks them up.
package sessions

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keyrelay/internal/server/config"
	"github.com/redis/go-redis/v9"
)

// Store resolves a session token to the user id it was issued for.
// Unknown, expired or malformed tokens yield common.ErrUnauthorized; an
// unreachable backend yields common.ErrStoreUnavailable.
type Store interface {
	Lookup(ctx context.Context, token string) (string, error)
}

// New returns the Store selected by cfg.SessionBackend. rdb is only used by
// the redis backend.
func New(cfg *config.Config, rdb redis.UniversalClient) (Store, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis session backend needs a redis client")
		}
		return NewRedisStore(rdb, cfg.SessionPrefix), nil
	case config.SessionBackendJWT:
		return NewJWTStore([]byte(cfg.SecretKey)), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
