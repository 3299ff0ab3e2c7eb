package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/shared"
	"github.com/redis/go-redis/v9"
)

const tokenBytes = 24

// Session is the JSON value stored under <prefix><token>.
type Session struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RedisStore reads sessions written by the account service into Redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", common.ErrUnauthorized
	}

	raw, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", common.ErrUnauthorized
		}
		return "", fmt.Errorf("%w: session lookup: %w", common.ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.UserID == "" {
		return "", fmt.Errorf("%w: malformed session record", common.ErrUnauthorized)
	}
	if !sess.ExpiresAt.IsZero() && !s.now().Before(sess.ExpiresAt) {
		return "", fmt.Errorf("%w: session expired", common.ErrUnauthorized)
	}
	return sess.UserID, nil
}

// Issue writes a new session for userID valid for ttl and returns its token.
// Production sessions come from the account service; Issue serves local
// setups and tests.
func (s *RedisStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token, err := shared.MakeRandHexString(tokenBytes)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(Session{UserID: userID, ExpiresAt: s.now().Add(ttl).UTC()})
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, s.key(token), raw, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: session write: %w", common.ErrStoreUnavailable, err)
	}
	return token, nil
}
