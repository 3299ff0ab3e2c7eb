package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/server/config"
	"github.com/redis/go-redis/v9"
)

// OpenRedis connects to the Redis instance backing sessions and offline
// queues and verifies it answers.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", common.ErrStoreUnavailable, cfg.RedisAddr, err)
	}
	return rdb, nil
}
