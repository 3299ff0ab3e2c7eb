// Package queue holds messages for recipients that are not connected.
// Each recipient has a Redis list; enqueue appends and refreshes the list
// TTL, drain reads and deletes the whole list atomically.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "offline:"
	DefaultTTL    = 24 * time.Hour
)

type RedisQueue struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logging.Logger
	// corrupt counts drained entries that could not be decoded. Nil disables it.
	corrupt prometheus.Counter
}

type Option func(*RedisQueue)

// WithLogger reports undecodable entries found while draining.
func WithLogger(l logging.Logger) Option {
	return func(q *RedisQueue) { q.log = l.With("module", "offline_queue") }
}

// WithMetrics registers keyrelay_offline_corrupt_total on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(q *RedisQueue) {
		q.corrupt = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyrelay_offline_corrupt_total",
			Help: "Queued entries dropped on drain because they could not be decoded.",
		})
		reg.MustRegister(q.corrupt)
	}
}

func NewRedisQueue(rdb redis.UniversalClient, prefix string, ttl time.Duration, opts ...Option) *RedisQueue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	q := &RedisQueue{rdb: rdb, prefix: prefix, ttl: ttl, log: logging.Discard()}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *RedisQueue) key(recipientID string) string {
	return q.prefix + recipientID
}

// Enqueue appends msg to the recipient's queue and resets its expiry, so a
// queue lives for the TTL after its most recent message.
func (q *RedisQueue) Enqueue(ctx context.Context, recipientID string, msg models.Envelope) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode queued message: %w", err)
	}

	key := q.key(recipientID)
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, raw)
		p.Expire(ctx, key, q.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: enqueue: %w", common.ErrStoreUnavailable, err)
	}
	return nil
}

// Drain returns every queued message for the recipient, oldest first, and
// removes them. An empty or expired queue yields an empty slice. Entries
// that cannot be decoded are dropped, logged and counted; the rest are
// still returned.
func (q *RedisQueue) Drain(ctx context.Context, recipientID string) ([]models.Envelope, error) {
	key := q.key(recipientID)

	var lrange *redis.StringSliceCmd
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		lrange = p.LRange(ctx, key, 0, -1)
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: drain: %w", common.ErrStoreUnavailable, err)
	}

	raw := lrange.Val()
	out := make([]models.Envelope, 0, len(raw))
	for _, item := range raw {
		var msg models.Envelope
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			if q.corrupt != nil {
				q.corrupt.Inc()
			}
			q.log.Error(ctx, "undecodable offline message dropped", "recipient_id", recipientID, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Len reports how many messages are waiting for the recipient.
func (q *RedisQueue) Len(ctx context.Context, recipientID string) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key(recipientID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: queue length: %w", common.ErrStoreUnavailable, err)
	}
	return n, nil
}
