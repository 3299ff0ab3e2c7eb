package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/logging"
)

type preKeyCleaner interface {
	CleanupOldPreKeys(ctx context.Context, olderThanDays int) (int64, error)
}

// Cleaner periodically removes consumed pre-keys past the retention window.
type Cleaner struct {
	keys          preKeyCleaner
	interval      time.Duration
	retentionDays int
	log           logging.Logger
}

func NewCleaner(keys preKeyCleaner, interval time.Duration, retentionDays int, log logging.Logger) *Cleaner {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Cleaner{
		keys:          keys,
		interval:      interval,
		retentionDays: retentionDays,
		log:           log.With("module", "cleanup"),
	}
}

// Run sweeps once per interval until ctx is canceled. A non-positive
// interval disables the sweeper. Sweep failures are logged and retried on
// the next tick.
func (c *Cleaner) Run(ctx context.Context) error {
	if c.interval <= 0 {
		c.log.Info(ctx, "pre-key cleanup disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	n, err := c.keys.CleanupOldPreKeys(ctx, c.retentionDays)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error(ctx, "pre-key cleanup failed", "error", err)
		}
		return
	}
	if n > 0 {
		c.log.Info(ctx, "consumed pre-keys removed", "count", n, "retention_days", c.retentionDays)
	}
}
