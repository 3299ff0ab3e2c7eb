package grpc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall ("")
// status.
const ServiceName = "keyrelay"

const DefaultHealthInterval = 10 * time.Second

// Check probes one dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthChecker runs its checks periodically and publishes the result to a
// gRPC health server. The status is SERVING only while every check passes.
type HealthChecker struct {
	health   *health.Server
	checks   []Check
	interval time.Duration
	logger   logging.Logger
	serving  atomic.Bool
}

func NewHealthChecker(hs *health.Server, interval time.Duration, l logging.Logger, checks ...Check) *HealthChecker {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	h := &HealthChecker{
		health:   hs,
		checks:   checks,
		interval: interval,
		logger:   l.With("module", "health"),
	}
	h.publish(false)
	return h
}

// Serving reports the outcome of the last probe round.
func (h *HealthChecker) Serving() bool {
	return h.serving.Load()
}

// CheckOnce runs every check and publishes the result.
func (h *HealthChecker) CheckOnce(ctx context.Context) bool {
	ok := true
	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, h.interval)
		err := c.Ping(cctx)
		cancel()
		if err != nil {
			ok = false
			h.logger.Warn(ctx, "health check failed", "check", c.Name, "error", err)
		}
	}

	if prev := h.serving.Load(); prev != ok {
		h.logger.Info(ctx, "health status changed", "serving", ok)
	}
	h.publish(ok)
	return ok
}

// Run probes immediately and then on every interval until ctx is canceled.
func (h *HealthChecker) Run(ctx context.Context) error {
	h.CheckOnce(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.CheckOnce(ctx)
		}
	}
}

func (h *HealthChecker) publish(ok bool) {
	h.serving.Store(ok)
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(ServiceName, st)
}
