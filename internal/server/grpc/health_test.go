package grpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func statusOf(t *testing.T, hs *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthChecker_FlipsWithChecks(t *testing.T) {
	hs := health.NewServer()
	var redisDown atomic.Bool

	h := NewHealthChecker(hs, time.Hour, nopLogger{},
		Check{Name: "postgres", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error {
			if redisDown.Load() {
				return errors.New("connection refused")
			}
			return nil
		}},
	)

	if h.Serving() {
		t.Fatal("checker must start as not serving")
	}

	if !h.CheckOnce(context.Background()) || !h.Serving() {
		t.Fatal("expected serving with all checks passing")
	}
	if got := statusOf(t, hs, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status = %v, want SERVING", got)
	}

	redisDown.Store(true)
	if h.CheckOnce(context.Background()) {
		t.Fatal("expected not serving with a failing check")
	}
	if got := statusOf(t, hs, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("service status = %v, want NOT_SERVING", got)
	}
}

func TestHealthChecker_RunProbesOnTicker(t *testing.T) {
	var calls atomic.Int32
	h := NewHealthChecker(health.NewServer(), 20*time.Millisecond, nopLogger{},
		Check{Name: "db", Ping: func(context.Context) error {
			calls.Add(1)
			return nil
		}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d probes ran", calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if !h.Serving() {
		t.Fatal("expected serving")
	}
}
