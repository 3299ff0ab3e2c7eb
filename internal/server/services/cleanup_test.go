package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls atomic.Int32
	days  atomic.Int32
	err   error
}

func (c *countingCleaner) CleanupOldPreKeys(_ context.Context, days int) (int64, error) {
	c.calls.Add(1)
	c.days.Store(int32(days))
	return 2, c.err
}

func TestCleaner_SweepsUntilCanceled(t *testing.T) {
	fake := &countingCleaner{}
	c := NewCleaner(fake, 5*time.Millisecond, 0, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return fake.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	assert.Equal(t, int32(DefaultRetentionDays), fake.days.Load())
}

func TestCleaner_ErrorsDoNotStopLoop(t *testing.T) {
	fake := &countingCleaner{err: errors.New("db down")}
	c := NewCleaner(fake, 5*time.Millisecond, 7, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.Eventually(t, func() bool { return fake.calls.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(7), fake.days.Load())
}

func TestCleaner_Disabled(t *testing.T) {
	fake := &countingCleaner{}
	c := NewCleaner(fake, 0, 30, logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, c.Run(ctx))
	assert.Zero(t, fake.calls.Load())
}
