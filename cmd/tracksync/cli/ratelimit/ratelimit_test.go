package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireDrainsBucket(t *testing.T) {
	l := NewPerMinute(3)

	assert.True(t, l.TryAcquire(2))
	assert.True(t, l.TryAcquire(1))
	assert.False(t, l.TryAcquire(1), "bucket should be empty")
}

func TestAcquireWaitsForRefill(t *testing.T) {
	// 600/min = 10 tokens/sec, so one token refills in ~100ms.
	l := NewPerMinute(600)
	require.True(t, l.TryAcquire(600))

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), 1))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestAcquireRespectsCancellation(t *testing.T) {
	l := NewPerMinute(1)
	require.True(t, l.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireRejectsOversizedRequest(t *testing.T) {
	l := NewPerMinute(2)
	err := l.Acquire(context.Background(), 3)
	assert.Error(t, err)
}

func TestRefillCapsAtCapacity(t *testing.T) {
	l := NewPerMinute(5)
	l.mu.Lock()
	l.lastRefill = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	assert.InDelta(t, 5.0, l.Available(), 0.01)
}

func TestClampsToMinimumCapacity(t *testing.T) {
	l := NewPerMinute(0)
	assert.True(t, l.TryAcquire(1))
	assert.False(t, l.TryAcquire(1))
}
