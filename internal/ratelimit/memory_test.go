package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, rps float64, burst int) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(rps, burst)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func TestMemoryLimiterIngestRate(t *testing.T) {
	// 50 events/s sustained, burst of 100: the config defaults.
	m := newTestLimiter(t, 50, 100)
	t0 := time.Now()

	for i := range 100 {
		require.True(t, m.allowAt("10.0.0.1", t0), "event %d within burst", i)
	}
	assert.False(t, m.allowAt("10.0.0.1", t0))

	// One token every 20ms.
	assert.False(t, m.allowAt("10.0.0.1", t0.Add(10*time.Millisecond)))
	assert.True(t, m.allowAt("10.0.0.1", t0.Add(25*time.Millisecond)))
	assert.False(t, m.allowAt("10.0.0.1", t0.Add(25*time.Millisecond)))

	// A quiet minute refills to burst, never beyond.
	later := t0.Add(time.Minute)
	for range 100 {
		require.True(t, m.allowAt("10.0.0.1", later))
	}
	assert.False(t, m.allowAt("10.0.0.1", later))
}

func TestMemoryLimiterBucketsPerClient(t *testing.T) {
	m := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	ok, err := m.Allow(ctx, "engine-a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = m.Allow(ctx, "engine-a")
	assert.False(t, ok)

	ok, _ = m.Allow(ctx, "engine-b")
	assert.True(t, ok)
	assert.Equal(t, 2, m.size())
}

func TestMemoryLimiterConcurrentIngestNeverExceedsBurst(t *testing.T) {
	m := newTestLimiter(t, 0.001, 25)
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if ok, _ := m.Allow(context.Background(), "10.0.0.7"); ok {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(25), allowed.Load())
}

func TestMemoryLimiterEvictsIdleClients(t *testing.T) {
	m := newTestLimiter(t, 1, 1)
	t0 := time.Now()
	m.allowAt("idle", t0)
	m.allowAt("active", t0.Add(staleThreshold))

	m.evictStale(t0.Add(time.Second))
	assert.Equal(t, 1, m.size())

	// An evicted client starts again from a full bucket.
	assert.True(t, m.allowAt("idle", t0.Add(2*time.Second)))
}

func TestMemoryLimiterCloseTwice(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNoopLimiter(t *testing.T) {
	var l Limiter = NoopLimiter{}
	for range 3 {
		ok, err := l.Allow(context.Background(), "any")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.NoError(t, l.Close())
}
