package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterAllowsOnePerWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(2*time.Second, 1)
	limiter.Now = func() time.Time { return now }

	allowed := 0
	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(context.Background(), "answer:1:1")
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestMemoryLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(2*time.Second, 1)
	limiter.Now = func() time.Time { return now }

	ok, err := limiter.Allow(context.Background(), "answer:1:1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(context.Background(), "answer:1:1")
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)

	ok, err = limiter.Allow(context.Background(), "answer:1:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterTracksKeysIndependently(t *testing.T) {
	limiter := NewMemoryLimiter(2*time.Second, 1)

	ok, err := limiter.Allow(context.Background(), "answer:1:1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(context.Background(), "answer:1:2")
	require.NoError(t, err)
	assert.True(t, ok)
}
