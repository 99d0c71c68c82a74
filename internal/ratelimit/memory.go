package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowState struct {
	start time.Time
	count int64
}

// MemoryLimiter is an in-process Limiter for tests and single-node setups.
type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int64
	entries map[string]*windowState

	// Now is overridable in tests.
	Now func() time.Time
}

func NewMemoryLimiter(window time.Duration, max int64) *MemoryLimiter {
	return &MemoryLimiter{
		window:  window,
		max:     max,
		entries: make(map[string]*windowState),
		Now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	state, ok := l.entries[key]
	if !ok || now.Sub(state.start) >= l.window {
		l.entries[key] = &windowState{start: now, count: 1}
		return l.max >= 1, nil
	}

	state.count++
	return state.count <= l.max, nil
}
