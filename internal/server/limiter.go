package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed window counter keyed by caller. It is in-process
// only, so limits apply per replica rather than globally.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[string]*windowCount
}

type windowCount struct {
	windowStart time.Time
	hits        int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]*windowCount),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.counts[key]
	if !ok || now.Sub(entry.windowStart) >= l.window {
		l.counts[key] = &windowCount{windowStart: now, hits: 1}
		l.evictStale(now)
		return true
	}

	if entry.hits >= l.limit {
		return false
	}
	entry.hits++
	return true
}

func (l *rateLimiter) evictStale(now time.Time) {
	if len(l.counts) < 4096 {
		return
	}
	for key, entry := range l.counts {
		if now.Sub(entry.windowStart) >= l.window {
			delete(l.counts, key)
		}
	}
}
