package memstore

import (
	"context"
	"sync"
	"time"
)

// Clock supplies the current time. Tests substitute a fake.
type Clock func() time.Time

// rateSweepEvery bounds how often the limiter walks its map to drop closed
// windows. Between sweeps stale entries are simply overwritten on next use.
const rateSweepEvery = time.Minute

type rateCounter struct {
	count      int
	windowEnds time.Time
}

// RateLimiter is a fixed-window counter over an in-process map. The
// check-then-increment is a single critical section, so concurrent callers
// on the same key never race a read against a write.
type RateLimiter struct {
	mu        sync.Mutex
	counters  map[string]rateCounter
	now       Clock
	lastSweep time.Time
}

// NewRateLimiter returns a limiter using the wall clock.
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithClock(time.Now)
}

// NewRateLimiterWithClock returns a limiter using the given clock.
func NewRateLimiterWithClock(now Clock) *RateLimiter {
	return &RateLimiter{
		counters: make(map[string]rateCounter),
		now:      now,
	}
}

// IsRateLimited counts one attempt for key and reports whether the budget is
// exhausted. Once the cap is reached the counter stops growing, so a flood of
// rejected calls cannot extend bookkeeping unboundedly.
func (l *RateLimiter) IsRateLimited(_ context.Context, key string, maxAttempts int, period time.Duration) (bool, error) {
	if maxAttempts <= 0 || period <= 0 {
		return false, nil
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	c, ok := l.counters[key]
	if !ok || !now.Before(c.windowEnds) {
		l.counters[key] = rateCounter{count: 1, windowEnds: now.Add(period)}
		return false, nil
	}

	if c.count >= maxAttempts {
		return true, nil
	}

	c.count++
	l.counters[key] = c
	return false, nil
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < rateSweepEvery {
		return
	}
	l.lastSweep = now
	for key, c := range l.counters {
		if !now.Before(c.windowEnds) {
			delete(l.counters, key)
		}
	}
}
