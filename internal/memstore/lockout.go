package memstore

import (
	"context"
	"sync"
	"time"
)

type lockoutState struct {
	failed      int
	lockedUntil time.Time
}

// LockoutTracker counts consecutive verification failures per principal.
// Lockout expiry is computed on read; no timers.
type LockoutTracker struct {
	mu     sync.Mutex
	states map[string]lockoutState
	now    Clock
}

// NewLockoutTracker returns a tracker using the wall clock.
func NewLockoutTracker() *LockoutTracker {
	return NewLockoutTrackerWithClock(time.Now)
}

// NewLockoutTrackerWithClock returns a tracker using the given clock.
func NewLockoutTrackerWithClock(now Clock) *LockoutTracker {
	return &LockoutTracker{
		states: make(map[string]lockoutState),
		now:    now,
	}
}

// IsLocked reports whether the principal is in cooldown. A lockout whose
// deadline has passed is reclaimed here, which also resets the counter.
func (t *LockoutTracker) IsLocked(_ context.Context, principalID string) (bool, error) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[principalID]
	if !ok {
		return false, nil
	}
	if st.lockedUntil.IsZero() {
		return false, nil
	}
	if now.Before(st.lockedUntil) {
		return true, nil
	}

	delete(t.states, principalID)
	return false, nil
}

// RecordFailure counts one failure and reports whether this call tripped the
// lockout. Two simultaneous failures both count: the increment happens under
// the same lock as the read.
func (t *LockoutTracker) RecordFailure(_ context.Context, principalID string, maxFailures int, lockFor time.Duration) (bool, error) {
	if maxFailures <= 0 {
		return false, nil
	}

	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.states[principalID]
	if !st.lockedUntil.IsZero() {
		if now.Before(st.lockedUntil) {
			return false, nil
		}
		st = lockoutState{}
	}

	st.failed++
	tripped := st.failed >= maxFailures
	if tripped {
		st.lockedUntil = now.Add(lockFor)
	}
	t.states[principalID] = st
	return tripped, nil
}

// RecordSuccess resets the principal to a clean state unconditionally.
func (t *LockoutTracker) RecordSuccess(_ context.Context, principalID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.states, principalID)
	return nil
}
