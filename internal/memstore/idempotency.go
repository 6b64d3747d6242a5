package memstore

import (
	"context"
	"sync"
	"time"
)

// DefaultCleanupHorizon is the housekeeping horizon for forgotten idempotency
// records. It is deliberately independent of (and larger than) any per-record
// TTL: per-record TTLs decide duplicate semantics, the horizon only bounds
// how long an abandoned record can occupy memory.
const DefaultCleanupHorizon = 30 * time.Minute

type idemRecord struct {
	firstSeen time.Time
	ttl       time.Duration
}

// IdempotencyStore deduplicates (scope, key) pairs within a TTL window over
// an in-process map. First use wins; the decision and the insert happen in
// one critical section.
type IdempotencyStore struct {
	mu          sync.Mutex
	records     map[string]idemRecord
	now         Clock
	horizon     time.Duration
	lastCleanup time.Time
}

// NewIdempotencyStore returns a store using the wall clock and the default
// housekeeping horizon.
func NewIdempotencyStore() *IdempotencyStore {
	return NewIdempotencyStoreWithClock(time.Now, DefaultCleanupHorizon)
}

// NewIdempotencyStoreWithClock returns a store with the given clock and
// horizon. A non-positive horizon falls back to the default.
func NewIdempotencyStoreWithClock(now Clock, horizon time.Duration) *IdempotencyStore {
	if horizon <= 0 {
		horizon = DefaultCleanupHorizon
	}
	return &IdempotencyStore{
		records: make(map[string]idemRecord),
		now:     now,
		horizon: horizon,
	}
}

func scopedKey(scope, key string) string {
	if scope == "" {
		scope = "default"
	}
	return scope + ":" + key
}

// TryUseKey reports true exactly once per (scope, key) per TTL window. An
// expired record is replaced in place by the winning caller, so the key is
// never observably absent between expiry and reuse.
func (s *IdempotencyStore) TryUseKey(_ context.Context, scope, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, nil
	}
	if ttl <= 0 {
		return true, nil
	}

	now := s.now()
	sk := scopedKey(scope, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[sk]; ok && now.Sub(r.firstSeen) < r.ttl {
		return false, nil
	}

	s.records[sk] = idemRecord{firstSeen: now, ttl: ttl}
	s.cleanupLocked(now)
	return true, nil
}

// RemoveKey clears the record unconditionally, allowing immediate reuse.
func (s *IdempotencyStore) RemoveKey(_ context.Context, scope, key string) error {
	if key == "" {
		return nil
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, scopedKey(scope, key))
	s.cleanupLocked(now)
	return nil
}

// CleanupExpiredKeys drops every record in the scope older than the
// housekeeping horizon.
func (s *IdempotencyStore) CleanupExpiredKeys(_ context.Context, scope string) error {
	now := s.now()
	prefix := scopedKey(scope, "")

	s.mu.Lock()
	defer s.mu.Unlock()

	for sk, r := range s.records {
		if len(sk) >= len(prefix) && sk[:len(prefix)] == prefix && now.Sub(r.firstSeen) >= s.horizon {
			delete(s.records, sk)
		}
	}
	return nil
}

// cleanupLocked runs at most once per horizon, so mutating calls pay an
// amortized O(1) for housekeeping.
func (s *IdempotencyStore) cleanupLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < s.horizon {
		return
	}
	s.lastCleanup = now
	for sk, r := range s.records {
		if now.Sub(r.firstSeen) >= s.horizon {
			delete(s.records, sk)
		}
	}
}
