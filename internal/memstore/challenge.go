package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/otpgate/otpgate/store"
)

// ChallengeStore keeps at most one live challenge record per principal in an
// in-process map. Set supersedes, Get applies read-time expiry, Clear is a
// challenge-scoped compare-and-delete so racing consumers and superseding
// writers decide a single winner.
type ChallengeStore struct {
	mu      sync.Mutex
	records map[string]store.Record
	now     Clock
}

// NewChallengeStore returns a store using the wall clock.
func NewChallengeStore() *ChallengeStore {
	return NewChallengeStoreWithClock(time.Now)
}

// NewChallengeStoreWithClock returns a store using the given clock.
func NewChallengeStoreWithClock(now Clock) *ChallengeStore {
	return &ChallengeStore{
		records: make(map[string]store.Record),
		now:     now,
	}
}

// SetState replaces any existing record for the principal.
func (s *ChallengeStore) SetState(_ context.Context, record store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.PrincipalID] = record
	return nil
}

// GetState returns nil for absent and for expired records. Expired records
// are reclaimed on the way out.
func (s *ChallengeStore) GetState(_ context.Context, principalID string) (*store.Record, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[principalID]
	if !ok {
		return nil, nil
	}
	if record.Expired(now) {
		delete(s.records, principalID)
		return nil, nil
	}

	out := record
	return &out, nil
}

// ClearState removes the record if it still carries the given challenge ID
// and reports whether it did. A record superseded since the caller read it
// no longer matches and stays untouched.
func (s *ChallengeStore) ClearState(_ context.Context, principalID, challengeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[principalID]
	if !ok || record.ChallengeID != challengeID {
		return false, nil
	}
	delete(s.records, principalID)
	return true, nil
}
