// Package store defines the backing-store contracts the challenge engine is
// built on: a fixed-window rate limiter, an idempotency key store, a lockout
// tracker, and the challenge state store.
//
// Two implementations ship with this module: an in-process one under
// internal/memstore and a Redis-backed one under internal/redistore. Callers
// that need a different distributed backing can inject their own
// implementation through the engine builder; the engine only ever talks to
// these interfaces.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the backing store could not serve the call.
// Implementations wrap their transport errors with this sentinel so the
// engine can apply its fail-open/fail-closed policy per component.
var ErrUnavailable = errors.New("challenge backing store unavailable")

// Record is the single active challenge for a principal. Immutable once
// written; a new Set for the same principal supersedes the previous record.
type Record struct {
	PrincipalID    string
	ChallengeID    string
	CodeHash       [32]byte
	ExpiresAt      int64 // unix seconds
	BoundIP        string
	BoundUserAgent string
	ChannelTarget  string
}

// Expired reports whether the record is past its expiry at the given instant.
func (r *Record) Expired(now time.Time) bool {
	return now.Unix() > r.ExpiresAt
}

// RateLimiter is a fixed-window attempt counter keyed by an arbitrary string.
// It carries no challenge semantics; callers choose keys and budgets.
type RateLimiter interface {
	// IsRateLimited atomically checks and counts one attempt for key.
	// The first call in a window starts the window; once maxAttempts is
	// reached further calls report true without growing the counter, and
	// the window reopens after period elapses.
	IsRateLimited(ctx context.Context, key string, maxAttempts int, period time.Duration) (bool, error)
}

// IdempotencyStore deduplicates side-effecting calls by (scope, key).
type IdempotencyStore interface {
	// TryUseKey reports true exactly once per (scope, key) per ttl window,
	// under any concurrent interleaving. An empty key is never usable.
	TryUseKey(ctx context.Context, scope, key string, ttl time.Duration) (bool, error)

	// RemoveKey unconditionally clears the record, allowing immediate
	// reuse. Used to undo an optimistic reservation after a downstream
	// failure.
	RemoveKey(ctx context.Context, scope, key string) error

	// CleanupExpiredKeys reclaims records older than the housekeeping
	// horizon. Implementations with native key expiry may treat this as a
	// no-op.
	CleanupExpiredKeys(ctx context.Context, scope string) error
}

// LockoutTracker counts consecutive verification failures per principal and
// enforces a cooldown once the threshold is crossed. Expiry is lazy: no
// background timer is required.
type LockoutTracker interface {
	IsLocked(ctx context.Context, principalID string) (bool, error)

	// RecordFailure counts one failure and reports whether this call
	// tripped the lockout.
	RecordFailure(ctx context.Context, principalID string, maxFailures int, lockFor time.Duration) (bool, error)

	// RecordSuccess resets the failure counter unconditionally.
	RecordSuccess(ctx context.Context, principalID string) error
}

// ChallengeStore holds at most one live Record per principal.
type ChallengeStore interface {
	// SetState replaces any existing record for the principal.
	SetState(ctx context.Context, record Record) error

	// GetState returns nil when no live record exists. A record past its
	// expiry behaves as absent even if the backing has not swept it yet.
	GetState(ctx context.Context, principalID string) (*Record, error)

	// ClearState removes the record only if its ChallengeID matches the
	// given one, and reports whether a record was actually removed. The
	// compare and the delete are one atomic step, so of racing consumers
	// (or a consumer racing a superseding SetState) exactly one observes
	// true.
	ClearState(ctx context.Context, principalID, challengeID string) (bool, error)
}
