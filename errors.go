package otpgate

import "errors"

var (
	// ErrRateLimited rejects a challenge request that exhausted the
	// per-principal or per-IP issuance budget.
	ErrRateLimited = errors.New("challenge request rate limited")
	// ErrDuplicateRequest rejects a challenge request whose idempotency
	// key was already used within its TTL window. No new code is
	// generated and nothing is resent.
	ErrDuplicateRequest = errors.New("duplicate challenge request")
	// ErrLockedOut rejects requests and verifications while the principal
	// is in lockout cooldown.
	ErrLockedOut = errors.New("principal locked out")
	// ErrInvalidCode rejects a verification whose code does not match the
	// live challenge.
	ErrInvalidCode = errors.New("invalid challenge code")
	// ErrNoActiveChallenge rejects a verification when no live challenge
	// exists: never requested, expired, superseded, or already consumed.
	ErrNoActiveChallenge = errors.New("no active challenge")
	// ErrDeliveryFailed reports a Sender failure. The stored challenge is
	// retained: the principal may still verify or request again once the
	// idempotency and rate windows allow.
	ErrDeliveryFailed = errors.New("challenge delivery failed")
	// ErrStoreUnavailable reports a backing-store failure on a path that
	// fails closed (rate limiting, lockout, challenge state).
	ErrStoreUnavailable = errors.New("challenge store unavailable")
	// ErrInvalidInput rejects malformed input such as an empty principal
	// or empty code.
	ErrInvalidInput = errors.New("invalid challenge input")
	// ErrEngineNotReady is returned by a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
