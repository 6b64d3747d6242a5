package otpgate

import (
	"errors"
	"time"
)

// Config is the wiring-level configuration, fixed at Build time. Numeric
// protocol limits live in [ChallengeSettings] instead, which stay
// hot-reloadable through the injected provider.
type Config struct {
	Challenge   ChallengeConfig
	RateLimit   RateLimitConfig
	Idempotency IdempotencyConfig
	Lockout     LockoutConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// ChallengeConfig tunes the challenge state store and verification policy.
type ChallengeConfig struct {
	// RedisPrefix namespaces challenge records in a shared backing.
	RedisPrefix string

	// EnforceContextBinding rejects verifications whose client IP or
	// user agent differs from the issuance context. A mismatch counts as
	// an invalid code, including toward lockout.
	EnforceContextBinding bool
}

// RateLimitConfig tunes the issuance rate limiter.
type RateLimitConfig struct {
	RedisPrefix string
}

// IdempotencyConfig tunes the idempotency key store.
type IdempotencyConfig struct {
	RedisPrefix string

	// CleanupHorizon is the housekeeping horizon for forgotten records in
	// the in-process backing. Zero means the backing default.
	CleanupHorizon time.Duration
}

// LockoutConfig tunes the lockout tracker.
type LockoutConfig struct {
	RedisPrefix string
}

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events under backpressure instead of blocking the
	// request path; drops are counted and exported.
	DropIfFull bool
}

// MetricsConfig controls the metrics surface.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the default wiring: audit and metrics on, lossy audit
// buffering, backing-default prefixes and horizons.
func DefaultConfig() Config {
	return Config{
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must not be negative")
	}
	if c.Idempotency.CleanupHorizon < 0 {
		return errors.New("idempotency cleanup horizon must not be negative")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	// All fields are values; a shallow copy is a deep copy.
	return cfg
}
