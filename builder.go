package otpgate

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/internal/memstore"
	"github.com/otpgate/otpgate/internal/redistore"
	"github.com/otpgate/otpgate/proof"
	"github.com/otpgate/otpgate/store"
)

// Builder assembles an [Engine]. Without a Redis client all four stores are
// in-process; with one they all share the Redis backing. Either way any
// individual store can be overridden with a custom implementation.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	sender   Sender
	settings SettingsProvider

	auditSink  AuditSink
	receiptCfg *proof.Config

	rateLimiter store.RateLimiter
	idempotency store.IdempotencyStore
	lockouts    store.LockoutTracker
	challenges  store.ChallengeStore

	built bool
}

// New returns a Builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the wiring configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis switches all backing stores to the given shared Redis client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSender sets the delivery collaborator. Required.
func (b *Builder) WithSender(sender Sender) *Builder {
	b.sender = sender
	return b
}

// WithSettings sets the settings provider. Defaults to [DefaultSettings].
func (b *Builder) WithSettings(provider SettingsProvider) *Builder {
	b.settings = provider
	return b
}

// WithAuditSink sets the audit destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithReceipts enables signed verification receipts on successful Verify.
func (b *Builder) WithReceipts(cfg proof.Config) *Builder {
	b.receiptCfg = &cfg
	return b
}

// WithRateLimiter overrides the rate limiter backing.
func (b *Builder) WithRateLimiter(limiter store.RateLimiter) *Builder {
	b.rateLimiter = limiter
	return b
}

// WithIdempotencyStore overrides the idempotency backing.
func (b *Builder) WithIdempotencyStore(s store.IdempotencyStore) *Builder {
	b.idempotency = s
	return b
}

// WithLockoutTracker overrides the lockout backing.
func (b *Builder) WithLockoutTracker(tracker store.LockoutTracker) *Builder {
	b.lockouts = tracker
	return b
}

// WithChallengeStore overrides the challenge state backing.
func (b *Builder) WithChallengeStore(s store.ChallengeStore) *Builder {
	b.challenges = s
	return b
}

// WithMetricsEnabled toggles the metrics surface.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns a ready
// Engine. The Builder is single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.sender == nil {
		return nil, errors.New("sender required")
	}

	settings := b.settings
	if settings == nil {
		settings = StaticSettings(DefaultSettings())
	}

	engine := &Engine{
		config:   cfg,
		settings: settings,
		sender:   b.sender,
		metrics:  NewMetrics(cfg.Metrics),
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		now:      time.Now,
	}

	fallbackKey := make([]byte, 32)
	if _, err := rand.Read(fallbackKey); err != nil {
		return nil, err
	}
	engine.fallbackHashKey = fallbackKey

	engine.rateLimiter = b.rateLimiter
	engine.idempotency = b.idempotency
	engine.lockouts = b.lockouts
	engine.challenges = b.challenges

	if b.redis != nil {
		if engine.rateLimiter == nil {
			engine.rateLimiter = redistore.NewRateLimiter(b.redis, cfg.RateLimit.RedisPrefix)
		}
		if engine.idempotency == nil {
			engine.idempotency = redistore.NewIdempotencyStore(b.redis, cfg.Idempotency.RedisPrefix)
		}
		if engine.lockouts == nil {
			engine.lockouts = redistore.NewLockoutTracker(b.redis, cfg.Lockout.RedisPrefix)
		}
		if engine.challenges == nil {
			engine.challenges = redistore.NewChallengeStore(b.redis, cfg.Challenge.RedisPrefix)
		}
	} else {
		if engine.rateLimiter == nil {
			engine.rateLimiter = memstore.NewRateLimiter()
		}
		if engine.idempotency == nil {
			engine.idempotency = memstore.NewIdempotencyStoreWithClock(time.Now, cfg.Idempotency.CleanupHorizon)
		}
		if engine.lockouts == nil {
			engine.lockouts = memstore.NewLockoutTracker()
		}
		if engine.challenges == nil {
			engine.challenges = memstore.NewChallengeStore()
		}
	}

	if b.receiptCfg != nil {
		manager, err := proof.NewManager(*b.receiptCfg)
		if err != nil {
			return nil, err
		}
		engine.receipts = manager
	}

	b.built = true
	return engine, nil
}
