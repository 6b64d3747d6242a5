package otpgate

import (
	"context"
	"time"

	"github.com/otpgate/otpgate/proof"
	"github.com/otpgate/otpgate/store"
)

// Engine is the challenge orchestrator. Build one through [Builder.Build];
// all methods are then safe for concurrent use.
type Engine struct {
	config      Config
	settings    SettingsProvider
	rateLimiter store.RateLimiter
	idempotency store.IdempotencyStore
	lockouts    store.LockoutTracker
	challenges  store.ChallengeStore
	sender      Sender
	receipts    *proof.Manager
	audit       *auditDispatcher
	metrics     *Metrics

	// fallbackHashKey keys code digests when the settings provider does
	// not supply one. Generated per process at Build.
	fallbackHashKey []byte

	now func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// currentSettings reads the provider fresh; settings are consulted at call
// time so a hot-reloading provider takes effect immediately.
func (e *Engine) currentSettings() ChallengeSettings {
	s := e.settings.ChallengeSettings().withDefaults()
	if len(s.HashKey) == 0 {
		s.HashKey = e.fallbackHashKey
	}
	return s
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID, challengeID, channel, ip string,
	opErr error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:   e.now(),
		EventType:   eventType,
		PrincipalID: principalID,
		ChallengeID: challengeID,
		Channel:     channel,
		IP:          ip,
		Success:     success,
		Metadata:    metadata,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}

	e.audit.Emit(ctx, event)
}
