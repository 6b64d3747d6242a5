package otpgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otpgate/otpgate/internal/otp"
)

// Verify checks a submitted code against the principal's live challenge and
// consumes it on success. State is cleared before success is reported, so a
// consumed challenge can never verify twice: under racing submissions of
// the correct code, exactly one caller wins.
//
// Rejections: [ErrLockedOut], [ErrNoActiveChallenge] (covers never
// requested, expired, superseded, and already consumed), [ErrInvalidCode]
// (which counts toward lockout).
func (e *Engine) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if e == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(in.PrincipalID) == "" || in.Code == "" {
		return nil, ErrInvalidInput
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricVerifyLatency, time.Since(start))
		}
	}()

	cfg := e.currentSettings()

	locked, err := e.lockouts.IsLocked(ctx, in.PrincipalID)
	if err != nil {
		e.metricInc(MetricStoreError)
		e.emitAudit(ctx, EventChallengeVerify, false, in.PrincipalID, "", "", in.Client.IP, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if locked {
		e.metricInc(MetricChallengeLockedOut)
		e.emitAudit(ctx, EventChallengeVerify, false, in.PrincipalID, "", "", in.Client.IP, ErrLockedOut, nil)
		return nil, ErrLockedOut
	}

	record, err := e.challenges.GetState(ctx, in.PrincipalID)
	if err != nil {
		e.metricInc(MetricStoreError)
		e.emitAudit(ctx, EventChallengeVerify, false, in.PrincipalID, "", "", in.Client.IP, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if record == nil {
		e.metricInc(MetricVerifyNoChallenge)
		e.emitAudit(ctx, EventChallengeVerify, false, in.PrincipalID, "", "", in.Client.IP, ErrNoActiveChallenge, nil)
		return nil, ErrNoActiveChallenge
	}

	submittedHash, err := otp.HashCode(cfg.HashKey, in.Code)
	if err != nil {
		e.metricInc(MetricStoreError)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	match := otp.Equal(record.CodeHash, submittedHash)
	if match && e.config.Challenge.EnforceContextBinding && e.contextMismatch(record.BoundIP, record.BoundUserAgent, in.Client) {
		match = false
	}

	if !match {
		return nil, e.failAttempt(ctx, in, record.ChallengeID, cfg)
	}

	// Consume before reporting success. The clear is scoped to the
	// challenge we matched, so a racing correct submission or a
	// superseding request leaves exactly one winner and never destroys
	// a newer challenge.
	removed, err := e.challenges.ClearState(ctx, in.PrincipalID, record.ChallengeID)
	if err != nil {
		e.metricInc(MetricStoreError)
		e.emitAudit(ctx, EventChallengeVerify, false, in.PrincipalID, record.ChallengeID, record.ChannelTarget, in.Client.IP, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !removed {
		e.metricInc(MetricVerifyNoChallenge)
		e.emitAudit(ctx, EventChallengeVerify, false, in.PrincipalID, record.ChallengeID, record.ChannelTarget, in.Client.IP, ErrNoActiveChallenge, nil)
		return nil, ErrNoActiveChallenge
	}

	if err := e.lockouts.RecordSuccess(ctx, in.PrincipalID); err != nil {
		// The verification already succeeded and consumed its state;
		// a stale failure counter only shortens the next budget.
		e.emitAudit(ctx, EventChallengeVerify, true, in.PrincipalID, record.ChallengeID, record.ChannelTarget, in.Client.IP, err,
			map[string]string{"reason": "lockout_reset_failed"})
	}

	result := &VerifyResult{ChallengeID: record.ChallengeID}
	if e.receipts != nil {
		receipt, err := e.receipts.Issue(in.PrincipalID, record.ChallengeID, record.ChannelTarget)
		if err != nil {
			e.emitAudit(ctx, EventChallengeVerify, true, in.PrincipalID, record.ChallengeID, record.ChannelTarget, in.Client.IP, err,
				map[string]string{"reason": "receipt_issue_failed"})
		} else {
			result.Receipt = receipt
		}
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, EventChallengeVerify, true, in.PrincipalID, record.ChallengeID, record.ChannelTarget, in.Client.IP, nil, nil)
	return result, nil
}

func (e *Engine) contextMismatch(boundIP, boundUA string, client ClientContext) bool {
	if boundIP != "" && client.IP != boundIP {
		return true
	}
	if boundUA != "" && client.UserAgent != boundUA {
		return true
	}
	return false
}

func (e *Engine) failAttempt(ctx context.Context, in VerifyInput, challengeID string, cfg ChallengeSettings) error {
	tripped, err := e.lockouts.RecordFailure(ctx, in.PrincipalID, cfg.MaxFailedAttempts, cfg.LockoutDuration)
	if err != nil {
		// The attempt is denied either way; record that the counter
		// may have missed it.
		e.metricInc(MetricStoreError)
		e.emitAudit(ctx, EventChallengeVerify, false, in.PrincipalID, challengeID, "", in.Client.IP, err,
			map[string]string{"reason": "lockout_count_failed"})
	}
	if tripped {
		e.metricInc(MetricLockoutTripped)
		e.emitAudit(ctx, EventLockoutTripped, false, in.PrincipalID, challengeID, "", in.Client.IP, nil, nil)
	}

	e.metricInc(MetricVerifyFailure)
	e.emitAudit(ctx, EventChallengeVerify, false, in.PrincipalID, challengeID, "", in.Client.IP, ErrInvalidCode, nil)
	return ErrInvalidCode
}
