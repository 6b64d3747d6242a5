package otpgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otpgate/otpgate/internal/otp"
	"github.com/otpgate/otpgate/store"
)

// idempotencyScopeRequest scopes challenge-request keys so other
// side-effecting calls sharing the store cannot collide with them.
const idempotencyScopeRequest = "otp-request"

// RequestChallenge issues a fresh challenge for the principal and hands the
// plaintext code to the Sender. Any prior pending challenge for the same
// principal is superseded: only the newest code verifies.
//
// Rejections, in check order: [ErrLockedOut], [ErrRateLimited],
// [ErrDuplicateRequest]. A Sender failure returns the issuance result
// together with [ErrDeliveryFailed]; the stored challenge is retained.
func (e *Engine) RequestChallenge(ctx context.Context, in RequestChallengeInput) (*RequestChallengeResult, error) {
	if e == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(in.PrincipalID) == "" || strings.TrimSpace(in.ChannelTarget) == "" {
		return nil, ErrInvalidInput
	}

	cfg := e.currentSettings()

	locked, err := e.lockouts.IsLocked(ctx, in.PrincipalID)
	if err != nil {
		// Lockout state unknown: deny rather than let a locked
		// principal through.
		e.metricInc(MetricStoreError)
		e.emitAudit(ctx, EventChallengeRequest, false, in.PrincipalID, "", in.ChannelTarget, in.Client.IP, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if locked {
		e.metricInc(MetricChallengeLockedOut)
		e.emitAudit(ctx, EventChallengeRequest, false, in.PrincipalID, "", in.ChannelTarget, in.Client.IP, ErrLockedOut, nil)
		return nil, ErrLockedOut
	}

	if err := e.checkRequestLimits(ctx, in, cfg); err != nil {
		return nil, err
	}

	fingerprint := in.IdempotencyKey
	if fingerprint == "" {
		fingerprint = otp.Fingerprint(in.PrincipalID, in.ChannelTarget, in.Client.IP, in.Client.UserAgent)
	}

	fresh, err := e.idempotency.TryUseKey(ctx, idempotencyScopeRequest, fingerprint, cfg.IdempotencyTTL)
	if err != nil {
		// Fail open: a broken idempotency store must not wedge
		// issuance. The occasional duplicate send is the lesser harm.
		e.metricInc(MetricIdempotencyFailOpen)
		e.emitAudit(ctx, EventIdempotencyFailOpen, false, in.PrincipalID, "", in.ChannelTarget, in.Client.IP, err, nil)
		fresh = true
	}
	if !fresh {
		e.metricInc(MetricChallengeDuplicate)
		e.emitAudit(ctx, EventChallengeRequest, false, in.PrincipalID, "", in.ChannelTarget, in.Client.IP, ErrDuplicateRequest, nil)
		return nil, ErrDuplicateRequest
	}

	code, err := otp.NewCode(cfg.CodeLength)
	if err != nil {
		return nil, e.undoReservation(ctx, in, fingerprint, err)
	}
	codeHash, err := otp.HashCode(cfg.HashKey, code)
	if err != nil {
		return nil, e.undoReservation(ctx, in, fingerprint, err)
	}

	record := store.Record{
		PrincipalID:    in.PrincipalID,
		ChallengeID:    uuid.NewString(),
		CodeHash:       codeHash,
		ExpiresAt:      e.now().Add(cfg.CodeTTL).Unix(),
		BoundIP:        in.Client.IP,
		BoundUserAgent: in.Client.UserAgent,
		ChannelTarget:  in.ChannelTarget,
	}

	if err := e.challenges.SetState(ctx, record); err != nil {
		return nil, e.undoReservation(ctx, in, fingerprint, err)
	}

	result := &RequestChallengeResult{
		ChallengeID: record.ChallengeID,
		ExpiresAt:   time.Unix(record.ExpiresAt, 0),
	}

	if err := e.sender.Send(ctx, in.ChannelTarget, code); err != nil {
		// The challenge stays stored: the principal may have received
		// the code anyway, or can request again once windows allow.
		e.metricInc(MetricDeliveryFailure)
		e.emitAudit(ctx, EventDeliveryFailure, false, in.PrincipalID, record.ChallengeID, in.ChannelTarget, in.Client.IP, err, nil)
		return result, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, EventChallengeRequest, true, in.PrincipalID, record.ChallengeID, in.ChannelTarget, in.Client.IP, nil, nil)
	return result, nil
}

func (e *Engine) checkRequestLimits(ctx context.Context, in RequestChallengeInput, cfg ChallengeSettings) error {
	limited, err := e.rateLimiter.IsRateLimited(ctx, "req:p:"+in.PrincipalID, cfg.MaxRequestsPerPrincipal, cfg.RequestWindow)
	if err != nil {
		e.metricInc(MetricStoreError)
		e.emitAudit(ctx, EventChallengeRequest, false, in.PrincipalID, "", in.ChannelTarget, in.Client.IP, err, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !limited && in.Client.IP != "" {
		limited, err = e.rateLimiter.IsRateLimited(ctx, "req:ip:"+in.Client.IP, cfg.MaxRequestsPerIP, cfg.RequestWindow)
		if err != nil {
			e.metricInc(MetricStoreError)
			e.emitAudit(ctx, EventChallengeRequest, false, in.PrincipalID, "", in.ChannelTarget, in.Client.IP, err, nil)
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if limited {
		e.metricInc(MetricChallengeRateLimited)
		e.emitAudit(ctx, EventChallengeRequest, false, in.PrincipalID, "", in.ChannelTarget, in.Client.IP, ErrRateLimited, nil)
		return ErrRateLimited
	}
	return nil
}

// undoReservation releases the idempotency key after a downstream failure so
// the caller's retry is not misreported as a duplicate.
func (e *Engine) undoReservation(ctx context.Context, in RequestChallengeInput, fingerprint string, cause error) error {
	_ = e.idempotency.RemoveKey(ctx, idempotencyScopeRequest, fingerprint)
	e.metricInc(MetricStoreError)
	e.emitAudit(ctx, EventChallengeRequest, false, in.PrincipalID, "", in.ChannelTarget, in.Client.IP, cause, nil)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
}
