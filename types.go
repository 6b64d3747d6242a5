package otpgate

import (
	"context"
	"time"
)

// ClientContext carries the request-scoped caller metadata. It is always
// passed explicitly, never read from ambient context values, so non-web
// callers and tests can supply it directly.
type ClientContext struct {
	IP        string
	UserAgent string
}

// Sender delivers the plaintext code to the principal's channel. The engine
// treats delivery as a black box: a Sender failure is reported but does not
// roll back the stored challenge.
type Sender interface {
	Send(ctx context.Context, channelTarget, code string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, channelTarget, code string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, channelTarget, code string) error {
	return f(ctx, channelTarget, code)
}

// RequestChallengeInput names the parameters of Engine.RequestChallenge.
type RequestChallengeInput struct {
	PrincipalID   string
	ChannelTarget string
	Client        ClientContext

	// IdempotencyKey suppresses duplicate execution of the same logical
	// request. When empty, a fingerprint is derived from the principal,
	// channel, and client context so plain network retries still
	// deduplicate.
	IdempotencyKey string
}

// RequestChallengeResult reports a successful issuance. The plaintext code is
// never part of the result; it went to the Sender only.
type RequestChallengeResult struct {
	ChallengeID string
	ExpiresAt   time.Time
}

// VerifyInput names the parameters of Engine.Verify.
type VerifyInput struct {
	PrincipalID string
	Code        string
	Client      ClientContext
}

// VerifyResult reports a successful, consumed verification.
type VerifyResult struct {
	ChallengeID string

	// Receipt is a signed attestation of the completed challenge, present
	// only when the engine was built with receipt issuance configured.
	Receipt string
}
