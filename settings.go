package otpgate

import "time"

// ChallengeSettings are the numeric limits of the protocol. The engine reads
// them from the [SettingsProvider] on every call, so a hot-reloading provider
// takes effect without rebuilding the engine; no caching is performed.
type ChallengeSettings struct {
	// CodeLength is the number of digits in the issued code.
	CodeLength int
	// CodeTTL is how long an issued challenge stays verifiable.
	CodeTTL time.Duration
	// HashKey keys the code digest. At most 64 bytes. When empty, a
	// random per-process key generated at Build is used, which is fine
	// for non-durable backings but must be set explicitly when several
	// processes share a Redis backing.
	HashKey []byte

	// MaxRequestsPerPrincipal and MaxRequestsPerIP bound issuance within
	// RequestWindow.
	MaxRequestsPerPrincipal int
	MaxRequestsPerIP        int
	RequestWindow           time.Duration

	// MaxFailedAttempts trips the lockout; LockoutDuration is the
	// cooldown that follows.
	MaxFailedAttempts int
	LockoutDuration   time.Duration

	// IdempotencyTTL is the duplicate-suppression window for challenge
	// requests.
	IdempotencyTTL time.Duration
}

// SettingsProvider supplies ChallengeSettings at call time.
type SettingsProvider interface {
	ChallengeSettings() ChallengeSettings
}

// StaticSettings is a SettingsProvider returning a fixed value.
type StaticSettings ChallengeSettings

// ChallengeSettings returns the wrapped value.
func (s StaticSettings) ChallengeSettings() ChallengeSettings {
	return ChallengeSettings(s)
}

// DefaultSettings returns the production defaults: 6 digits, 5 minute codes,
// 3 requests per principal and 10 per IP per 5 minutes, lockout after 5
// failures for 15 minutes, 1 minute duplicate suppression.
func DefaultSettings() ChallengeSettings {
	return ChallengeSettings{
		CodeLength:              6,
		CodeTTL:                 5 * time.Minute,
		MaxRequestsPerPrincipal: 3,
		MaxRequestsPerIP:        10,
		RequestWindow:           5 * time.Minute,
		MaxFailedAttempts:       5,
		LockoutDuration:         15 * time.Minute,
		IdempotencyTTL:          time.Minute,
	}
}

// withDefaults fills zero fields so a partially specified provider still
// yields a safe protocol.
func (s ChallengeSettings) withDefaults() ChallengeSettings {
	d := DefaultSettings()
	if s.CodeLength <= 0 {
		s.CodeLength = d.CodeLength
	}
	if s.CodeTTL <= 0 {
		s.CodeTTL = d.CodeTTL
	}
	if s.MaxRequestsPerPrincipal <= 0 {
		s.MaxRequestsPerPrincipal = d.MaxRequestsPerPrincipal
	}
	if s.MaxRequestsPerIP <= 0 {
		s.MaxRequestsPerIP = d.MaxRequestsPerIP
	}
	if s.RequestWindow <= 0 {
		s.RequestWindow = d.RequestWindow
	}
	if s.MaxFailedAttempts <= 0 {
		s.MaxFailedAttempts = d.MaxFailedAttempts
	}
	if s.LockoutDuration <= 0 {
		s.LockoutDuration = d.LockoutDuration
	}
	if s.IdempotencyTTL <= 0 {
		s.IdempotencyTTL = d.IdempotencyTTL
	}
	return s
}
