package otpgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/internal/memstore"
	"github.com/otpgate/otpgate/store"
)

// fakeClock is a settable clock shared between the engine and its stores so
// tests can travel past code TTLs and lockout deadlines.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// captureSender records every delivery so tests can read the plaintext code.
type captureSender struct {
	mu      sync.Mutex
	targets []string
	codes   []string
	err     error
}

func (s *captureSender) Send(_ context.Context, target, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, target)
	s.codes = append(s.codes, code)
	return s.err
}

func (s *captureSender) lastCode(t *testing.T) string {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		t.Fatal("no code was delivered")
	}
	return s.codes[len(s.codes)-1]
}

func (s *captureSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

func testSettings() ChallengeSettings {
	return ChallengeSettings{
		CodeLength:              6,
		CodeTTL:                 5 * time.Minute,
		HashKey:                 []byte("0123456789abcdef0123456789abcdef"),
		MaxRequestsPerPrincipal: 3,
		MaxRequestsPerIP:        10,
		RequestWindow:           5 * time.Minute,
		MaxFailedAttempts:       5,
		LockoutDuration:         15 * time.Minute,
		IdempotencyTTL:          time.Minute,
	}
}

// newMemEngine builds an engine on the in-process backing with every clock
// pinned to the returned fakeClock.
func newMemEngine(t *testing.T, opts ...func(*Builder)) (*Engine, *captureSender, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	sender := &captureSender{}

	builder := New().
		WithSender(sender).
		WithSettings(StaticSettings(testSettings())).
		WithRateLimiter(memstore.NewRateLimiterWithClock(clock.Now)).
		WithIdempotencyStore(memstore.NewIdempotencyStoreWithClock(clock.Now, 0)).
		WithLockoutTracker(memstore.NewLockoutTrackerWithClock(clock.Now)).
		WithChallengeStore(memstore.NewChallengeStoreWithClock(clock.Now))
	for _, opt := range opts {
		opt(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	engine.now = clock.Now
	t.Cleanup(engine.Close)

	return engine, sender, clock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func requestFor(principal string) RequestChallengeInput {
	return RequestChallengeInput{
		PrincipalID:   principal,
		ChannelTarget: "+15550100",
		Client:        ClientContext{IP: "10.0.0.1", UserAgent: "cli/1.0"},
	}
}

func verifyFor(principal, code string) VerifyInput {
	return VerifyInput{
		PrincipalID: principal,
		Code:        code,
		Client:      ClientContext{IP: "10.0.0.1", UserAgent: "cli/1.0"},
	}
}

// swappableSettings is a hot-reloadable SettingsProvider.
type swappableSettings struct {
	mu      sync.Mutex
	current ChallengeSettings
}

func (s *swappableSettings) ChallengeSettings() ChallengeSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *swappableSettings) swap(next ChallengeSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
}

var errBackendDown = errors.New("backend down")

// failingLockouts errors on every call, for fail-closed paths.
type failingLockouts struct{}

func (failingLockouts) IsLocked(context.Context, string) (bool, error) {
	return false, errBackendDown
}

func (failingLockouts) RecordFailure(context.Context, string, int, time.Duration) (bool, error) {
	return false, errBackendDown
}

func (failingLockouts) RecordSuccess(context.Context, string) error {
	return errBackendDown
}

// failingIdempotency errors on every call, for the fail-open path.
type failingIdempotency struct{}

func (failingIdempotency) TryUseKey(context.Context, string, string, time.Duration) (bool, error) {
	return false, errBackendDown
}

func (failingIdempotency) RemoveKey(context.Context, string, string) error {
	return errBackendDown
}

func (failingIdempotency) CleanupExpiredKeys(context.Context, string) error {
	return errBackendDown
}

// failingChallenges errors on every call.
type failingChallenges struct{}

func (failingChallenges) SetState(context.Context, store.Record) error {
	return errBackendDown
}

func (failingChallenges) GetState(context.Context, string) (*store.Record, error) {
	return nil, errBackendDown
}

func (failingChallenges) ClearState(context.Context, string, string) (bool, error) {
	return false, errBackendDown
}
