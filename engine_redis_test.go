package otpgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newRedisEngine(t *testing.T) (*Engine, *captureSender) {
	t.Helper()

	_, rdb := newTestRedis(t)
	sender := &captureSender{}

	engine, err := New().
		WithRedis(rdb).
		WithSender(sender).
		WithSettings(StaticSettings(testSettings())).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, sender
}

func TestRedisFullFlow(t *testing.T) {
	engine, sender := newRedisEngine(t)

	result, err := engine.RequestChallenge(context.Background(), requestFor("alice"))
	if err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}

	// A plain retry of the same request is absorbed.
	if _, err := engine.RequestChallenge(context.Background(), requestFor("alice")); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	code := sender.lastCode(t)
	verified, err := engine.Verify(context.Background(), verifyFor("alice", code))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if verified.ChallengeID != result.ChallengeID {
		t.Fatalf("challenge ID mismatch: %q vs %q", verified.ChallengeID, result.ChallengeID)
	}

	if _, err := engine.Verify(context.Background(), verifyFor("alice", code)); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("expected ErrNoActiveChallenge on replay, got %v", err)
	}
}

func TestRedisWrongCodeAndLockout(t *testing.T) {
	engine, sender := newRedisEngine(t)

	if _, err := engine.RequestChallenge(context.Background(), requestFor("bob")); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	code := sender.lastCode(t)
	bad := wrongCode(code)

	for i := 0; i < 5; i++ {
		if _, err := engine.Verify(context.Background(), verifyFor("bob", bad)); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
		}
	}

	if _, err := engine.Verify(context.Background(), verifyFor("bob", code)); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut, got %v", err)
	}
	if _, err := engine.RequestChallenge(context.Background(), requestFor("bob")); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected RequestChallenge to be rejected too, got %v", err)
	}
}

func TestRedisChallengeExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	sender := &captureSender{}

	engine, err := New().
		WithRedis(rdb).
		WithSender(sender).
		WithSettings(StaticSettings(testSettings())).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.RequestChallenge(context.Background(), requestFor("carol")); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	code := sender.lastCode(t)

	mr.FastForward(5*time.Minute + time.Second)

	if _, err := engine.Verify(context.Background(), verifyFor("carol", code)); !errors.Is(err, ErrNoActiveChallenge) {
		t.Fatalf("expected ErrNoActiveChallenge after expiry, got %v", err)
	}
}

func TestRedisRateLimitBudget(t *testing.T) {
	engine, _ := newRedisEngine(t)

	// Issuance attempts count against the budget whether or not they are
	// absorbed as duplicates.
	in := requestFor("dave")
	in.IdempotencyKey = "r1"
	if _, err := engine.RequestChallenge(context.Background(), in); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	in.IdempotencyKey = "r2"
	if _, err := engine.RequestChallenge(context.Background(), in); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	in.IdempotencyKey = "r3"
	if _, err := engine.RequestChallenge(context.Background(), in); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}

	in.IdempotencyKey = "r4"
	if _, err := engine.RequestChallenge(context.Background(), in); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
