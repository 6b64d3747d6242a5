package otpgate

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func collectEvents(sink *ChannelSink) []AuditEvent {
	var events []AuditEvent
	for {
		select {
		case event := <-sink.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestAuditEventsForChallengeLifecycle(t *testing.T) {
	sink := NewChannelSink(64)
	engine, sender, _ := newMemEngine(t, func(b *Builder) {
		b.WithAuditSink(sink)
	})

	if _, err := engine.RequestChallenge(context.Background(), requestFor("alice")); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	if _, err := engine.Verify(context.Background(), verifyFor("alice", sender.lastCode(t))); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// Close drains the dispatcher before we read.
	engine.Close()

	events := collectEvents(sink)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}

	request := events[0]
	if request.EventType != EventChallengeRequest || !request.Success {
		t.Fatalf("unexpected request event: %+v", request)
	}
	if request.PrincipalID != "alice" || request.ChallengeID == "" || request.IP != "10.0.0.1" {
		t.Fatalf("unexpected request event fields: %+v", request)
	}

	verify := events[1]
	if verify.EventType != EventChallengeVerify || !verify.Success {
		t.Fatalf("unexpected verify event: %+v", verify)
	}
	if verify.ChallengeID != request.ChallengeID {
		t.Fatal("verify event must carry the consumed challenge ID")
	}
}

func TestAuditEventsNeverContainTheCode(t *testing.T) {
	sink := NewChannelSink(64)
	engine, sender, _ := newMemEngine(t, func(b *Builder) {
		b.WithAuditSink(sink)
	})

	if _, err := engine.RequestChallenge(context.Background(), requestFor("alice")); err != nil {
		t.Fatalf("RequestChallenge failed: %v", err)
	}
	code := sender.lastCode(t)
	engine.Close()

	for _, event := range collectEvents(sink) {
		raw, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if strings.Contains(string(raw), code) {
			t.Fatalf("audit event leaks the code: %s", raw)
		}
	}
}

func TestAuditLockoutTrippedEvent(t *testing.T) {
	sink := NewChannelSink(64)
	engine, sender, _ := newMemEngine(t, func(b *Builder) {
		b.WithAuditSink(sink)
	})

	code := issueChallenge(t, engine, sender, "alice", "req-1")
	bad := wrongCode(code)
	for i := 0; i < 5; i++ {
		if _, err := engine.Verify(context.Background(), verifyFor("alice", bad)); err == nil {
			t.Fatal("expected the wrong code to fail")
		}
	}
	engine.Close()

	found := false
	for _, event := range collectEvents(sink) {
		if event.EventType == EventLockoutTripped {
			found = true
			if event.PrincipalID != "alice" {
				t.Fatalf("unexpected lockout event: %+v", event)
			}
		}
	}
	if !found {
		t.Fatal("expected a lockout tripped event")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp:   time.Unix(1_700_000_000, 0),
		EventType:   EventChallengeRequest,
		PrincipalID: "alice",
		Success:     true,
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: EventChallengeVerify,
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var decoded AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.EventType != EventChallengeRequest || decoded.PrincipalID != "alice" || !decoded.Success {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

// blockingSink parks inside Emit until released, to force dispatcher
// backpressure deterministically.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, AuditEvent) {
	s.entered <- struct{}{}
	<-s.release
}

func TestAuditDispatcherDropsUnderBackpressure(t *testing.T) {
	sink := &blockingSink{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event is picked up by the dispatcher goroutine and parks in
	// the sink; the second fills the buffer; the third has nowhere to go.
	d.Emit(context.Background(), AuditEvent{EventType: "one"})
	<-sink.entered
	d.Emit(context.Background(), AuditEvent{EventType: "two"})
	d.Emit(context.Background(), AuditEvent{EventType: "three"})

	if got := d.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped event, got %d", got)
	}

	close(sink.release)
	d.Close()
}

func TestAuditDisabledDispatcherIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, nil)
	if d != nil {
		t.Fatal("expected no dispatcher when audit is disabled")
	}

	// Nil dispatcher methods are safe.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}
