package memstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestIdempotencyFirstUseWins(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	store := NewIdempotencyStoreWithClock(func() time.Time { return current }, 0)

	fresh, err := store.TryUseKey(context.Background(), "s", "k", time.Minute)
	if err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}
	if !fresh {
		t.Fatal("first use must report fresh")
	}

	fresh, err = store.TryUseKey(context.Background(), "s", "k", time.Minute)
	if err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}
	if fresh {
		t.Fatal("second use within TTL must report duplicate")
	}
}

func TestIdempotencyExpiredKeyIsReusable(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	store := NewIdempotencyStoreWithClock(func() time.Time { return current }, 0)

	if _, err := store.TryUseKey(context.Background(), "s", "k", time.Minute); err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}

	current = current.Add(time.Minute + time.Second)

	fresh, err := store.TryUseKey(context.Background(), "s", "k", time.Minute)
	if err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}
	if !fresh {
		t.Fatal("expected key to be reusable after its TTL elapsed")
	}
}

func TestIdempotencyRemoveAllowsImmediateReuse(t *testing.T) {
	store := NewIdempotencyStore()

	if _, err := store.TryUseKey(context.Background(), "s", "k", time.Hour); err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}
	if err := store.RemoveKey(context.Background(), "s", "k"); err != nil {
		t.Fatalf("RemoveKey failed: %v", err)
	}

	fresh, err := store.TryUseKey(context.Background(), "s", "k", time.Hour)
	if err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}
	if !fresh {
		t.Fatal("expected key to be fresh after removal")
	}
}

func TestIdempotencyScopesAreIndependent(t *testing.T) {
	store := NewIdempotencyStore()

	if _, err := store.TryUseKey(context.Background(), "a", "k", time.Hour); err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}

	fresh, err := store.TryUseKey(context.Background(), "b", "k", time.Hour)
	if err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}
	if !fresh {
		t.Fatal("same key in another scope must be independent")
	}
}

func TestIdempotencyEmptyKeyNeverFresh(t *testing.T) {
	store := NewIdempotencyStore()

	fresh, err := store.TryUseKey(context.Background(), "s", "", time.Minute)
	if err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}
	if fresh {
		t.Fatal("empty key must never be treated as fresh")
	}
}

func TestIdempotencyZeroTTLDisablesSuppression(t *testing.T) {
	store := NewIdempotencyStore()

	for i := 0; i < 3; i++ {
		fresh, err := store.TryUseKey(context.Background(), "s", "k", 0)
		if err != nil {
			t.Fatalf("TryUseKey failed: %v", err)
		}
		if !fresh {
			t.Fatal("zero TTL must disable duplicate suppression")
		}
	}
}

func TestIdempotencyConcurrentOneWinner(t *testing.T) {
	store := NewIdempotencyStore()

	const callers = 64

	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := store.TryUseKey(context.Background(), "s", "race", time.Hour)
			if err != nil {
				t.Errorf("TryUseKey failed: %v", err)
				return
			}
			if fresh {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one fresh result, got %d", count)
	}
}

func TestIdempotencyCleanupDropsOldRecords(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	store := NewIdempotencyStoreWithClock(func() time.Time { return current }, 10*time.Minute)

	if _, err := store.TryUseKey(context.Background(), "s", "old", time.Minute); err != nil {
		t.Fatalf("TryUseKey failed: %v", err)
	}

	current = current.Add(11 * time.Minute)
	if err := store.CleanupExpiredKeys(context.Background(), "s"); err != nil {
		t.Fatalf("CleanupExpiredKeys failed: %v", err)
	}

	store.mu.Lock()
	_, exists := store.records[scopedKey("s", "old")]
	store.mu.Unlock()
	if exists {
		t.Fatal("expected cleanup to drop the record past the horizon")
	}
}
