package redistore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/store"
)

// IdempotencyStore deduplicates (scope, key) pairs with SET NX plus a TTL.
// SET NX is the atomic insert-if-absent: when many callers race on a fresh
// or just-expired key, Redis hands exactly one of them the true result.
type IdempotencyStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewIdempotencyStore returns a store writing under the given key prefix.
func NewIdempotencyStore(redisClient redis.UniversalClient, prefix string) *IdempotencyStore {
	if prefix == "" {
		prefix = "oik"
	}
	return &IdempotencyStore{redis: redisClient, prefix: prefix}
}

func (s *IdempotencyStore) key(scope, key string) string {
	if scope == "" {
		scope = "default"
	}
	return s.prefix + ":" + scope + ":" + key
}

// TryUseKey reports true exactly once per (scope, key) per TTL window.
func (s *IdempotencyStore) TryUseKey(ctx context.Context, scope, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, nil
	}
	if ttl <= 0 {
		return true, nil
	}

	ok, err := s.redis.SetNX(ctx, s.key(scope, key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return ok, nil
}

// RemoveKey clears the record unconditionally, allowing immediate reuse.
func (s *IdempotencyStore) RemoveKey(ctx context.Context, scope, key string) error {
	if key == "" {
		return nil
	}

	if err := s.redis.Del(ctx, s.key(scope, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// CleanupExpiredKeys is a no-op: records carry native TTLs and Redis reclaims
// them itself.
func (s *IdempotencyStore) CleanupExpiredKeys(context.Context, string) error {
	return nil
}
