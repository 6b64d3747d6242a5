package redistore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/store"
)

// lockoutLua counts one failure and trips the lockout as one atomic step.
// The counter's TTL lands in the same script as the INCR so a half-applied
// failure can never leave an immortal counter, and the threshold check runs
// before any other failure can slip in, so exactly one caller per crossing
// observes the trip.
// KEYS[1] = failure counter, KEYS[2] = lock key,
// ARGV[1] = max failures, ARGV[2] = lockout millis.
var lockoutLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = tonumber(ARGV[2])
if count == 1 and ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
if count < tonumber(ARGV[1]) then
  return 0
end
if ttl > 0 then
  redis.call('SET', KEYS[2], 1, 'PX', ttl)
else
  redis.call('SET', KEYS[2], 1)
end
redis.call('DEL', KEYS[1])
return 1
`)

// LockoutTracker keeps one failure counter and one lock key per principal.
// The counter carries a TTL equal to the lockout duration, so failures count
// within a rolling window and stale counters reclaim themselves; the lock key
// expiring is what ends the cooldown.
type LockoutTracker struct {
	redis  redis.UniversalClient
	prefix string
}

// NewLockoutTracker returns a tracker writing under the given key prefix.
func NewLockoutTracker(redisClient redis.UniversalClient, prefix string) *LockoutTracker {
	if prefix == "" {
		prefix = "olk"
	}
	return &LockoutTracker{redis: redisClient, prefix: prefix}
}

func (t *LockoutTracker) failKey(principalID string) string {
	return t.prefix + ":f:" + principalID
}

func (t *LockoutTracker) lockKey(principalID string) string {
	return t.prefix + ":l:" + principalID
}

// IsLocked reports whether the principal's lock key is still live.
func (t *LockoutTracker) IsLocked(ctx context.Context, principalID string) (bool, error) {
	n, err := t.redis.Exists(ctx, t.lockKey(principalID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure counts one failure and reports whether this call tripped the
// lockout. Counting, counter TTL, threshold check and trip are a single
// script, so concurrent failures are never lost and each threshold crossing
// trips exactly once.
func (t *LockoutTracker) RecordFailure(ctx context.Context, principalID string, maxFailures int, lockFor time.Duration) (bool, error) {
	if maxFailures <= 0 {
		return false, nil
	}

	result, err := lockoutLua.Run(ctx, t.redis,
		[]string{t.failKey(principalID), t.lockKey(principalID)},
		maxFailures,
		lockFor.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return result == 1, nil
}

// RecordSuccess resets the principal unconditionally.
func (t *LockoutTracker) RecordSuccess(ctx context.Context, principalID string) error {
	if err := t.redis.Del(ctx, t.failKey(principalID), t.lockKey(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}
