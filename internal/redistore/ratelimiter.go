package redistore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/store"
)

// rateLimitLua performs check-then-count as one atomic step. The cap check
// happens before the increment so a limited key stops growing: repeated
// rejected calls neither extend the window nor inflate the counter.
// KEYS[1] = counter key, ARGV[1] = max attempts, ARGV[2] = period millis.
var rateLimitLua = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 1
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// RateLimiter is a fixed-window counter over shared Redis keys.
type RateLimiter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRateLimiter returns a limiter writing under the given key prefix.
func NewRateLimiter(redisClient redis.UniversalClient, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "orl"
	}
	return &RateLimiter{redis: redisClient, prefix: prefix}
}

func (l *RateLimiter) key(k string) string {
	return l.prefix + ":" + k
}

// IsRateLimited counts one attempt for key and reports whether the budget is
// exhausted for the still-open window.
func (l *RateLimiter) IsRateLimited(ctx context.Context, key string, maxAttempts int, period time.Duration) (bool, error) {
	if maxAttempts <= 0 || period <= 0 {
		return false, nil
	}

	result, err := rateLimitLua.Run(ctx, l.redis,
		[]string{l.key(key)},
		maxAttempts,
		period.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return result == 1, nil
}
