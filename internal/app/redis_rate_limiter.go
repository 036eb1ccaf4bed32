package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRateLimitPrefix = "payments:rate_limit"

// intentWindowScript bumps the per-user counter, opening the window on the first
// hit, and returns the count with the whole seconds left in the window.
var intentWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local remaining = redis.call("PTTL", KEYS[1])
if remaining < 0 then
  remaining = tonumber(ARGV[1])
end
local seconds = math.ceil(remaining / 1000)
if seconds < 1 then
  seconds = 1
end
return {hits, seconds}
`)

// RedisRateLimiter counts intent attempts per user in fixed Redis windows, so the
// quota holds across every replica of the service.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimiter creates a limiter whose keys live under prefix.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// ConsumeRateLimit records one attempt and reports the attempts seen in the current
// window. A nil limiter, missing client or non-positive limit disables counting.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	windowMs := max(window.Milliseconds(), int64(time.Second/time.Millisecond))

	values, err := intentWindowScript.Run(ctx, r.client, []string{r.key(scope, subject)}, windowMs).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values", len(values))
	}
	return int(values[0]), int(values[1]), nil
}

func (r *RedisRateLimiter) key(scope, subject string) string {
	return r.prefix + ":" + scope + ":" + subject
}
