package app

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisRateLimiter_DisabledInputs(t *testing.T) {
	var nilLimiter *RedisRateLimiter
	if count, retry, err := nilLimiter.ConsumeRateLimit(context.Background(), "s", "u", 1, time.Minute); err != nil || count != 0 || retry != 0 {
		t.Fatalf("nil limiter should be a no-op, got %d %d %v", count, retry, err)
	}

	limiter := NewRedisRateLimiter(nil, "")
	if limiter.prefix != "payments:rate_limit" {
		t.Fatalf("unexpected default prefix %q", limiter.prefix)
	}
	if count, _, err := limiter.ConsumeRateLimit(context.Background(), "s", "u", 1, time.Minute); err != nil || count != 0 {
		t.Fatalf("limiter without client should be a no-op, got %d %v", count, err)
	}
}

func TestRedisRateLimiter_KeyLayout(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, " shop:limits: ")
	if got := limiter.key("payment_intent_create", "user-1"); got != "shop:limits:payment_intent_create:user-1" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRedisRateLimiter_CountsWithinWindow(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	limiter := NewRedisRateLimiter(client, "payments:test")
	subject := fmt.Sprintf("user-%d", time.Now().UnixNano())
	for want := 1; want <= 3; want++ {
		count, retry, err := limiter.ConsumeRateLimit(context.Background(), "intent", subject, 2, time.Minute)
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if count != want || retry < 1 {
			t.Fatalf("expected count %d with retry-after, got %d %d", want, count, retry)
		}
	}
}
