// Package ratelimit caps how many AI generations a single user can trigger
// in a rolling window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter reports whether key may make another request now. An allowed
// request is counted against the key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Unlimited never refuses.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

// MemoryLimiter is a per-key token bucket: a key starts with `requests`
// tokens and regains one every window/requests. It approximates the rolling
// window and does not survive restarts.
type MemoryLimiter struct {
	mu       sync.Mutex
	m        map[string]*rate.Limiter
	requests int
	window   time.Duration
}

func NewMemory(requests int, window time.Duration) *MemoryLimiter {
	if requests <= 0 {
		requests = 30
	}
	if window <= 0 {
		window = time.Hour
	}
	return &MemoryLimiter{
		m:        make(map[string]*rate.Limiter),
		requests: requests,
		window:   window,
	}
}

func (p *MemoryLimiter) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(p.window/time.Duration(p.requests)), p.requests)
	p.m[key] = l
	return l
}

func (p *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return p.get(key).Allow(), nil
}

// RedisLimiter is an exact sliding window kept in a sorted set per key,
// shared by every process pointed at the same Redis.
type RedisLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
	now      func() time.Time
}

func NewRedis(client *redis.Client, requests int, window time.Duration) *RedisLimiter {
	if requests <= 0 {
		requests = 30
	}
	if window <= 0 {
		window = time.Hour
	}
	return &RedisLimiter{client: client, requests: requests, window: window, now: time.Now}
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("groupchat:ratelimit:%s", key)
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	windowStart := now.Add(-l.window)
	rkey := rateLimitKey(key)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	if countCmd.Val() >= int64(l.requests) {
		return false, nil
	}

	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, rkey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, rkey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit record failed: %w", err)
	}
	return true, nil
}
