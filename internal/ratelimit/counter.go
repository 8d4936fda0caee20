// Package ratelimit implements fixed-window request counters.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter increments the hit count of key. A window opens at the first hit of
// a key and lasts window; the count restarts once it has elapsed. retryAfter
// is the time left until the current window closes.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, retryAfter time.Duration, err error)
}

// RedisCounter shares windows across every server instance.
type RedisCounter struct {
	client redis.UniversalClient
}

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

func redisKey(key string) string {
	return "ratelimit:" + key
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := redisKey(key)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis incr: %w", err)
	}

	count, left := incr.Val(), ttl.Val()
	// a negative ttl means the key has no expiry yet: this hit opened the window
	if count == 1 || left < 0 {
		if err := c.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis pexpire: %w", err)
		}
		left = window
	}
	return count, left, nil
}

type memoryWindow struct {
	start time.Time
	count int64
}

// MemoryCounter keeps windows in process memory. State is lost on restart and
// not shared between instances.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
	lastGC  time.Time
}

// NewMemoryCounter builds a counter; now may be nil to use the wall clock.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{windows: make(map[string]memoryWindow), now: now}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gc(now, window)

	w, ok := c.windows[key]
	if !ok || !now.Before(w.start.Add(window)) {
		w = memoryWindow{start: now}
	}
	w.count++
	c.windows[key] = w

	return w.count, w.start.Add(window).Sub(now), nil
}

// gc drops windows that ended; runs at most once per window.
func (c *MemoryCounter) gc(now time.Time, window time.Duration) {
	if now.Sub(c.lastGC) < window {
		return
	}
	c.lastGC = now
	for k, w := range c.windows {
		if !now.Before(w.start.Add(window)) {
			delete(c.windows, k)
		}
	}
}
