package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounterWindowOpensOnFirstHit(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 14, 0, 0, time.UTC)
	c := NewMemoryCounter(func() time.Time { return now })
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		n, retry, err := c.Incr(ctx, "otp:1.2.3.4", 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.Equal(t, 15*time.Minute, retry)
	}

	// crossing a quarter-hour boundary does not open a new window
	now = now.Add(2 * time.Minute)
	n, retry, err := c.Incr(ctx, "otp:1.2.3.4", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, 13*time.Minute, retry)

	// other keys are independent
	n, _, err = c.Incr(ctx, "otp:5.6.7.8", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	now = now.Add(13 * time.Minute)
	n, retry, err = c.Incr(ctx, "otp:1.2.3.4", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "count restarts once the window has elapsed")
	assert.Equal(t, 15*time.Minute, retry)
}

func TestMemoryCounterConcurrent(t *testing.T) {
	c := NewMemoryCounter(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.Incr(ctx, "k", time.Hour)
		}()
	}
	wg.Wait()

	n, _, err := c.Incr(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
}

func TestRedisKeyIsStable(t *testing.T) {
	assert.Equal(t, "ratelimit:send-otp:1.2.3.4", redisKey("send-otp:1.2.3.4"))
}
