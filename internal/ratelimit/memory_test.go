package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterBurstThenRefill(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	limiter, err := NewMemoryLimiter(clk, 1, 3)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d", i)
	}

	res, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, time.Second, res.RetryAfter)

	other, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, other.Allowed)

	clk.Advance(time.Second)
	res, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
}

func TestMemoryLimiterReset(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	limiter, err := NewMemoryLimiter(clk, 1, 1)
	require.NoError(t, err)
	ctx := context.Background()

	res, _ := limiter.Allow(ctx, "k")
	require.True(t, res.Allowed)
	res, _ = limiter.Allow(ctx, "k")
	require.False(t, res.Allowed)

	limiter.Reset()
	res, _ = limiter.Allow(ctx, "k")
	require.True(t, res.Allowed)
}

func TestMemoryLimiterRejectsBadConfig(t *testing.T) {
	_, err := NewMemoryLimiter(nil, 0, 1)
	require.Error(t, err)
	_, err = NewMemoryLimiter(nil, 1, 0)
	require.Error(t, err)

	limiter, err := NewMemoryLimiter(nil, 1, 1)
	require.NoError(t, err)
	_, err = limiter.Allow(context.Background(), "")
	require.Error(t, err)
}

func TestNilLockerGrantsLocally(t *testing.T) {
	var locker *Locker
	ran := false
	err := locker.WithLock(context.Background(), "sweep", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestBucketTTL(t *testing.T) {
	require.Equal(t, 20*time.Second, defaultBucketTTL(1, 10))
	require.Equal(t, time.Second, defaultBucketTTL(100, 1))
	require.Equal(t, time.Second, defaultBucketTTL(0, 1))
	require.Equal(t, 2.5, castToFloat("2.5"))
	require.Equal(t, int64(1), castToInt(int64(1)))
}
