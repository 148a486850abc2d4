package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDel(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	require.NoError(t, c.Del(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	// удаление несуществующего ключа — no-op
	require.NoError(t, c.Del(ctx, "missing"))
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}

func TestProviderMinuteKey(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	require.Equal(t, "rl:provider:sweettracker:202503040506", ProviderMinuteKey("sweettracker", now))
}
