package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisAvailabilityCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	cache := NewRedisAvailabilityCache(client)
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, 1, "daily:none")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, 1, "daily:x", []byte(`[{"room_type_id":10}]`), time.Minute))

		got, ok, err := cache.Get(ctx, 1, "daily:x")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `[{"room_type_id":10}]`, string(got))
	})

	t.Run("TTL", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, 3, "hourly:x", []byte("v"), time.Minute))
		s.FastForward(2 * time.Minute)

		_, ok, err := cache.Get(ctx, 3, "hourly:x")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("InvalidateIsPerHotel", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, 1, "daily:y", []byte("a"), time.Minute))
		require.NoError(t, cache.Set(ctx, 2, "daily:y", []byte("b"), time.Minute))

		require.NoError(t, cache.Invalidate(ctx, 1))

		_, ok, err := cache.Get(ctx, 1, "daily:y")
		require.NoError(t, err)
		assert.False(t, ok)

		got, ok, err := cache.Get(ctx, 2, "daily:y")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("b"), got)
	})

	t.Run("Unavailable", func(t *testing.T) {
		s.SetError("LOADING")
		defer s.SetError("")

		_, _, err := cache.Get(ctx, 1, "daily:x")
		assert.Error(t, err)
	})

	require.NoError(t, Ping(ctx, client))
}
