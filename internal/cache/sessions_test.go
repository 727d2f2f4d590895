package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheFixture(t *testing.T) (*SessionCache, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewSessionCache(client, 15*time.Minute), srv
}

func TestSessionCachePutGet(t *testing.T) {
	cache, _ := newCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "jti-1", "user-1"))

	userID, ok, err := cache.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)
}

func TestSessionCacheMiss(t *testing.T) {
	cache, _ := newCacheFixture(t)

	userID, ok, err := cache.Get(context.Background(), "never-cached")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, userID)
}

func TestSessionCacheEntryExpires(t *testing.T) {
	cache, srv := newCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "jti-1", "user-1"))

	ttl := srv.TTL("sess:jti-1")
	assert.Equal(t, 15*time.Minute, ttl, "entry never outlives the access token")

	srv.FastForward(16 * time.Minute)

	_, ok, err := cache.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionCacheInvalidate(t *testing.T) {
	cache, _ := newCacheFixture(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "jti-1", "user-1"))
	require.NoError(t, cache.Put(ctx, "jti-2", "user-1"))
	require.NoError(t, cache.Put(ctx, "jti-3", "user-2"))

	require.NoError(t, cache.Invalidate(ctx, "jti-1", "jti-2"))

	_, ok, err := cache.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cache.Get(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, ok)

	userID, ok, err := cache.Get(ctx, "jti-3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user-2", userID)
}

func TestSessionCacheInvalidateNothing(t *testing.T) {
	cache, _ := newCacheFixture(t)
	assert.NoError(t, cache.Invalidate(context.Background()))
}

func TestSessionCacheDefaultTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewSessionCache(client, 0)
	require.NoError(t, cache.Put(context.Background(), "jti-1", "user-1"))
	assert.Equal(t, 15*time.Minute, srv.TTL("sess:jti-1"))
}
