package ledgerhttp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ListCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewListCache(client, time.Minute)
}

func TestListCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "", "")
	assert.False(t, ok)

	cache.Set(ctx, "", "", []byte(`[{"date":"2024-01-05"}]`))
	payload, ok := cache.Get(ctx, "", "")
	require.True(t, ok)
	assert.JSONEq(t, `[{"date":"2024-01-05"}]`, string(payload))

	// Ranges cache independently.
	_, ok = cache.Get(ctx, "2024-01-01", "2024-01-31")
	assert.False(t, ok)
}

func TestListCacheBumpInvalidates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "", "", []byte(`[]`))
	_, ok := cache.Get(ctx, "", "")
	require.True(t, ok)

	cache.Bump(ctx)

	_, ok = cache.Get(ctx, "", "")
	assert.False(t, ok, "a version bump hides every older key")

	cache.Set(ctx, "", "", []byte(`["fresh"]`))
	payload, ok := cache.Get(ctx, "", "")
	require.True(t, ok)
	assert.Equal(t, `["fresh"]`, string(payload))
}

func TestListCacheNilIsSafe(t *testing.T) {
	var cache *ListCache
	ctx := context.Background()

	_, ok := cache.Get(ctx, "", "")
	assert.False(t, ok)
	cache.Set(ctx, "", "", []byte(`[]`))
	cache.Bump(ctx)

	assert.Nil(t, NewListCache(nil, time.Minute))
}
