package ledgerhttp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "quokka:entries:ver"

// ListCache caches rendered day listings in Redis. Every committed mutation
// bumps a version counter, so stale keys simply age out via TTL instead of
// being deleted individually.
type ListCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewListCache constructs a ListCache. A nil client disables caching.
func NewListCache(client *redis.Client, ttl time.Duration) *ListCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ListCache{client: client, ttl: ttl}
}

// Get returns the cached listing payload for a date range, if present.
func (c *ListCache) Get(ctx context.Context, from, to string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	key, err := c.key(ctx, from, to)
	if err != nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Set stores the listing payload for a date range.
func (c *ListCache) Set(ctx context.Context, from, to string, payload []byte) {
	if c == nil {
		return
	}
	key, err := c.key(ctx, from, to)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, payload, c.ttl)
}

// Bump invalidates every cached listing.
func (c *ListCache) Bump(ctx context.Context) {
	if c == nil {
		return
	}
	c.client.Incr(ctx, cacheVersionKey)
}

func (c *ListCache) key(ctx context.Context, from, to string) (string, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("quokka:entries:%d:%s|%s", ver, from, to), nil
}
