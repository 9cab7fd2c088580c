// Package cache implements an optional Redis read-through cache for hot
// hybrid-search queries. It is enrichment only: every caller must still
// be correct when the cache is absent or cold.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached hybrid-search result stays valid
// before a fresh query is required.
const DefaultTTL = 2 * time.Minute

// Cache wraps a Redis client with a fixed key prefix and TTL for
// read-through caching of expensive, frequently-repeated lookups.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New builds a Cache from a Redis connection URL (redis://...). Returns
// an error if the initial ping fails, so a misconfigured cache is never
// silently used.
func New(ctx context.Context, url, prefix string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}, nil
}

func (c *Cache) key(k string) string { return c.prefix + ":" + k }

// Get decodes a cached value into dest. Returns (false, nil) on a cache
// miss, distinguishing it from a real error so callers fall through to
// the live path without treating a miss as failure.
func (c *Cache) Get(ctx context.Context, k string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(k)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal cached value for %q: %w", k, err)
	}
	return true, nil
}

// Set stores value under k with the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, k string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %q: %w", k, err)
	}
	return c.client.Set(ctx, c.key(k), data, c.ttl).Err()
}

// Invalidate evicts one cached entry, used by write paths that make a
// previously cached result stale.
func (c *Cache) Invalidate(ctx context.Context, k string) error {
	return c.client.Del(ctx, c.key(k)).Err()
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error { return c.client.Close() }
