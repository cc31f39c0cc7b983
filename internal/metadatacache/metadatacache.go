// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metadatacache is a TTL cache for the two metadata probes the
generator needs to ground time-window and row-estimate phrasing:
MAX(date_col) per table and an approximate row count (n_live_tup). It is
backed by go-redis/v9 when configured, and degrades to a local
mutex-guarded map with manual expiry sweep when Redis is unavailable, so the
gateway never takes a hard dependency on Redis being present.
*/
package metadatacache

import (
	stdctx "context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the cache entry lifetime when the caller doesn't override it.
const DefaultTTL = 15 * time.Minute

// Cache is a TTL cache for metadata probe results, keyed by stable strings
// built from schema-qualified table and column names.
type Cache struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]entry
}

type entry struct {
	value     string
	expiresAt time.Time
}

// New constructs a Cache. A nil client selects the local in-process
// fallback.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl, local: make(map[string]entry)}
}

// MaxDateKey builds the stable cache key for a MAX(date_col) probe.
func MaxDateKey(table, dateColumn string) string {
	return fmt.Sprintf("metadata:max_date:%s:%s", table, dateColumn)
}

// RowEstimateKey builds the stable cache key for an n_live_tup row estimate.
func RowEstimateKey(table string) string {
	return fmt.Sprintf("metadata:row_estimate:%s", table)
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(ctx stdctx.Context, key string) (string, bool) {
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			return "", false
		}
		return val, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.local[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.local, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache) Set(ctx stdctx.Context, key, value string) error {
	if c.client != nil {
		return c.client.Set(ctx, key, value, c.ttl).Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = entry{value: value, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

// GetJSON unmarshals the cached value at key into dest.
func (c *Cache) GetJSON(ctx stdctx.Context, key string, dest any) (bool, error) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("metadatacache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals value and stores it under key with the cache's TTL.
func (c *Cache) SetJSON(ctx stdctx.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("metadatacache: encode %s: %w", key, err)
	}
	return c.Set(ctx, key, string(raw))
}

// InvalidateKey removes a single cache entry. Used for targeted probe
// invalidation when only one table's metadata is known to have changed.
func (c *Cache) InvalidateKey(ctx stdctx.Context, key string) error {
	if c.client != nil {
		return c.client.Del(ctx, key).Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.local, key)
	return nil
}

// InvalidateAll clears the entire cache. Satisfies scheduler.CacheInvalidator
// so the KB Scheduler can wipe stale metadata probes after every successful
// refresh, since a schema change can shift table row counts and date ranges.
func (c *Cache) InvalidateAll(ctx stdctx.Context) error {
	if c.client != nil {
		iter := c.client.Scan(ctx, 0, "metadata:*", 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return err
			}
		}
		return iter.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = make(map[string]entry)
	return nil
}

// SweepExpired removes expired entries from the local fallback map. A no-op
// when Redis-backed, since Redis handles expiry natively. Intended to be
// called periodically (e.g. from the same ticker that drives KB refresh) to
// bound the local map's size between invalidations.
func (c *Cache) SweepExpired() {
	if c.client != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.local {
		if now.After(e.expiresAt) {
			delete(c.local, k)
		}
	}
}
