// Package authzcache is an optional read-through cache for resolved
// permission verdicts, read only by the administrative HTTP surface's
// GET /api/v1/pages/:id/access lookup. The gateway's own authorization checks run
// inside the transaction that gates the mutation and MUST NOT consult this
// cache, matching the core's "no cached permissions" rule.
package authzcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jmougeot/alarm-server/internal/authz"
)

const (
	keyPrefix = "authz"
	ttl       = 5 * time.Minute
)

func cacheKey(userID, pageID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, userID, pageID)
}

// Cache is a Valkey-backed store of resolved Verdicts.
type Cache struct {
	rdb *redis.Client
}

// New creates a verdict cache backed by the given Valkey client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Get returns a cached verdict, or ok=false on a cache miss.
func (c *Cache) Get(ctx context.Context, userID, pageID uuid.UUID) (authz.Verdict, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(userID, pageID)).Bytes()
	if err != nil {
		return authz.Verdict{}, false
	}
	var v authz.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return authz.Verdict{}, false
	}
	return v, true
}

// Set stores a resolved verdict with a short TTL.
func (c *Cache) Set(ctx context.Context, userID, pageID uuid.UUID, v authz.Verdict) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(userID, pageID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set cached verdict: %w", err)
	}
	return nil
}

// InvalidatePage drops every cached verdict for a page by scanning the
// userID:pageID keyspace. Used after share_page/unshare_page commits so the
// admin surface does not serve a stale verdict for the TTL window.
func (c *Cache) InvalidatePage(ctx context.Context, pageID uuid.UUID) error {
	pattern := fmt.Sprintf("%s:*:%s", keyPrefix, pageID)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached verdicts: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached verdicts: %w", err)
	}
	return nil
}
