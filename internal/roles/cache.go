package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "keystone:role:features:"

// Cache holds role feature-id lists in Redis. Only ids are stored, so a
// cache hit yields unmaterialized refs that the resolver must complete.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached feature-id list for a role, or ok=false on miss.
func (c *Cache) Get(ctx context.Context, roleName string) ([]int64, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKeyPrefix+roleName).Bytes()
	if err != nil {
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// Set stores the feature-id list for a role.
func (c *Cache) Set(ctx context.Context, roleName string, ids []int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+roleName, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("roles: cache set %q: %w", roleName, err)
	}
	return nil
}

// Invalidate drops the cached entries for the given roles.
func (c *Cache) Invalidate(ctx context.Context, roleNames ...string) {
	if c == nil || c.client == nil || len(roleNames) == 0 {
		return
	}
	keys := make([]string, len(roleNames))
	for i, name := range roleNames {
		keys[i] = cacheKeyPrefix + name
	}
	_ = c.client.Del(ctx, keys...).Err()
}
