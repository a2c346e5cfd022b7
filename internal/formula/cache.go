package formula

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/autobidder/internal/tenant"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client or non-positive ttl disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete drops the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled() || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// CacheKey returns the tenant-scoped cache key of one formula.
func CacheKey(tenantID, id string) string {
	return tenant.PrefixKey(tenantID, "formula:"+id)
}

// CachedStore serves single-formula reads from Redis and invalidates on write.
// Cache failures degrade to the underlying store.
type CachedStore struct {
	Store
	Cache *Cache
}

// Get returns the cached definition or loads and caches it.
func (s CachedStore) Get(ctx context.Context, tenantID, id string) (Formula, error) {
	key := CacheKey(tenantID, id)
	var cached Formula
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	f, err := s.Store.Get(ctx, tenantID, id)
	if err != nil {
		return Formula{}, err
	}
	_ = s.Cache.SetJSON(ctx, key, f)
	return f, nil
}

// Update writes through and drops the cached copy.
func (s CachedStore) Update(ctx context.Context, f Formula) (Formula, error) {
	out, err := s.Store.Update(ctx, f)
	if err != nil {
		return Formula{}, err
	}
	_ = s.Cache.Delete(ctx, CacheKey(f.TenantID, f.ID))
	return out, nil
}

// Delete removes the record and its cached copy.
func (s CachedStore) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.Store.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	_ = s.Cache.Delete(ctx, CacheKey(tenantID, id))
	return nil
}
