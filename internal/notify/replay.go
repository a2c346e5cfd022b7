package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayGuard suppresses sending the same delivery twice within a TTL.
type ReplayGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisReplayGuard claims delivery keys with SET NX.
type RedisReplayGuard struct {
	Client *redis.Client
	Prefix string
}

func (g RedisReplayGuard) key(k string) string {
	if g.Prefix == "" {
		return "webhook:sent:" + k
	}
	return g.Prefix + ":webhook:sent:" + k
}

// Acquire returns false when the key was already claimed.
func (g RedisReplayGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.Client == nil {
		return true, nil
	}
	return g.Client.SetNX(ctx, g.key(key), time.Now().Unix(), ttl).Result()
}

// Release forgets the key so the delivery may be sent again.
func (g RedisReplayGuard) Release(ctx context.Context, key string) error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Del(ctx, g.key(key)).Err()
}
