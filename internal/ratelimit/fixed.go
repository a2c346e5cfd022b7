package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule limiter to Allower.
type FixedWindow struct {
	Limiter *limiter.Limiter
}

// NewFixedWindow builds a fixed window limiter of limit events per period, stored in Redis.
func NewFixedWindow(client *redis.Client, prefix string, limit int64, period time.Duration) (FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   prefix,
		MaxRetry: 3,
	})
	if err != nil {
		return FixedWindow{}, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return FixedWindow{Limiter: limiter.New(store, limiter.Rate{Period: period, Limit: limit})}, nil
}

// NewFixedWindowInMemory is a process-local variant for tests and single instance deployments.
func NewFixedWindowInMemory(limit int64, period time.Duration) FixedWindow {
	store := limitermemory.NewStore()
	return FixedWindow{Limiter: limiter.New(store, limiter.Rate{Period: period, Limit: limit})}
}

// Allow records one event for key.
func (f FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	if f.Limiter == nil {
		return Decision{Allowed: true}, nil
	}
	lc, err := f.Limiter.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: fixed window: %w", err)
	}
	return Decision{
		Allowed:   !lc.Reached,
		Limit:     int(lc.Limit),
		Remaining: int(lc.Remaining),
		Reset:     time.Unix(lc.Reset, 0),
	}, nil
}
