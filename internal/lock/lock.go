// Package lock provides Redis-backed mutual exclusion across worker processes.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by TryWithLock when another owner holds the key.
var ErrHeld = errors.New("lock: held by another owner")

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker acquires leases with SET NX PX and a random owner token.
type Locker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
}

// WithLock waits for the lease on key, runs fn, then releases the lease.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	return l.run(ctx, key, ttl, true, fn)
}

// TryWithLock runs fn only if the lease is free right now, otherwise it returns ErrHeld.
func (l Locker) TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	return l.run(ctx, key, ttl, false, fn)
}

func (l Locker) run(ctx context.Context, key string, ttl time.Duration, wait bool, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	full := l.key(key)
	token := uuid.NewString()
	for {
		ok, err := l.R.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if !wait {
			return ErrHeld
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.R, []string{full}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) key(k string) string {
	if l.Prefix == "" {
		return "lock:" + k
	}
	return l.Prefix + ":lock:" + k
}
