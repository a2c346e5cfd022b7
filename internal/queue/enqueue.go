package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxAttempts applies when neither the task nor the Enqueuer sets one.
const DefaultMaxAttempts = 8

// Enqueuer publishes tasks to Redis sorted sets scored by their due time.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue schedules the task. Tasks sharing an idempotency key are accepted once
// until the first copy is acknowledged or the dedup window elapses.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	if !validKind(t.Kind) {
		return fmt.Errorf("queue: invalid task kind %q", t.Kind)
	}
	env := envelope{
		Kind:        t.Kind,
		TenantID:    t.TenantID,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		Attempt:     t.Attempt,
		MaxAttempts: e.maxAttempts(t.MaxAttempts),
		AvailableAt: time.Now().Add(t.Delay).UnixNano(),
	}
	keys := keyspace(e.Prefix)
	if env.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		fresh, err := e.R.SetNX(ctx, keys.dedup(env.Kind, env.Key), "1", ttl).Result()
		if err != nil {
			return fmt.Errorf("queue: dedup: %w", err)
		}
		if !fresh {
			return nil
		}
	}
	raw, err := env.encode()
	if err != nil {
		return err
	}
	if err := e.R.ZAdd(ctx, keys.ready(env.Kind), redis.Z{Score: float64(env.AvailableAt), Member: raw}).Err(); err != nil {
		return fmt.Errorf("queue: push: %w", err)
	}
	return nil
}

func (e Enqueuer) maxAttempts(task int) int {
	switch {
	case task > 0:
		return task
	case e.MaxAttempts > 0:
		return e.MaxAttempts
	default:
		return DefaultMaxAttempts
	}
}
