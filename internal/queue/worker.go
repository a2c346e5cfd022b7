package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autobidder/internal/resilience"
)

var nopLogger = zerolog.Nop()

// Handler processes one task. A returned error schedules a retry.
type Handler func(ctx context.Context, t Task) error

// Worker consumes tasks of a single kind. Claimed tasks sit in a processing set
// until acknowledged so they are redelivered if the worker dies mid-task.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	// SoftDeadline bounds each handler call. Defaults to VisibilityTimeout.
	SoftDeadline time.Duration
	RetryBase    time.Duration
	RetryJitter  float64
	PollInterval time.Duration
	Handler      Handler
	// Store receives tasks that exhausted their attempts. Optional.
	Store  Store
	Logger *zerolog.Logger
}

// Run processes tasks until ctx is cancelled and waits for in-flight handlers.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	if !validKind(w.Kind) {
		return fmt.Errorf("queue: invalid worker kind %q", w.Kind)
	}
	w = w.withDefaults()
	keys := keyspace(w.Prefix)
	ready, processing := keys.ready(w.Kind), keys.processing(w.Kind)

	sem := make(chan struct{}, w.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	reclaim := time.NewTicker(w.VisibilityTimeout / 2)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reclaim.C:
			if err := w.reclaimExpired(ctx, ready, processing); err != nil && ctx.Err() == nil {
				w.log().Warn().Err(err).Str("kind", w.Kind).Msg("queue reclaim failed")
			}
			continue
		case sem <- struct{}{}:
		}

		env, raw, ok, err := w.claim(ctx, ready, processing)
		if err != nil || !ok {
			<-sem
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				w.log().Warn().Err(err).Str("kind", w.Kind).Msg("queue claim failed")
			}
			w.sleep(ctx, w.PollInterval)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, ready, processing, raw, env)
		}()
	}
}

func (w Worker) withDefaults() Worker {
	if w.Concurrency <= 0 {
		w.Concurrency = 1
	}
	if w.VisibilityTimeout <= 0 {
		w.VisibilityTimeout = 30 * time.Second
	}
	if w.SoftDeadline <= 0 || w.SoftDeadline > w.VisibilityTimeout {
		w.SoftDeadline = w.VisibilityTimeout
	}
	if w.RetryBase <= 0 {
		w.RetryBase = 200 * time.Millisecond
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 50 * time.Millisecond
	}
	return w
}

// claim moves the next due task into the processing set.
func (w Worker) claim(ctx context.Context, ready, processing string) (envelope, string, bool, error) {
	now := time.Now().UnixNano()
	due, err := w.R.ZRangeByScore(ctx, ready, &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now, 10), Count: 1}).Result()
	if err != nil || len(due) == 0 {
		return envelope{}, "", false, ignoreNil(err)
	}
	removed, err := w.R.ZRem(ctx, ready, due[0]).Result()
	if err != nil || removed == 0 {
		// another worker won the race
		return envelope{}, "", false, ignoreNil(err)
	}
	env, err := decodeEnvelope(due[0])
	if err != nil {
		w.log().Error().Err(err).Str("kind", w.Kind).Msg("dropping undecodable task")
		return envelope{}, "", false, nil
	}
	env.Attempt++
	raw, err := env.encode()
	if err != nil {
		return envelope{}, "", false, err
	}
	deadline := time.Now().Add(w.VisibilityTimeout).UnixNano()
	if err := w.R.ZAdd(ctx, processing, redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
		return envelope{}, "", false, err
	}
	return env, raw, true, nil
}

func (w Worker) process(ctx context.Context, ready, processing, raw string, env envelope) {
	jobCtx, cancel := context.WithTimeout(ctx, w.SoftDeadline)
	err := w.Handler(jobCtx, env.task())
	cancel()

	// bookkeeping must survive shutdown of the parent context
	bg := context.WithoutCancel(ctx)
	_ = w.R.ZRem(bg, processing, raw).Err()
	if err == nil {
		w.observe("ok")
		if env.Key != "" {
			_ = w.R.Del(bg, keyspace(w.Prefix).dedup(env.Kind, env.Key)).Err()
		}
		return
	}
	env.LastError = err.Error()
	if env.MaxAttempts > 0 && env.Attempt >= env.MaxAttempts {
		w.observe("dead")
		w.bury(bg, env)
		return
	}
	w.observe("retry")
	delay := resilience.Backoff(w.RetryBase, env.Attempt, w.RetryJitter)
	env.AvailableAt = time.Now().Add(delay).UnixNano()
	w.log().Warn().Err(err).
		Str("kind", env.Kind).
		Str("tenant_id", env.TenantID).
		Int("attempt", env.Attempt).
		Dur("retry_in", delay).
		Msg("task failed")
	if next, encErr := env.encode(); encErr == nil {
		_ = w.R.ZAdd(bg, ready, redis.Z{Score: float64(env.AvailableAt), Member: next}).Err()
	}
}

// bury hands an exhausted task to the dead-letter store and frees its idempotency key.
func (w Worker) bury(ctx context.Context, env envelope) {
	logger := w.log()
	logger.Error().
		Str("kind", env.Kind).
		Str("tenant_id", env.TenantID).
		Int("attempts", env.Attempt).
		Str("last_error", env.LastError).
		Msg("task moved to dead letters")
	if env.Key != "" {
		_ = w.R.Del(ctx, keyspace(w.Prefix).dedup(env.Kind, env.Key)).Err()
	}
	if w.Store == nil {
		return
	}
	raw, err := env.encode()
	if err != nil {
		return
	}
	lastErr := env.LastError
	if _, err := w.Store.Insert(ctx, DeadLetter{
		Kind:           env.Kind,
		TenantID:       env.TenantID,
		IdempotencyKey: env.Key,
		Payload:        []byte(raw),
		Attempts:       env.Attempt,
		LastError:      &lastErr,
	}); err != nil {
		logger.Error().Err(err).Str("kind", env.Kind).Msg("persist dead letter")
		return
	}
	if QueueDLQSize != nil {
		QueueDLQSize.WithLabelValues(env.Kind).Inc()
	}
}

// reclaimExpired returns tasks whose visibility timeout elapsed to the ready set.
func (w Worker) reclaimExpired(ctx context.Context, ready, processing string) error {
	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	expired, err := w.R.ZRangeByScore(ctx, processing, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return ignoreNil(err)
	}
	for _, raw := range expired {
		removed, err := w.R.ZRem(ctx, processing, raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		env, err := decodeEnvelope(raw)
		if err != nil {
			continue
		}
		env.AvailableAt = time.Now().UnixNano()
		next, err := env.encode()
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, ready, redis.Z{Score: float64(env.AvailableAt), Member: next}).Err()
	}
	return nil
}

func (w Worker) observe(status string) {
	if QueueProcessedTotal != nil {
		QueueProcessedTotal.WithLabelValues(w.Kind, status).Inc()
	}
}

func (w Worker) log() *zerolog.Logger {
	if w.Logger == nil {
		return &nopLogger
	}
	return w.Logger
}

func (w Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
