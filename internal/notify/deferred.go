package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/queue"
)

// EmailTaskKind is the queue kind for notification emails sent by the worker.
const EmailTaskKind = "notification-email"

// Deferred implements events.Notifier by queueing the event id, keeping SMTP latency out of
// the request path. Only topics listed in Topics are queued; empty means all.
type Deferred struct {
	Queue       Enqueuer
	Kind        string
	Topics      []string
	MaxAttempts int
}

type eventRef struct {
	EventID string `json:"eventId"`
}

// Notify enqueues one task per event.
func (d Deferred) Notify(ctx context.Context, ev events.Event) error {
	if d.Queue == nil || !d.wants(ev.Topic) {
		return nil
	}
	kind := d.Kind
	if kind == "" {
		kind = EmailTaskKind
	}
	payload, err := json.Marshal(eventRef{EventID: ev.ID})
	if err != nil {
		return err
	}
	return d.Queue.Enqueue(ctx, queue.Task{
		Kind:           kind,
		TenantID:       ev.TenantID,
		Payload:        payload,
		IdempotencyKey: ev.ID,
		MaxAttempts:    d.MaxAttempts,
	})
}

func (d Deferred) wants(topic string) bool {
	if len(d.Topics) == 0 {
		return true
	}
	for _, t := range d.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// NotifierTask adapts a Notifier to a queue handler for tasks produced by Deferred.
// Events that no longer exist are dropped. Delivery is at least once: a retry after a
// partial failure may repeat messages that already went out.
func NotifierTask(src EventSource, n events.Notifier) queue.Handler {
	return func(ctx context.Context, t queue.Task) error {
		var ref eventRef
		if err := json.Unmarshal(t.Payload, &ref); err != nil || ref.EventID == "" {
			return nil
		}
		ev, err := src.Get(ctx, ref.EventID)
		if errors.Is(err, events.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("notify: load event %s: %w", ref.EventID, err)
		}
		return n.Notify(ctx, ev)
	}
}
