package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/lock"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/queue"
	"github.com/noah-isme/autobidder/internal/resilience"
)

// DeliveryTaskKind is the queue kind consumed by the delivery worker.
const DeliveryTaskKind = "webhook-delivery"

const maxResponseBody = 4 << 10

// Enqueuer schedules background tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// EventSource loads persisted domain events.
type EventSource interface {
	Get(ctx context.Context, id string) (events.Event, error)
}

// Locker serialises work on a key across workers.
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Dispatcher fans events out to tenant webhooks. Schedule runs in the API process
// and enqueues one task per endpoint; HandleTask runs in the worker and delivers it.
type Dispatcher struct {
	Endpoints   EndpointStore
	Events      EventSource
	Queue       Enqueuer
	HTTP        *resilience.HTTPClient
	Replay      ReplayGuard
	ReplayTTL   time.Duration
	Locker      Locker
	LockTTL     time.Duration
	MaxAttempts int
	UserAgent   string
	Logger      zerolog.Logger
}

type deliveryRef struct {
	EndpointID string `json:"endpointId"`
	EventID    string `json:"eventId"`
}

// DeliveryID derives the stable idempotency key receivers see for an endpoint and event.
func DeliveryID(endpointID, eventID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(endpointID+"/"+eventID)).String()
}

// Schedule implements events.DeliveryScheduler.
func (d *Dispatcher) Schedule(ctx context.Context, ev events.Event) error {
	if d == nil || d.Endpoints == nil || d.Queue == nil {
		return nil
	}
	endpoints, err := d.Endpoints.ActiveForTopic(ctx, ev.TenantID, ev.Topic)
	if err != nil {
		return fmt.Errorf("notify: list endpoints: %w", err)
	}
	var joined error
	for _, ep := range endpoints {
		payload, err := json.Marshal(deliveryRef{EndpointID: ep.ID, EventID: ev.ID})
		if err != nil {
			return err
		}
		if err := d.Queue.Enqueue(ctx, queue.Task{
			Kind:           DeliveryTaskKind,
			TenantID:       ev.TenantID,
			Payload:        payload,
			IdempotencyKey: DeliveryID(ep.ID, ev.ID),
			MaxAttempts:    d.MaxAttempts,
		}); err != nil {
			joined = errors.Join(joined, fmt.Errorf("notify: enqueue delivery to %s: %w", ep.ID, err))
		}
	}
	return joined
}

// HandleTask delivers one queued webhook. Returning an error makes the queue retry it.
func (d *Dispatcher) HandleTask(ctx context.Context, t queue.Task) error {
	var ref deliveryRef
	if err := json.Unmarshal(t.Payload, &ref); err != nil || ref.EndpointID == "" || ref.EventID == "" {
		d.Logger.Error().Err(err).Str("tenant_id", t.TenantID).Msg("discarding malformed delivery task")
		return nil
	}
	deliver := func(ctx context.Context) error { return d.deliverRef(ctx, t, ref) }
	if d.Locker == nil {
		return deliver(ctx)
	}
	ttl := d.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return d.Locker.TryWithLock(ctx, "delivery:"+DeliveryID(ref.EndpointID, ref.EventID), ttl, deliver)
}

func (d *Dispatcher) deliverRef(ctx context.Context, t queue.Task, ref deliveryRef) error {
	logger := d.Logger.With().
		Str("tenant_id", t.TenantID).
		Str("endpoint_id", ref.EndpointID).
		Str("event_id", ref.EventID).
		Int("attempt", t.Attempt).
		Logger()

	ep, err := d.Endpoints.Get(ctx, t.TenantID, ref.EndpointID)
	if errors.Is(err, ErrNotFound) || (err == nil && !ep.Active) {
		logger.Info().Msg("endpoint removed or disabled, dropping delivery")
		countDelivery("dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: load endpoint: %w", err)
	}
	ev, err := d.Events.Get(ctx, ref.EventID)
	if errors.Is(err, events.ErrNotFound) {
		logger.Warn().Msg("event missing, dropping delivery")
		countDelivery("dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: load event: %w", err)
	}

	status, err := d.Deliver(ctx, ep, ev)
	if err != nil {
		logger.Warn().Err(err).Int("status", status).Msg("webhook delivery failed")
		return err
	}
	logger.Info().Int("status", status).Msg("webhook delivered")
	return nil
}

// Deliver signs and posts the event to the endpoint once through the resilient client.
func (d *Dispatcher) Deliver(ctx context.Context, ep Endpoint, ev events.Event) (int, error) {
	ctx, span := otel.Tracer("notify").Start(ctx, "webhook.deliver")
	defer span.End()
	deliveryID := DeliveryID(ep.ID, ev.ID)
	span.SetAttributes(
		attribute.String("webhook.endpoint_id", ep.ID),
		attribute.String("webhook.delivery_id", deliveryID),
		attribute.String("webhook.topic", ev.Topic),
		attribute.String("tenant.id", ev.TenantID),
	)
	started := time.Now()

	status, err := d.post(ctx, ep, ev, deliveryID)
	result := "delivered"
	switch {
	case errors.Is(err, errReplaySuppressed):
		span.AddEvent("replay suppressed")
		countDelivery("suppressed")
		return http.StatusOK, nil
	case err != nil:
		result = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	countDelivery(result)
	if obs.WebhookAttemptLatency != nil {
		obs.WebhookAttemptLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(started)))
	}
	return status, err
}

var errReplaySuppressed = errors.New("notify: delivery already sent")

func (d *Dispatcher) post(ctx context.Context, ep Endpoint, ev events.Event, deliveryID string) (int, error) {
	if err := validateURL(ep.URL); err != nil {
		return 0, err
	}
	if d.HTTP == nil {
		return 0, errors.New("notify: http client not configured")
	}
	body, err := json.Marshal(struct {
		EventID    string          `json:"eventId"`
		TenantID   string          `json:"tenantId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{ev.ID, ev.TenantID, ev.Topic, ev.Payload, ev.OccurredAt})
	if err != nil {
		return 0, err
	}

	replayKey := deliveryID
	if d.Replay != nil && d.ReplayTTL > 0 {
		fresh, err := d.Replay.Acquire(ctx, replayKey, d.ReplayTTL)
		if err != nil {
			return 0, err
		}
		if !fresh {
			return 0, errReplaySuppressed
		}
	}

	ts := time.Now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	ua := d.UserAgent
	if ua == "" {
		ua = "autobidder-webhooks/1.0"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", ua)
	req.Header.Set("X-Event-ID", ev.ID)
	req.Header.Set("X-Event-Topic", ev.Topic)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", deliveryID)
	req.Header.Set("X-Signature", ComputeSignature(ep.Secret, ts, ev.ID, body))

	resp, err := d.HTTP.Do(ctx, req)
	if resp != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		_ = resp.Body.Close()
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if err == nil && (status < 200 || status >= 300) {
		err = fmt.Errorf("notify: endpoint responded %d", status)
	}
	if err != nil && d.Replay != nil && d.ReplayTTL > 0 {
		// let the retry through
		_ = d.Replay.Release(context.WithoutCancel(ctx), replayKey)
	}
	return status, err
}

// ComputeSignature returns hex(HMAC-SHA256(secret, "<ts>.<eventID>.<body>")).
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(secret string, ts int64, eventID string, body []byte, signature string) bool {
	expected := ComputeSignature(secret, ts, eventID, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// NewHTTPClient returns the traced, per-host circuit-broken client used for deliveries.
func NewHTTPClient(timeout time.Duration, attempts int, logger zerolog.Logger) *resilience.HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &resilience.HTTPClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// receivers must answer directly
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		Breakers:    &resilience.BreakerSet{MinRequests: 5, FailureRatio: 0.5, OpenFor: 30 * time.Second, Logger: logger},
		MaxAttempts: attempts,
		BaseBackoff: 250 * time.Millisecond,
		Jitter:      0.2,
		Timeout:     timeout,
	}
}

func countDelivery(result string) {
	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
}

var _ Locker = lock.Locker{}
