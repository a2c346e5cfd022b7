package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an event id is unknown.
var ErrNotFound = errors.New("events: not found")

// PGStore persists events in the domain_events table.
type PGStore struct {
	Pool *pgxpool.Pool
}

// Insert stores the event and returns it with id and timestamp assigned.
func (s PGStore) Insert(ctx context.Context, ev Event) (Event, error) {
	if s.Pool == nil {
		return Event{}, errors.New("events: pool not configured")
	}
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx, `INSERT INTO domain_events (tenant_id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4) RETURNING id, occurred_at`, ev.TenantID, ev.Topic, ev.AggregateID, []byte(ev.Payload)).Scan(&id, &ev.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	ev.ID = id.String()
	return ev, nil
}

// Get loads one event by id.
func (s PGStore) Get(ctx context.Context, id string) (Event, error) {
	if s.Pool == nil {
		return Event{}, errors.New("events: pool not configured")
	}
	eid, err := uuid.Parse(id)
	if err != nil {
		return Event{}, ErrNotFound
	}
	var (
		ev      Event
		payload []byte
	)
	err = s.Pool.QueryRow(ctx, `SELECT tenant_id, topic, aggregate_id, payload, occurred_at FROM domain_events WHERE id = $1`, eid).
		Scan(&ev.TenantID, &ev.Topic, &ev.AggregateID, &payload, &ev.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, err
	}
	ev.ID = eid.String()
	ev.Payload = payload
	return ev, nil
}
