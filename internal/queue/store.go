package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStoreUnavailable indicates the dead-letter store has no database.
	ErrStoreUnavailable = errors.New("queue: store unavailable")
	// ErrNotFound is returned when a dead letter does not exist.
	ErrNotFound = errors.New("queue: dead letter not found")
)

// DeadLetter is a task that exhausted its attempts. Payload holds the encoded task.
type DeadLetter struct {
	ID             uuid.UUID `json:"id"`
	Kind           string    `json:"kind"`
	TenantID       string    `json:"tenantId,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Payload        []byte    `json:"-"`
	Attempts       int       `json:"attempts"`
	LastError      *string   `json:"lastError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store persists dead letters.
type Store interface {
	Insert(ctx context.Context, dl DeadLetter) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (DeadLetter, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, kind string, limit, offset int) ([]DeadLetter, error)
	Count(ctx context.Context, kind string) (int64, error)
}

// NewStore returns a Store over the queue_dlq table.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const dlqColumns = `id, kind, tenant_id, idem_key, payload, attempts, last_error, created_at`

func (s *pgStore) Insert(ctx context.Context, dl DeadLetter) (uuid.UUID, error) {
	if s == nil || s.pool == nil {
		return uuid.Nil, ErrStoreUnavailable
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `INSERT INTO queue_dlq (kind, tenant_id, idem_key, payload, attempts, last_error)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		dl.Kind, dl.TenantID, dl.IdempotencyKey, dl.Payload, dl.Attempts, dl.LastError).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("queue: insert dead letter: %w", err)
	}
	return id, nil
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (DeadLetter, error) {
	if s == nil || s.pool == nil {
		return DeadLetter{}, ErrStoreUnavailable
	}
	dl, err := scanDeadLetter(s.pool.QueryRow(ctx, `SELECT `+dlqColumns+` FROM queue_dlq WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return DeadLetter{}, ErrNotFound
	}
	return dl, err
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM queue_dlq WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) List(ctx context.Context, kind string, limit, offset int) ([]DeadLetter, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `SELECT `+dlqColumns+` FROM queue_dlq
WHERE ($1 = '' OR kind = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`, strings.TrimSpace(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]DeadLetter, 0, limit)
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

func (s *pgStore) Count(ctx context.Context, kind string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_dlq WHERE ($1 = '' OR kind = $1)`, strings.TrimSpace(kind)).Scan(&total)
	return total, err
}

func scanDeadLetter(row pgx.Row) (DeadLetter, error) {
	var dl DeadLetter
	if err := row.Scan(&dl.ID, &dl.Kind, &dl.TenantID, &dl.IdempotencyKey, &dl.Payload, &dl.Attempts, &dl.LastError, &dl.CreatedAt); err != nil {
		return DeadLetter{}, err
	}
	return dl, nil
}
