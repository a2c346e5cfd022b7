package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the quote sink: it persists assembled leads and serves the CRM view.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, tenantID, id string) (Record, error)
	List(ctx context.Context, tenantID string, status Status, limit, offset int) ([]Record, error)
	Count(ctx context.Context, tenantID string, status Status) (int64, error)
	UpdateStatus(ctx context.Context, tenantID, id string, status Status) (Record, error)
}

// ErrStoreUnavailable indicates the database dependency is not configured.
var ErrStoreUnavailable = errors.New("quote: store unavailable")

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const quoteColumns = `id, tenant_id, customer, services, subtotal, bundle_discount, tax_amount, total, status, created_at, updated_at`

func (s *pgStore) Create(ctx context.Context, rec Record) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrStoreUnavailable
	}
	customer, err := json.Marshal(rec.Customer)
	if err != nil {
		return Record{}, fmt.Errorf("quote: encode customer: %w", err)
	}
	services, err := json.Marshal(rec.Services)
	if err != nil {
		return Record{}, fmt.Errorf("quote: encode services: %w", err)
	}
	if rec.Status == "" {
		rec.Status = StatusNew
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO quotes (tenant_id, customer, customer_email, services, subtotal, bundle_discount, tax_amount, total, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+quoteColumns,
		rec.TenantID, customer, strings.ToLower(rec.Customer.Email), services,
		rec.Summary.Subtotal, rec.Summary.BundleDiscount, rec.Summary.TaxAmount, rec.Summary.Total, string(rec.Status))
	return scanRecord(row)
}

func (s *pgStore) Get(ctx context.Context, tenantID, id string) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrStoreUnavailable
	}
	qid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Record{}, ErrNotFound
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE tenant_id = $1 AND id = $2`, tenantID, qid))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *pgStore) List(ctx context.Context, tenantID string, status Status, limit, offset int) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = s.pool.Query(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE tenant_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, tenantID, string(status), limit, offset)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *pgStore) Count(ctx context.Context, tenantID string, status Status) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	var err error
	if status != "" {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotes WHERE tenant_id = $1 AND status = $2`, tenantID, string(status)).Scan(&total)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotes WHERE tenant_id = $1`, tenantID).Scan(&total)
	}
	return total, err
}

func (s *pgStore) UpdateStatus(ctx context.Context, tenantID, id string, status Status) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrStoreUnavailable
	}
	qid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Record{}, ErrNotFound
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx, `UPDATE quotes SET status = $3, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2 RETURNING `+quoteColumns, tenantID, qid, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec      Record
		id       uuid.UUID
		customer []byte
		services []byte
		status   string
	)
	err := row.Scan(&id, &rec.TenantID, &customer, &services,
		&rec.Summary.Subtotal, &rec.Summary.BundleDiscount, &rec.Summary.TaxAmount, &rec.Summary.Total,
		&status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.ID = id.String()
	rec.Status = Status(status)
	if err := json.Unmarshal(customer, &rec.Customer); err != nil {
		return Record{}, fmt.Errorf("quote: decode customer: %w", err)
	}
	if err := json.Unmarshal(services, &rec.Services); err != nil {
		return Record{}, fmt.Errorf("quote: decode services: %w", err)
	}
	return rec, nil
}
