package formula

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

var (
	// ErrNotFound is returned when no formula matches the tenant and id.
	ErrNotFound = errors.New("formula: not found")
	// ErrStoreUnavailable indicates the database dependency is not configured.
	ErrStoreUnavailable = errors.New("formula: store unavailable")
)

// Store persists calculator definitions per tenant.
type Store interface {
	Get(ctx context.Context, tenantID, id string) (Formula, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]Formula, error)
	Count(ctx context.Context, tenantID string) (int64, error)
	Create(ctx context.Context, f Formula) (Formula, error)
	Update(ctx context.Context, f Formula) (Formula, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const formulaColumns = `id, tenant_id, name, title, icon, variables, expression, updated_at`

func (s *pgStore) Get(ctx context.Context, tenantID, id string) (Formula, error) {
	if s == nil || s.pool == nil {
		return Formula{}, ErrStoreUnavailable
	}
	fid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Formula{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+formulaColumns+` FROM formulas WHERE tenant_id = $1 AND id = $2`, tenantID, fid)
	f, err := scanFormula(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Formula{}, ErrNotFound
	}
	return f, err
}

func (s *pgStore) List(ctx context.Context, tenantID string, limit, offset int) ([]Formula, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `SELECT `+formulaColumns+` FROM formulas WHERE tenant_id = $1 ORDER BY name ASC, id ASC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Formula, 0, limit)
	for rows.Next() {
		f, err := scanFormula(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *pgStore) Count(ctx context.Context, tenantID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM formulas WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *pgStore) Create(ctx context.Context, f Formula) (Formula, error) {
	if s == nil || s.pool == nil {
		return Formula{}, ErrStoreUnavailable
	}
	vars, err := json.Marshal(f.Variables)
	if err != nil {
		return Formula{}, fmt.Errorf("formula: encode variables: %w", err)
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO formulas (tenant_id, name, title, icon, variables, expression)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+formulaColumns, f.TenantID, f.Name, f.Title, f.Icon, vars, f.Expression)
	return scanFormula(row)
}

func (s *pgStore) Update(ctx context.Context, f Formula) (Formula, error) {
	if s == nil || s.pool == nil {
		return Formula{}, ErrStoreUnavailable
	}
	fid, err := uuid.Parse(strings.TrimSpace(f.ID))
	if err != nil {
		return Formula{}, ErrNotFound
	}
	vars, err := json.Marshal(f.Variables)
	if err != nil {
		return Formula{}, fmt.Errorf("formula: encode variables: %w", err)
	}
	row := s.pool.QueryRow(ctx, `UPDATE formulas
SET name = $3, title = $4, icon = $5, variables = $6, expression = $7, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2
RETURNING `+formulaColumns, f.TenantID, fid, f.Name, f.Title, f.Icon, vars, f.Expression)
	out, err := scanFormula(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Formula{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) Delete(ctx context.Context, tenantID, id string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	fid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM formulas WHERE tenant_id = $1 AND id = $2`, tenantID, fid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFormula(row pgx.Row) (Formula, error) {
	var (
		f     Formula
		id    uuid.UUID
		vars  []byte
		title *string
		icon  *string
	)
	if err := row.Scan(&id, &f.TenantID, &f.Name, &title, &icon, &vars, &f.Expression, &f.UpdatedAt); err != nil {
		return Formula{}, err
	}
	f.ID = id.String()
	if title != nil {
		f.Title = *title
	}
	if icon != nil {
		f.Icon = *icon
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &f.Variables); err != nil {
			return Formula{}, fmt.Errorf("formula: decode variables: %w", err)
		}
	}
	if f.Variables == nil {
		f.Variables = []Variable{}
	}
	return f, nil
}
