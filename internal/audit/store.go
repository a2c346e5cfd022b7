package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStore returns a Store backed by the admin_audit_log table.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const entryColumns = `id, tenant_id, action, resource_type, resource_id, method, path, status, ip, user_agent, request_id, metadata, created_at`

func (s *pgStore) Insert(ctx context.Context, e Entry) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	var metadata []byte
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO admin_audit_log (tenant_id, action, resource_type, resource_id, method, path, status, ip, user_agent, request_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.TenantID, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Path, e.Status, e.IP, e.UserAgent, e.RequestID, metadata)
	return err
}

func (s *pgStore) List(ctx context.Context, tenantID string, limit, offset int) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM admin_audit_log WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *pgStore) Count(ctx context.Context, tenantID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_audit_log WHERE tenant_id = $1`, tenantID).Scan(&total)
	return total, err
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e        Entry
		metadata []byte
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Method, &e.Path,
		&e.Status, &e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	if len(metadata) > 0 {
		e.Metadata = metadata
	}
	return e, nil
}
