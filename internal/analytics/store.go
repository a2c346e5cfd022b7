package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStore returns a Querier that aggregates the quotes table directly.
func NewStore(pool *pgxpool.Pool) Querier {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

var errStoreUnavailable = errors.New("analytics: store unavailable")

func (s *pgStore) DailyLeads(ctx context.Context, tenantID string, from, to time.Time) ([]DailyLeads, error) {
	if s == nil || s.pool == nil {
		return nil, errStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT date_trunc('day', created_at) AS day, COUNT(*), COALESCE(SUM(total), 0)
FROM quotes WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
GROUP BY day ORDER BY day`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DailyLeads{}
	for rows.Next() {
		var d DailyLeads
		if err := rows.Scan(&d.Day, &d.Leads, &d.Value); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgStore) TopServices(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]ServiceStat, error) {
	if s == nil || s.pool == nil {
		return nil, errStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT svc->>'formulaId', MAX(svc->>'formulaName'), COUNT(*), COALESCE(SUM((svc->>'calculatedPrice')::bigint), 0)
FROM quotes q, jsonb_array_elements(q.services) AS svc
WHERE q.tenant_id = $1 AND q.created_at >= $2 AND q.created_at < $3
GROUP BY svc->>'formulaId'
ORDER BY COUNT(*) DESC, 4 DESC
LIMIT $4`, tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ServiceStat{}
	for rows.Next() {
		var st ServiceStat
		if err := rows.Scan(&st.FormulaID, &st.FormulaName, &st.Leads, &st.Revenue); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *pgStore) StatusCounts(ctx context.Context, tenantID string, from, to time.Time) ([]StatusCount, error) {
	if s == nil || s.pool == nil {
		return nil, errStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(total), 0)
FROM quotes WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
GROUP BY status ORDER BY status`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []StatusCount{}
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Leads, &c.Value); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
