package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/autobidder/internal/events"
)

var (
	// ErrNotFound is returned when no endpoint matches the tenant and id.
	ErrNotFound = errors.New("notify: endpoint not found")
	// ErrStoreUnavailable indicates the endpoint store has no database.
	ErrStoreUnavailable = errors.New("notify: store unavailable")
	// ErrInvalidEndpoint marks an endpoint definition that cannot be saved.
	ErrInvalidEndpoint = errors.New("notify: invalid endpoint")
)

// Endpoint is a tenant-registered webhook target, typically a CRM or automation hook.
type Endpoint struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Topics    []string  `json:"topics"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Subscribed reports whether the endpoint receives topic. No topics means all.
func (e Endpoint) Subscribed(topic string) bool {
	if len(e.Topics) == 0 {
		return true
	}
	for _, t := range e.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Validate checks the endpoint definition and normalises its topics.
func (e *Endpoint) Validate() error {
	e.Name = strings.TrimSpace(e.Name)
	e.URL = strings.TrimSpace(e.URL)
	if e.Name == "" || len(e.Name) > 120 {
		return fmt.Errorf("%w: name is required and at most 120 characters", ErrInvalidEndpoint)
	}
	if len(e.Secret) < 16 {
		return fmt.Errorf("%w: secret must be at least 16 characters", ErrInvalidEndpoint)
	}
	if err := validateURL(e.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	topics, err := normaliseTopics(e.Topics)
	if err != nil {
		return err
	}
	e.Topics = topics
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("url must include a host")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if host := parsed.Hostname(); host == "localhost" || host == "127.0.0.1" {
			return nil
		}
		return errors.New("plain http is only allowed for localhost")
	}
	return errors.New("url must be http or https")
}

func normaliseTopics(topics []string) ([]string, error) {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !events.IsKnownTopic(t) {
			return nil, fmt.Errorf("%w: unknown topic %q", ErrInvalidEndpoint, t)
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// EndpointStore persists webhook endpoints per tenant.
type EndpointStore interface {
	Create(ctx context.Context, ep Endpoint) (Endpoint, error)
	Update(ctx context.Context, ep Endpoint) (Endpoint, error)
	Get(ctx context.Context, tenantID, id string) (Endpoint, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]Endpoint, error)
	Delete(ctx context.Context, tenantID, id string) error
	ActiveForTopic(ctx context.Context, tenantID, topic string) ([]Endpoint, error)
}

// NewEndpointStore returns an EndpointStore over the webhook_endpoints table.
func NewEndpointStore(pool *pgxpool.Pool) EndpointStore {
	return &pgEndpointStore{pool: pool}
}

type pgEndpointStore struct {
	pool *pgxpool.Pool
}

const endpointColumns = `id, tenant_id, name, url, secret, topics, active, created_at, updated_at`

func (s *pgEndpointStore) Create(ctx context.Context, ep Endpoint) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO webhook_endpoints (tenant_id, name, url, secret, topics, active)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+endpointColumns,
		ep.TenantID, ep.Name, ep.URL, ep.Secret, ep.Topics, ep.Active)
	return scanEndpoint(row)
}

func (s *pgEndpointStore) Update(ctx context.Context, ep Endpoint) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	if _, err := uuid.Parse(ep.ID); err != nil {
		return Endpoint{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `UPDATE webhook_endpoints
SET name = $3, url = $4, secret = $5, topics = $6, active = $7, updated_at = now()
WHERE tenant_id = $1 AND id = $2 RETURNING `+endpointColumns,
		ep.TenantID, ep.ID, ep.Name, ep.URL, ep.Secret, ep.Topics, ep.Active)
	return scanEndpoint(row)
}

func (s *pgEndpointStore) Get(ctx context.Context, tenantID, id string) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return Endpoint{}, ErrNotFound
	}
	return scanEndpoint(s.pool.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (s *pgEndpointStore) List(ctx context.Context, tenantID string, limit, offset int) ([]Endpoint, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints
WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectEndpoints(rows)
}

func (s *pgEndpointStore) Delete(ctx context.Context, tenantID, id string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgEndpointStore) ActiveForTopic(ctx context.Context, tenantID, topic string) ([]Endpoint, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints
WHERE tenant_id = $1 AND active AND (cardinality(topics) = 0 OR $2 = ANY(topics))`, tenantID, topic)
	if err != nil {
		return nil, err
	}
	return collectEndpoints(rows)
}

func collectEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	defer rows.Close()
	var out []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func scanEndpoint(row pgx.Row) (Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.TenantID, &ep.Name, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt, &ep.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Endpoint{}, ErrNotFound
	}
	if err != nil {
		return Endpoint{}, err
	}
	if ep.Topics == nil {
		ep.Topics = []string{}
	}
	return ep, nil
}
