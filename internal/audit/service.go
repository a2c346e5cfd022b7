// Package audit records who changed what through the admin API.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// ErrStoreUnavailable is returned when the pool is not configured.
var ErrStoreUnavailable = errors.New("audit: store unavailable")

// Entry is one recorded admin request.
type Entry struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Status       int             `json:"status"`
	IP           string          `json:"ip,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, tenantID string, limit, offset int) ([]Entry, error)
	Count(ctx context.Context, tenantID string) (int64, error)
}

// Service normalises and persists audit entries.
type Service struct {
	Store   Store
	Enabled bool
	// SamplingRate in (0,1) records that fraction of requests. Zero or one records all.
	SamplingRate float64
}

// Record persists e when auditing is enabled. Action and ResourceType are derived from
// the method and route when left empty.
func (s Service) Record(ctx context.Context, e Entry, route string) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate {
		return nil
	}
	if s.Store == nil {
		return ErrStoreUnavailable
	}
	if e.Status == 0 {
		e.Status = http.StatusOK
	}
	e.Method = strings.ToUpper(strings.TrimSpace(e.Method))
	e.Action = buildAction(e.Action, e.Method, route)
	e.ResourceType = buildResource(e.ResourceType, route)
	return s.Store.Insert(ctx, e)
}

func buildAction(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	if route == "" {
		route = "/"
	}
	return method + " " + route
}

// buildResource turns /api/v1/admin/formulas/{id} into admin.formulas.
func buildResource(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	route = strings.Trim(strings.TrimSpace(route), "/")
	if route == "" {
		return "unknown"
	}
	segments := strings.Split(route, "/")
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	kept := segments[:0]
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") || seg == "" {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, ".")
}

func queryMetadata(query string) json.RawMessage {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
