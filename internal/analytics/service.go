// Package analytics summarises a tenant's lead pipeline for the admin dashboard.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/autobidder/internal/tenant"
)

// DailyLeads is one day of submissions.
type DailyLeads struct {
	Day   time.Time `json:"day"`
	Leads int64     `json:"leads"`
	Value int64     `json:"value"`
}

// ServiceStat ranks a calculator by how often it appears in leads.
type ServiceStat struct {
	FormulaID   string `json:"formulaId"`
	FormulaName string `json:"formulaName"`
	Leads       int64  `json:"leads"`
	Revenue     int64  `json:"revenue"`
}

// StatusCount is the number and value of leads in one CRM stage.
type StatusCount struct {
	Status string `json:"status"`
	Leads  int64  `json:"leads"`
	Value  int64  `json:"value"`
}

// Overview is the dashboard headline for a range.
type Overview struct {
	From           time.Time     `json:"from"`
	To             time.Time     `json:"to"`
	TotalLeads     int64         `json:"totalLeads"`
	PipelineValue  int64         `json:"pipelineValue"`
	WonValue       int64         `json:"wonValue"`
	ConversionRate float64       `json:"conversionRate"`
	ByStatus       []StatusCount `json:"byStatus"`
}

// Querier is the read model analytics is computed from.
type Querier interface {
	DailyLeads(ctx context.Context, tenantID string, from, to time.Time) ([]DailyLeads, error)
	TopServices(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]ServiceStat, error)
	StatusCounts(ctx context.Context, tenantID string, from, to time.Time) ([]StatusCount, error)
}

// Service provides cached access to lead analytics.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

var errNotConfigured = errors.New("analytics service not configured")

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(tenantID string, parts ...any) string {
	formatted := make([]string, 0, len(parts)+1)
	formatted = append(formatted, "an")
	for _, part := range parts {
		switch v := part.(type) {
		case time.Time:
			formatted = append(formatted, v.UTC().Format("20060102T1504"))
		default:
			formatted = append(formatted, fmt.Sprint(v))
		}
	}
	return tenant.PrefixKey(tenantID, strings.Join(formatted, ":"))
}

// Daily returns submissions per day in [from, to).
func (s *Service) Daily(ctx context.Context, tenantID string, from, to time.Time) ([]DailyLeads, error) {
	if s == nil || s.Q == nil {
		return nil, errNotConfigured
	}
	key := cacheKey(tenantID, "daily", from, to)
	var rows []DailyLeads
	if s.load(ctx, key, &rows) {
		return rows, nil
	}
	rows, err := s.Q.DailyLeads(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// TopServices returns the most requested calculators in [from, to).
func (s *Service) TopServices(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]ServiceStat, error) {
	if s == nil || s.Q == nil {
		return nil, errNotConfigured
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	key := cacheKey(tenantID, "top", from, to, limit)
	var rows []ServiceStat
	if s.load(ctx, key, &rows) {
		return rows, nil
	}
	rows, err := s.Q.TopServices(ctx, tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// Overview totals leads by status. Pipeline value excludes lost leads; the conversion rate is
// won leads over all leads.
func (s *Service) Overview(ctx context.Context, tenantID string, from, to time.Time) (Overview, error) {
	if s == nil || s.Q == nil {
		return Overview{}, errNotConfigured
	}
	key := cacheKey(tenantID, "overview", from, to)
	var out Overview
	if s.load(ctx, key, &out) {
		return out, nil
	}
	counts, err := s.Q.StatusCounts(ctx, tenantID, from, to)
	if err != nil {
		return Overview{}, err
	}
	out = summarise(counts)
	out.From, out.To = from, to
	s.store(ctx, key, out)
	return out, nil
}

func summarise(counts []StatusCount) Overview {
	out := Overview{ByStatus: counts}
	if out.ByStatus == nil {
		out.ByStatus = []StatusCount{}
	}
	var won int64
	for _, c := range counts {
		out.TotalLeads += c.Leads
		switch c.Status {
		case "lost":
		case "won":
			won += c.Leads
			out.WonValue += c.Value
			out.PipelineValue += c.Value
		default:
			out.PipelineValue += c.Value
		}
	}
	if out.TotalLeads > 0 {
		out.ConversionRate = float64(won) / float64(out.TotalLeads)
	}
	return out
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
