package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/autobidder/internal/tenant"
)

type memStore struct {
	entries []Entry
	err     error
}

func (m *memStore) Insert(_ context.Context, e Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) List(_ context.Context, tenantID string, limit, offset int) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return []Entry{}, nil
	}
	return out[offset:min(len(out), offset+limit)], nil
}

func (m *memStore) Count(_ context.Context, tenantID string) (int64, error) {
	var n int64
	for _, e := range m.entries {
		if e.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func withTenant(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(tenant.With(r.Context(), id)))
		})
	}
}

func TestRecorderCapturesMutations(t *testing.T) {
	store := &memStore{}
	r := chi.NewRouter()
	r.Use(withTenant("acme"))
	r.Route("/api/v1/admin", func(admin chi.Router) {
		admin.Use(Recorder{Service: Service{Store: store, Enabled: true}}.Middleware)
		admin.Put("/formulas/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		admin.Get("/formulas", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		admin.Delete("/webhooks/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/formulas/f-1?dry=1", nil)
	req.Header.Set("User-Agent", "tester")
	req.RemoteAddr = "10.0.0.2:54321"
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/admin/formulas", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/admin/webhooks/w-9", nil))

	if len(store.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(store.entries))
	}
	first := store.entries[0]
	if first.TenantID != "acme" {
		t.Fatalf("unexpected tenant: %s", first.TenantID)
	}
	if first.Action != "PUT /api/v1/admin/formulas/{id}" {
		t.Fatalf("unexpected action: %s", first.Action)
	}
	if first.ResourceType != "admin.formulas" || first.ResourceID != "f-1" {
		t.Fatalf("unexpected resource: %s %s", first.ResourceType, first.ResourceID)
	}
	if first.IP != "10.0.0.2" || first.UserAgent != "tester" {
		t.Fatalf("unexpected client: %s %s", first.IP, first.UserAgent)
	}
	var meta map[string]string
	if err := json.Unmarshal(first.Metadata, &meta); err != nil || meta["query"] != "dry=1" {
		t.Fatalf("unexpected metadata: %s (%v)", first.Metadata, err)
	}
	if store.entries[1].Status != http.StatusNoContent || store.entries[1].ResourceType != "admin.webhooks" {
		t.Fatalf("unexpected second entry: %+v", store.entries[1])
	}
}

func TestRecorderReportsStoreErrors(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	var reported error
	h := Recorder{Service: Service{Store: store, Enabled: true}, OnError: func(err error) { reported = err }}.
		Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("handler response should be untouched, got %d", rr.Code)
	}
	if reported == nil {
		t.Fatal("expected error to be reported")
	}
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &memStore{}
	if err := (Service{Store: store}).Record(context.Background(), Entry{Method: "POST"}, "/"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(store.entries) != 0 {
		t.Fatal("expected no insert when disabled")
	}
}

func TestBuildResource(t *testing.T) {
	cases := map[string]string{
		"/api/v1/admin/quotes/{id}/status": "admin.quotes.status",
		"/api/v1/admin/pricing-settings":   "admin.pricing-settings",
		"/internal/thing":                  "internal.thing",
		"":                                 "unknown",
	}
	for route, want := range cases {
		if got := buildResource("", route); got != want {
			t.Fatalf("buildResource(%q) = %q, want %q", route, got, want)
		}
	}
	if got := buildResource("custom", "/api/v1/x"); got != "custom" {
		t.Fatalf("explicit resource type ignored: %s", got)
	}
}

func TestHandlerListScopesToTenant(t *testing.T) {
	store := &memStore{entries: []Entry{
		{TenantID: "acme", Action: "POST /a"},
		{TenantID: "other", Action: "POST /b"},
		{TenantID: "acme", Action: "PUT /c"},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit?limit=1&page=2", nil)
	req = req.WithContext(tenant.With(req.Context(), "acme"))
	rr := httptest.NewRecorder()
	Handler{Store: store}.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Data       []Entry `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			TotalItems int `json:"total_items"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Action != "PUT /c" {
		t.Fatalf("unexpected page: %+v", body.Data)
	}
	if body.Pagination.Page != 2 || body.Pagination.TotalItems != 2 {
		t.Fatalf("unexpected pagination: %+v", body.Pagination)
	}
}

func TestHandlerListRequiresTenant(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler{Store: &memStore{}}.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
