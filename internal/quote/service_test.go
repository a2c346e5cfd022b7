package quote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/events"
	"github.com/noah-isme/autobidder/internal/formula"
	"github.com/noah-isme/autobidder/internal/pricing"
	"github.com/noah-isme/autobidder/internal/tenant"
)

func ptr(v float64) *float64 { return &v }

type stubFormulas struct {
	items map[string]formula.Formula
	err   error
}

func (s *stubFormulas) Evaluate(_ context.Context, _ string, id string, answers map[string]any) (formula.Evaluation, error) {
	if s.err != nil {
		return formula.Evaluation{}, s.err
	}
	f, ok := s.items[id]
	if !ok {
		return formula.Evaluation{}, formula.ErrNotFound
	}
	res, err := formula.Evaluate(f, answers)
	return formula.Evaluation{FormulaID: id, FormulaName: f.Name, Icon: f.Icon, Price: res.Price, Degraded: res.Degraded}, err
}

type stubSettings struct {
	cfg pricing.Config
}

func (s stubSettings) Get(context.Context, string) (pricing.Config, error) { return s.cfg, nil }

type memStore struct {
	mu    sync.Mutex
	items map[string]Record
}

func newMemStore() *memStore { return &memStore{items: map[string]Record{}} }

func (m *memStore) Create(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	m.items[rec.ID] = rec
	return rec, nil
}

func (m *memStore) Get(_ context.Context, tenantID, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[id]
	if !ok || rec.TenantID != tenantID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) List(_ context.Context, tenantID string, status Status, limit, offset int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, rec := range m.items {
		if rec.TenantID == tenantID && (status == "" || rec.Status == status) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []Record{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Count(ctx context.Context, tenantID string, status Status) (int64, error) {
	items, _ := m.List(ctx, tenantID, status, 1<<20, 0)
	return int64(len(items)), nil
}

func (m *memStore) UpdateStatus(_ context.Context, tenantID, id string, status Status) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[id]
	if !ok || rec.TenantID != tenantID {
		return Record{}, ErrNotFound
	}
	rec.Status = status
	m.items[id] = rec
	return rec, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, tenantID, topic, aggregateID string, _ any) (events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return events.Event{ID: uuid.NewString(), TenantID: tenantID, Topic: topic, AggregateID: aggregateID}, nil
}

func catalogue() map[string]formula.Formula {
	return map[string]formula.Formula{
		"windows": {
			ID: "windows", Name: "Window Cleaning", Icon: "🪟",
			Expression: "panes * 10",
			Variables:  []formula.Variable{{ID: "panes", Type: formula.TypeNumber}},
		},
		"gutters": {
			ID: "gutters", Name: "Gutter Cleaning",
			Expression: "feet * rate",
			Variables: []formula.Variable{
				{ID: "feet", Type: formula.TypeSlider},
				{ID: "rate", Type: formula.TypeDropdown, Options: []formula.Option{{Value: "one", NumericValue: ptr(0.5)}, {Value: "two", NumericValue: ptr(1)}}},
			},
		},
		"broken": {
			ID: "broken", Name: "Broken",
			Expression: "basePrice + sqftPriceExtra",
			Variables:  []formula.Variable{{ID: "basePrice", Type: formula.TypeNumber}, {ID: "sqft", Type: formula.TypeNumber}},
		},
	}
}

type fixture struct {
	svc     *Service
	store   *memStore
	emitter *captureEmitter
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := newMemStore()
	emitter := &captureEmitter{}
	svc, err := NewService(ServiceConfig{
		Formulas: &stubFormulas{items: catalogue()},
		Settings: stubSettings{cfg: pricing.Config{ShowBundleDiscount: true, BundleDiscountPercent: 10, EnableSalesTax: true, SalesTaxRate: 8}},
		Store:    store,
		Events:   emitter,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return fixture{svc: svc, store: store, emitter: emitter}
}

func goldenSelections() []Selection {
	return []Selection{
		{FormulaID: "windows", Variables: map[string]any{"panes": 10}},
		{FormulaID: "gutters", Variables: map[string]any{"feet": 100, "rate": "one"}},
	}
}

func TestPreviewPricesInParallelAndKeepsOrder(t *testing.T) {
	fx := newFixture(t)
	preview, err := fx.svc.Preview(context.Background(), "acme", append(goldenSelections(), Selection{FormulaID: "broken"}, Selection{FormulaID: "missing"}))
	require.NoError(t, err)
	require.Len(t, preview.Services, 4)

	require.Equal(t, "windows", preview.Services[0].FormulaID)
	require.Equal(t, pricing.Money(100), *preview.Services[0].CalculatedPrice)
	require.Equal(t, pricing.Money(50), *preview.Services[1].CalculatedPrice)
	require.Nil(t, preview.Services[2].CalculatedPrice)
	require.Equal(t, "price unavailable", preview.Services[2].Reason)
	require.Equal(t, "Broken", preview.Services[2].FormulaName)
	require.Nil(t, preview.Services[3].CalculatedPrice)
	require.Equal(t, "calculator not found", preview.Services[3].Reason)

	require.Equal(t, pricing.Summary{Subtotal: 150, BundleDiscount: 15, TaxAmount: 11, Total: 146}, preview.Summary)
	require.Empty(t, fx.store.items)
	require.Empty(t, fx.emitter.topics)
}

func TestPreviewPropagatesInfrastructureErrors(t *testing.T) {
	svc, err := NewService(ServiceConfig{
		Formulas: &stubFormulas{err: errors.New("db down")},
		Settings: stubSettings{},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	_, err = svc.Preview(context.Background(), "acme", goldenSelections())
	require.ErrorContains(t, err, "db down")
}

func TestPreviewBoundsSelections(t *testing.T) {
	fx := newFixture(t)
	many := make([]Selection, MaxServicesPerQuote+1)
	for i := range many {
		many[i] = Selection{FormulaID: "windows"}
	}
	_, err := fx.svc.Preview(context.Background(), "acme", many)
	require.True(t, common.IsAppError(err))
}

func TestSubmitDropsFailedServices(t *testing.T) {
	fx := newFixture(t)
	sub := Submission{
		Customer: Customer{Name: "  Dana Scully ", Email: "dana@example.com"},
		Services: append(goldenSelections(), Selection{FormulaID: "broken"}),
	}
	rec, err := fx.svc.Submit(context.Background(), "acme", sub)
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, "acme", rec.TenantID)
	require.Equal(t, "Dana Scully", rec.Customer.Name)
	require.Len(t, rec.Services, 2)
	require.Equal(t, pricing.Money(146), rec.Summary.Total)
	require.Equal(t, []string{events.TopicQuoteSubmitted}, fx.emitter.topics)
}

func TestSubmitRejections(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Submit(context.Background(), "acme", Submission{
		Customer: Customer{Name: "Dana", Phone: "555-0100"},
		Services: []Selection{{FormulaID: "broken"}},
	})
	require.ErrorIs(t, err, ErrNoPricedService)

	_, err = fx.svc.Submit(context.Background(), "acme", Submission{
		Customer: Customer{Name: "Dana"},
		Services: goldenSelections(),
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)

	_, err = fx.svc.Submit(context.Background(), "acme", Submission{
		Customer: Customer{Name: "Dana", Email: "not-an-email"},
		Services: goldenSelections(),
	})
	require.ErrorAs(t, err, &appErr)

	_, err = fx.svc.Submit(context.Background(), "acme", Submission{Customer: Customer{Name: "Dana", Phone: "1"}})
	require.ErrorAs(t, err, &appErr)

	require.Empty(t, fx.store.items)
	require.Empty(t, fx.emitter.topics)
}

func TestUpdateStatus(t *testing.T) {
	fx := newFixture(t)
	rec, err := fx.svc.Submit(context.Background(), "acme", Submission{Customer: Customer{Name: "Dana", Phone: "555"}, Services: goldenSelections()})
	require.NoError(t, err)

	updated, err := fx.svc.UpdateStatus(context.Background(), "acme", rec.ID, StatusContacted)
	require.NoError(t, err)
	require.Equal(t, StatusContacted, updated.Status)

	_, err = fx.svc.UpdateStatus(context.Background(), "acme", rec.ID, StatusContacted)
	require.NoError(t, err)

	_, err = fx.svc.UpdateStatus(context.Background(), "acme", rec.ID, "archived")
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = fx.svc.UpdateStatus(context.Background(), "other", rec.ID, StatusWon)
	require.ErrorIs(t, err, ErrNotFound)

	require.Equal(t, []string{events.TopicQuoteSubmitted, events.TopicQuoteStatusChanged}, fx.emitter.topics)

	items, total, err := fx.svc.List(context.Background(), "acme", StatusContacted, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(1), total)
}

func TestHandlers(t *testing.T) {
	fx := newFixture(t)
	h := Handler{Service: fx.svc}

	withTenant := func(req *http.Request) *http.Request {
		return req.WithContext(tenant.With(req.Context(), "acme"))
	}

	t.Run("preview", func(t *testing.T) {
		body := `{"services":[{"formulaId":"windows","variables":{"panes":10}},{"formulaId":"broken","variables":{}}]}`
		rec := httptest.NewRecorder()
		h.Preview(rec, withTenant(httptest.NewRequest(http.MethodPost, "/api/v1/quotes/preview", strings.NewReader(body))))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"calculatedPrice":null`)
		require.Contains(t, rec.Body.String(), `"total":108`)
	})

	var created string
	t.Run("submit", func(t *testing.T) {
		body := `{"customer":{"name":"Dana","email":"dana@example.com"},"services":[{"formulaId":"windows","variables":{"panes":"3"}}]}`
		rec := httptest.NewRecorder()
		h.Submit(rec, withTenant(httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(body))))
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, fx.store.items, 1)
		for id := range fx.store.items {
			created = id
		}
	})

	t.Run("submit without priced service", func(t *testing.T) {
		body := `{"customer":{"name":"Dana","phone":"555"},"services":[{"formulaId":"broken"}]}`
		rec := httptest.NewRecorder()
		h.Submit(rec, withTenant(httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(body))))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Contains(t, rec.Body.String(), `"NO_PRICED_SERVICE"`)
	})

	t.Run("status patch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/quotes/x/status", strings.NewReader(`{"status":"won"}`))
		rc := chi.NewRouteContext()
		rc.URLParams.Add("id", created)
		req = withTenant(req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc)))
		rec := httptest.NewRecorder()
		h.UpdateStatus(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, StatusWon, fx.store.items[created].Status)
	})

	t.Run("list filters by status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.List(rec, withTenant(httptest.NewRequest(http.MethodGet, "/api/v1/admin/quotes?status=won", nil)))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "1", rec.Header().Get("X-Total-Count"))

		rec = httptest.NewRecorder()
		h.List(rec, withTenant(httptest.NewRequest(http.MethodGet, "/api/v1/admin/quotes?status=bogus", nil)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/quotes/x", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("id", uuid.NewString())
		req = withTenant(req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc)))
		rec := httptest.NewRecorder()
		h.Get(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
