package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/notify"
	"github.com/noah-isme/autobidder/internal/tenant"
)

func adminRequest(method, target, body, id string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := tenant.With(req.Context(), "acme")
	if id != "" {
		rc := chi.NewRouteContext()
		rc.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func TestAdminEndpointLifecycle(t *testing.T) {
	store := newMemEndpoints()
	h := &notify.AdminHandler{Store: store}

	rec := httptest.NewRecorder()
	h.Create(rec, adminRequest(http.MethodPost, "/api/v1/admin/webhooks",
		`{"name":"CRM","url":"https://crm.example.com/hook","secret":"0123456789abcdef","topics":["quote.submitted"]}`, ""))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "0123456789abcdef")

	var created struct {
		Data notify.Endpoint `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.Data.Active)

	rec = httptest.NewRecorder()
	h.Update(rec, adminRequest(http.MethodPut, "/api/v1/admin/webhooks/x",
		`{"name":"CRM v2","url":"https://crm.example.com/v2","active":false}`, created.Data.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := store.Get(context.Background(), "acme", created.Data.ID)
	require.NoError(t, err)
	require.Equal(t, "0123456789abcdef", stored.Secret)
	require.False(t, stored.Active)
	require.Equal(t, "https://crm.example.com/v2", stored.URL)

	rec = httptest.NewRecorder()
	h.List(rec, adminRequest(http.MethodGet, "/api/v1/admin/webhooks", "", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "CRM v2")

	rec = httptest.NewRecorder()
	h.Delete(rec, adminRequest(http.MethodDelete, "/api/v1/admin/webhooks/x", "", created.Data.ID))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.Delete(rec, adminRequest(http.MethodDelete, "/api/v1/admin/webhooks/x", "", created.Data.ID))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpointValidation(t *testing.T) {
	h := &notify.AdminHandler{Store: newMemEndpoints()}
	for _, body := range []string{
		`{"name":"CRM","url":"http://crm.example.com","secret":"0123456789abcdef"}`,
		`{"name":"CRM","url":"https://crm.example.com","secret":"short"}`,
		`{"name":"CRM","url":"https://crm.example.com","secret":"0123456789abcdef","topics":["order.paid"]}`,
		`{"name":`,
	} {
		rec := httptest.NewRecorder()
		h.Create(rec, adminRequest(http.MethodPost, "/api/v1/admin/webhooks", body, ""))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAdminPing(t *testing.T) {
	srv, got := receiver(t, http.StatusOK)
	store := newMemEndpoints()
	ep, err := store.Create(context.Background(), notify.Endpoint{TenantID: "acme", Name: "local", URL: srv.URL, Secret: "0123456789abcdef", Active: true})
	require.NoError(t, err)

	h := &notify.AdminHandler{Store: store, Dispatcher: &notify.Dispatcher{HTTP: notify.NewHTTPClient(0, 1, zerolog.Nop())}}
	rec := httptest.NewRecorder()
	h.Ping(rec, adminRequest(http.MethodPost, "/api/v1/admin/webhooks/x/ping", "", ep.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"status":200,"ok":true}}`, rec.Body.String())
	require.Equal(t, "webhook.ping", (<-got).header.Get("X-Event-Topic"))
}
