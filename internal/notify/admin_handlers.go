package notify

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/events"
)

// AdminHandler manages a tenant's webhook endpoints.
type AdminHandler struct {
	Store      EndpointStore
	Dispatcher *Dispatcher
}

type endpointRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Topics []string `json:"topics"`
	Active *bool    `json:"active"`
}

func (r endpointRequest) endpoint(tenantID string) Endpoint {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return Endpoint{TenantID: tenantID, Name: r.Name, URL: r.URL, Secret: r.Secret, Topics: r.Topics, Active: active}
}

// Create handles POST /api/v1/admin/webhooks.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req endpointRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ep := req.endpoint(tenantID)
	if err := ep.Validate(); err != nil {
		writeError(w, err)
		return
	}
	saved, err := h.Store.Create(r.Context(), ep)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": saved})
}

// Update handles PUT /api/v1/admin/webhooks/{id}. An empty secret keeps the current one.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	current, err := h.Store.Get(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req endpointRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ep := req.endpoint(tenantID)
	ep.ID = current.ID
	if ep.Secret == "" {
		ep.Secret = current.Secret
	}
	if err := ep.Validate(); err != nil {
		writeError(w, err)
		return
	}
	saved, err := h.Store.Update(r.Context(), ep)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}

// List handles GET /api/v1/admin/webhooks.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	items, err := h.Store.List(r.Context(), tenantID, perPage, (page-1)*perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []Endpoint{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "topics": events.DefaultTopics()})
}

// Delete handles DELETE /api/v1/admin/webhooks/{id}.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), tenantID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ping handles POST /api/v1/admin/webhooks/{id}/ping by sending a synchronous test event.
func (h *AdminHandler) Ping(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	if h.Dispatcher == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "webhook delivery not configured", nil)
		return
	}
	ep, err := h.Store.Get(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	ev := events.Event{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Topic:      "webhook.ping",
		Payload:    []byte(`{"message":"ping"}`),
		OccurredAt: time.Now().UTC(),
	}
	status, err := h.Dispatcher.Deliver(r.Context(), ep, ev)
	resp := map[string]any{"status": status, "ok": err == nil}
	if err != nil {
		resp["error"] = err.Error()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

func (h *AdminHandler) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "webhook store unavailable", nil)
		return "", false
	}
	id, err := common.TenantID(r)
	if err != nil {
		common.WriteError(w, err)
		return "", false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.WriteError(w, common.NewAppError("NOT_FOUND", "webhook endpoint not found", http.StatusNotFound, err))
	case errors.Is(err, ErrInvalidEndpoint):
		common.WriteError(w, common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err))
	default:
		common.WriteError(w, err)
	}
}
