package quote

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/autobidder/internal/common"
)

// Handler exposes the public quote endpoints and the admin lead view.
type Handler struct {
	Service *Service
}

type previewRequest struct {
	Services []Selection `json:"services"`
}

type statusRequest struct {
	Status Status `json:"status"`
}

// Preview handles POST /api/v1/quotes/preview.
func (h Handler) Preview(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req previewRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	preview, err := h.Service.Preview(r.Context(), tenantID, req.Services)
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": preview})
}

// Submit handles POST /api/v1/quotes.
func (h Handler) Submit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req Submission
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	rec, err := h.Service.Submit(r.Context(), tenantID, req)
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

// List handles GET /api/v1/admin/quotes.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 25)
	status := Status(strings.TrimSpace(r.URL.Query().Get("status")))
	items, total, err := h.Service.List(r.Context(), tenantID, status, perPage, (page-1)*perPage)
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/admin/quotes/{id}.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	rec, err := h.Service.Get(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// UpdateStatus handles PATCH /api/v1/admin/quotes/{id}/status.
func (h Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	rec, err := h.Service.UpdateStatus(r.Context(), tenantID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (h Handler) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return "", false
	}
	id, err := common.TenantID(r)
	if err != nil {
		common.WriteError(w, err)
		return "", false
	}
	return id, true
}

// AppError maps package errors onto API error codes.
func AppError(err error) error {
	switch {
	case err == nil:
		return nil
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("NOT_FOUND", "quote not found", http.StatusNotFound, err)
	case errors.Is(err, ErrNoPricedService):
		return common.NewAppError("NO_PRICED_SERVICE", "none of the selected services could be priced", http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrInvalidStatus):
		return common.NewAppError("VALIDATION_ERROR", "status must be one of new, contacted, estimate_sent, won, lost", http.StatusBadRequest, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
