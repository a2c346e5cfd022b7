package formula

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/autobidder/internal/common"
)

// Handler exposes public and admin calculator endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type formulaRequest struct {
	Name       string     `json:"name"`
	Title      string     `json:"title"`
	Icon       string     `json:"icon"`
	Variables  []Variable `json:"variables"`
	Expression string     `json:"formula"`
}

func (r formulaRequest) toFormula() Formula {
	return Formula{Name: r.Name, Title: r.Title, Icon: r.Icon, Variables: r.Variables, Expression: r.Expression}
}

type evaluateRequest struct {
	Variables map[string]any `json:"variables"`
}

// Get handles GET /api/v1/formulas/{id} and GET /api/v1/admin/formulas/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	f, err := h.service.Get(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": f})
}

// Evaluate handles POST /api/v1/formulas/{id}/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.service.Evaluate(r.Context(), tenantID, chi.URLParam(r, "id"), req.Variables)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// List handles GET /api/v1/admin/formulas.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	items, total, err := h.service.List(r.Context(), tenantID, perPage, (page-1)*perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Create handles POST /api/v1/admin/formulas.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req formulaRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	f, err := h.service.Create(r.Context(), tenantID, req.toFormula())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": f})
}

// Update handles PUT /api/v1/admin/formulas/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req formulaRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	f, err := h.service.Update(r.Context(), tenantID, chi.URLParam(r, "id"), req.toFormula())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": f})
}

// Delete handles DELETE /api/v1/admin/formulas/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), tenantID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h == nil || h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "formula service not configured", nil)
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
	var evalErr *EvalError
	switch {
	case err == nil:
		return nil
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("NOT_FOUND", "formula not found", http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidFormula):
		appErr := common.NewAppError("INVALID_FORMULA", err.Error(), http.StatusBadRequest, err)
		if errors.As(err, &evalErr) {
			appErr.Details = map[string]any{"reason": evalErr.Reason, "offset": evalErr.Pos}
		}
		return appErr
	case errors.As(err, &evalErr):
		appErr := common.NewAppError("EVALUATION_FAILED", "formula could not be evaluated", http.StatusUnprocessableEntity, err)
		appErr.Details = map[string]any{"reason": evalErr.Reason}
		return appErr
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, AppError(err))
}
