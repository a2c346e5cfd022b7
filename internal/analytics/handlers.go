package analytics

import (
	"net/http"
	"time"

	"github.com/noah-isme/autobidder/internal/common"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

// Daily handles GET /api/v1/admin/analytics/daily.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	tenantID, from, to, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, err := h.Svc.Daily(r.Context(), tenantID, from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "unable to load analytics", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// TopServices handles GET /api/v1/admin/analytics/top-services.
func (h *Handler) TopServices(w http.ResponseWriter, r *http.Request) {
	tenantID, from, to, ok := h.params(w, r)
	if !ok {
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 10)
	rows, err := h.Svc.TopServices(r.Context(), tenantID, from, to, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "unable to load analytics", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Overview handles GET /api/v1/admin/analytics/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	tenantID, from, to, ok := h.params(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Overview(r.Context(), tenantID, from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "unable to load analytics", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// params reads either an RFC 3339 from/to pair or a trailing number of days.
func (h *Handler) params(w http.ResponseWriter, r *http.Request) (string, time.Time, time.Time, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return "", time.Time{}, time.Time{}, false
	}
	tenantID, err := common.TenantID(r)
	if err != nil {
		common.WriteError(w, err)
		return "", time.Time{}, time.Time{}, false
	}
	query := r.URL.Query()
	fromStr, toStr := query.Get("from"), query.Get("to")
	var from, to time.Time
	if fromStr != "" && toStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from date", nil)
			return "", time.Time{}, time.Time{}, false
		}
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to date", nil)
			return "", time.Time{}, time.Time{}, false
		}
	} else {
		days := h.Svc.DefaultRange
		if days <= 0 {
			days = 30
		}
		if parsed := common.AtoiDefault(query.Get("days"), days); parsed > 0 && parsed <= 366 {
			days = parsed
		}
		// whole minutes keep the cache key stable across a burst of dashboard requests
		to = h.Svc.now().Truncate(time.Minute)
		from = to.AddDate(0, 0, -days)
	}
	if !from.Before(to) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be before to", nil)
		return "", time.Time{}, time.Time{}, false
	}
	return tenantID, from, to, true
}
