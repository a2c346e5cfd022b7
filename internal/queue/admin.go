package queue

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autobidder/internal/common"
)

// AdminHandler exposes dead-letter inspection and replay.
type AdminHandler struct {
	Store    Store
	Queue    Enqueuer
	PageSize int
	Logger   zerolog.Logger
}

type replayRequest struct {
	IDs   []string `json:"ids"`
	Kind  string   `json:"kind"`
	Limit int      `json:"limit"`
}

// ListDLQ handles GET /api/v1/admin/queue/dlq?kind=.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	page, perPage := common.ParsePagination(r, h.pageSize())
	items, err := h.Store.List(r.Context(), kind, perPage, (page-1)*perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	total, err := h.Store.Count(r.Context(), kind)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// ReplayDLQ handles POST /api/v1/admin/queue/dlq/replay with either ids or a kind.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req replayRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ctx := r.Context()
	var targets []DeadLetter
	failed := map[string]string{}
	switch {
	case len(req.IDs) > 0:
		for _, raw := range req.IDs {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				failed[raw] = "invalid id"
				continue
			}
			dl, err := h.Store.Get(ctx, id)
			if err != nil {
				failed[raw] = err.Error()
				continue
			}
			targets = append(targets, dl)
		}
	case strings.TrimSpace(req.Kind) != "":
		limit := req.Limit
		if limit <= 0 {
			limit = h.pageSize()
		}
		list, err := h.Store.List(ctx, strings.TrimSpace(req.Kind), limit, 0)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		targets = list
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ids or kind required", nil)
		return
	}

	replayed := make([]uuid.UUID, 0, len(targets))
	for _, dl := range targets {
		if err := h.replay(ctx, dl); err != nil {
			failed[dl.ID.String()] = err.Error()
			continue
		}
		replayed = append(replayed, dl.ID)
	}
	h.Logger.Info().Int("replayed", len(replayed)).Int("failed", len(failed)).Msg("dead letters replayed")
	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	common.JSON(w, http.StatusOK, resp)
}

// Stats handles GET /api/v1/admin/queue/stats?kind=.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if !validKind(kind) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "valid kind is required", nil)
		return
	}
	ctx := r.Context()
	keys := keyspace(h.Queue.Prefix)
	ready, err := h.Queue.R.ZCard(ctx, keys.ready(kind)).Result()
	if err != nil {
		common.WriteError(w, ignoreNil(err))
		return
	}
	inflight, err := h.Queue.R.ZCard(ctx, keys.processing(kind)).Result()
	if err != nil {
		common.WriteError(w, ignoreNil(err))
		return
	}
	dead, err := h.Store.Count(ctx, kind)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var lag time.Duration
	if oldest, err := h.Queue.R.ZRangeWithScores(ctx, keys.ready(kind), 0, 0).Result(); err == nil && len(oldest) > 0 {
		if due := time.Unix(0, int64(oldest[0].Score)); due.Before(time.Now()) {
			lag = time.Since(due)
		}
	}
	if QueueDepth != nil {
		QueueDepth.WithLabelValues(kind).Set(float64(ready))
	}
	if QueueDLQSize != nil {
		QueueDLQSize.WithLabelValues(kind).Set(float64(dead))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"kind":          kind,
		"ready":         ready,
		"processing":    inflight,
		"dlq":           dead,
		"oldest_lag_ms": lag.Milliseconds(),
	})
}

// replay re-enqueues the task with one attempt left and removes the dead letter.
func (h *AdminHandler) replay(ctx context.Context, dl DeadLetter) error {
	env, err := decodeEnvelope(string(dl.Payload))
	if err != nil {
		return err
	}
	attempt := env.Attempt - 1
	if attempt < 0 {
		attempt = 0
	}
	if err := h.Queue.Enqueue(ctx, Task{
		Kind:           env.Kind,
		TenantID:       env.TenantID,
		Payload:        env.Payload,
		IdempotencyKey: env.Key,
		MaxAttempts:    env.MaxAttempts,
		Attempt:        attempt,
	}); err != nil {
		return err
	}
	if err := h.Store.Delete(ctx, dl.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (h *AdminHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Store == nil || h.Queue.R == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "queue dependencies unavailable", nil)
		return false
	}
	return true
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return h.PageSize
}
