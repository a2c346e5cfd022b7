package common_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/tenant"
)

func idemClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func submit(h http.Handler, tenantID, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", key)
	req = req.WithContext(tenant.With(req.Context(), tenantID))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	var calls atomic.Int32
	h := common.Idem{R: idemClient(t), TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		common.JSON(w, http.StatusCreated, map[string]any{"call": n})
	}))

	first := submit(h, "acme", "k1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := submit(h, "acme", "k1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.EqualValues(t, 1, calls.Load())

	other := submit(h, "globex", "k1")
	require.Equal(t, http.StatusCreated, other.Code)
	require.EqualValues(t, 2, calls.Load())
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	var calls atomic.Int32
	h := common.Idem{R: idemClient(t), TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "boom", nil)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	require.Equal(t, http.StatusInternalServerError, submit(h, "acme", "k2").Code)
	require.Equal(t, http.StatusCreated, submit(h, "acme", "k2").Code)
}

func TestIdempotencyInProgress(t *testing.T) {
	client := idemClient(t)
	release := make(chan struct{})
	started := make(chan struct{})
	h := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	done := make(chan int)
	go func() { done <- submit(h, "acme", "k3").Code }()
	<-started
	require.Equal(t, http.StatusConflict, submit(h, "acme", "k3").Code)
	close(release)
	require.Equal(t, http.StatusCreated, <-done)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	var calls atomic.Int32
	h := common.Idem{R: idemClient(t)}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil))
	}
	require.EqualValues(t, 2, calls.Load())
}
