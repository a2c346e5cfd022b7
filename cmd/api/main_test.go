package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func pprofRouter(user, pass string) http.Handler {
	r := chi.NewRouter()
	r.Mount(pprofPrefix, protectPprof(newPprofMux(), user, pass))
	return r
}

func TestPprofRoutesResolveUnderMount(t *testing.T) {
	r := pprofRouter("", "")

	cases := map[string]string{
		"/debug/pprof/":                  "goroutine",
		"/debug/pprof/cmdline":           "",
		"/debug/pprof/symbol":            "num_symbols",
		"/debug/pprof/heap?debug=1":      "heap profile",
		"/debug/pprof/goroutine?debug=1": "goroutine profile",
	}
	for path, want := range cases {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			require.NotContains(t, rec.Body.String(), "Unknown profile")
			require.Contains(t, rec.Body.String(), want)
		})
	}
}

func TestPprofRequiresBasicAuth(t *testing.T) {
	r := pprofRouter("ops", "secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.SetBasicAuth("ops", "secret")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
