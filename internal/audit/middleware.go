package audit

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/tenant"
)

// Recorder writes an entry for every mutating request that passes through it.
type Recorder struct {
	Service Service
	OnError func(error)
}

// Middleware records after the handler has run so the final status and route are known.
// Reads are not recorded.
func (rec Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rec.Service.Enabled || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		sr := obs.NewStatusRecorder(w)
		next.ServeHTTP(sr, r)

		tenantID, _ := tenant.From(r.Context())
		e := Entry{
			TenantID:  tenantID,
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    sr.Status(),
			IP:        common.ClientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: middleware.GetReqID(r.Context()),
			Metadata:  queryMetadata(r.URL.RawQuery),
		}
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
			e.ResourceID = rc.URLParam("id")
		}
		if err := rec.Service.Record(context.WithoutCancel(r.Context()), e, route); err != nil && rec.OnError != nil {
			rec.OnError(err)
		}
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
