package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/obs"
	"github.com/noah-isme/autobidder/internal/tenant"
)

// Handler enforces a limit before delegating to the next handler.
type Handler struct {
	Limiter Allower
	// Scope names the limited surface in metrics and keys, e.g. "evaluate" or "submit".
	Scope string
	// Key derives the bucket for a request. Defaults to ClientKey.
	Key func(*http.Request) string
	// OnError observes limiter failures. Requests are let through when the store is unreachable.
	OnError func(error)
}

// Middleware implements the chi middleware signature.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil {
		return next
	}
	keyFn := h.Key
	if keyFn == nil {
		keyFn = ClientKey
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyFn(r)
		if h.Scope != "" {
			key = h.Scope + ":" + key
		}
		d, err := h.Limiter.Allow(r.Context(), key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(d.Limit, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(time.Until(d.Reset).Round(time.Second).Seconds())
			headers.Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			if obs.RateLimitedTotal != nil {
				obs.RateLimitedTotal.WithLabelValues(h.Scope).Inc()
			}
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey buckets requests by tenant and client address.
func ClientKey(r *http.Request) string {
	id, _ := tenant.From(r.Context())
	return tenant.PrefixKey(id, common.ClientIP(r))
}
