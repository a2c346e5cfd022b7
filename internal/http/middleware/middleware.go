// Package middleware holds router-level guards shared by the public and admin APIs.
package middleware

import (
	"net/http"

	"github.com/noah-isme/autobidder/internal/common"
	"github.com/noah-isme/autobidder/internal/tenant"
)

// RequireTenant rejects requests the tenant resolver could not attribute to a business.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenant.From(r.Context()); !ok {
			common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant is required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NotFound renders unknown routes in the API error shape.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
}

// MethodNotAllowed renders unsupported methods in the API error shape.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}
