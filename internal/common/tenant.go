package common

import (
	"net/http"

	"github.com/noah-isme/autobidder/internal/tenant"
)

// TenantID returns the tenant resolved for the request or a TENANT_REQUIRED error.
func TenantID(r *http.Request) (string, error) {
	id, ok := tenant.From(r.Context())
	if !ok {
		return "", NewAppError("TENANT_REQUIRED", "tenant is required", http.StatusBadRequest, nil)
	}
	return id, nil
}
