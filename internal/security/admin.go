package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/autobidder/internal/common"
)

// AdminToken guards the business owner's API with a single shared bearer token.
type AdminToken struct {
	Token string
}

// Middleware rejects requests without the configured token. An empty token locks the admin API.
func (a AdminToken) Middleware(next http.Handler) http.Handler {
	want := []byte(strings.TrimSpace(a.Token))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := bearer(r.Header.Get("Authorization"))
		if len(want) == 0 || got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "admin token required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
