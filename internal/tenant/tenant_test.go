package tenant_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/tenant"
)

func TestResolve(t *testing.T) {
	r := tenant.NewResolver("", "autobidder.app", "")
	cases := []struct {
		name   string
		host   string
		header string
		want   string
	}{
		{"header wins", "sparkle.autobidder.app", "Acme", "acme"},
		{"subdomain", "sparkle.autobidder.app:8080", "", "sparkle"},
		{"root domain", "autobidder.app", "", ""},
		{"foreign domain", "sparkle.example.com", "", ""},
		{"reserved subdomain", "www.autobidder.app", "", ""},
		{"invalid header", "autobidder.app", "acme corp", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tc.host
			if tc.header != "" {
				req.Header.Set("X-Tenant-ID", tc.header)
			}
			require.Equal(t, tc.want, r.Resolve(req))
		})
	}
}

func TestMiddlewareFallsBackToDefault(t *testing.T) {
	r := tenant.NewResolver("X-Business", "", "demo")
	var got string
	h := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got, _ = tenant.From(req.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "localhost"
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "demo", got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "sparkle.example.com"
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "sparkle", got)

	req.Host = "127.0.0.1"
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "demo", got)

	req.Header.Set("X-Business", "acme")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "acme", got)
}

func TestValidSlug(t *testing.T) {
	require.True(t, tenant.ValidSlug("sparkle-windows-2"))
	require.False(t, tenant.ValidSlug("-edge"))
	require.False(t, tenant.ValidSlug("Upper"))
	require.False(t, tenant.ValidSlug(""))
	require.Equal(t, "acme:formula:f1", tenant.PrefixKey("acme", "formula:f1"))
	require.Equal(t, "formula:f1", tenant.PrefixKey("", "formula:f1"))
}
