package tenant

import "context"

// With is shorthand for WithTenant.
func With(ctx context.Context, id string) context.Context {
	return WithTenant(ctx, id)
}

// From is shorthand for FromContext.
func From(ctx context.Context) (string, bool) {
	return FromContext(ctx)
}

// PrefixKey namespaces a Redis key by tenant. An empty tenant leaves the key unchanged.
func PrefixKey(tenantID, key string) string {
	if tenantID == "" {
		return key
	}
	return tenantID + ":" + key
}
