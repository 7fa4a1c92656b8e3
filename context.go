package steward

import "context"

type contextKey int

const (
	ctxKeyAppID contextKey = iota
	ctxKeyTenantID
)

// WithTenant returns a context with the given app and tenant IDs.
// Use this for standalone mode (without Forge).
func WithTenant(ctx context.Context, appID, tenantID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyAppID, appID)
	return context.WithValue(ctx, ctxKeyTenantID, tenantID)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}
