package steward

import (
	"context"

	"github.com/xraph/forge"
)

type tenantScope struct {
	appID    string
	tenantID string
}

// scopeFromContext extracts tenant scope from forge.Scope, falling back to
// WithTenant values in standalone mode.
func scopeFromContext(ctx context.Context) tenantScope {
	if s, ok := forge.ScopeFrom(ctx); ok {
		return tenantScope{appID: s.AppID(), tenantID: s.OrgID()}
	}
	return tenantScope{
		appID:    stringFromContext(ctx, ctxKeyAppID),
		tenantID: stringFromContext(ctx, ctxKeyTenantID),
	}
}

// TenantFromContext returns the app and tenant IDs Steward will use for ctx.
func TenantFromContext(ctx context.Context) (appID, tenantID string) {
	s := scopeFromContext(ctx)
	return s.appID, s.tenantID
}
