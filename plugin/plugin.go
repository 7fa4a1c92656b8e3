// Package plugin defines the plugin system for Steward.
// Plugins are notified of lifecycle events (privileges resolved, role
// changed, assignment granted, etc.) and can react with logging, metrics,
// or persistence of their own.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Resolution lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeResolve is called before privileges are resolved.
// The req parameter is *steward.ResolveRequest (passed as any to avoid an import cycle).
type BeforeResolve interface {
	OnBeforeResolve(ctx context.Context, req any) error
}

// AfterResolve is called after a resolution completes, successfully or not.
// The event parameter is *steward.ResolveEvent.
type AfterResolve interface {
	OnAfterResolve(ctx context.Context, event any) error
}

// ResolutionWarning is called once per non-fatal warning of a fresh
// (uncached) resolution. The warning parameter is steward.Warning.
type ResolutionWarning interface {
	OnResolutionWarning(ctx context.Context, tenantID, principalID string, warning any) error
}

// CacheInvalidated is called after cached privileges were dropped.
// An empty principalID means the whole tenant.
type CacheInvalidated interface {
	OnCacheInvalidated(ctx context.Context, tenantID, principalID string) error
}

// ──────────────────────────────────────────────────
// Role lifecycle hooks
// ──────────────────────────────────────────────────

// RoleCreated is called after a role is created.
type RoleCreated interface {
	OnRoleCreated(ctx context.Context, r *role.Role) error
}

// RoleUpdated is called after a role is updated.
type RoleUpdated interface {
	OnRoleUpdated(ctx context.Context, r *role.Role) error
}

// RoleDeleted is called after a role is deleted.
type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, roleID id.RoleID) error
}

// ──────────────────────────────────────────────────
// Assignment and principal hooks
// ──────────────────────────────────────────────────

// AssignmentCreated is called after a role is granted to a principal.
type AssignmentCreated interface {
	OnAssignmentCreated(ctx context.Context, a *assignment.Assignment) error
}

// AssignmentChanged is called after an assignment is activated,
// deactivated, or has its window changed.
type AssignmentChanged interface {
	OnAssignmentChanged(ctx context.Context, a *assignment.Assignment) error
}

// PrincipalRegistered is called after a principal is registered.
type PrincipalRegistered interface {
	OnPrincipalRegistered(ctx context.Context, p *principal.Principal) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
