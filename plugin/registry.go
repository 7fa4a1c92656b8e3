package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/role"
)

// entry pairs a hook with the plugin name for logging.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeResolve       []entry[BeforeResolve]
	afterResolve        []entry[AfterResolve]
	resolutionWarning   []entry[ResolutionWarning]
	cacheInvalidated    []entry[CacheInvalidated]
	roleCreated         []entry[RoleCreated]
	roleUpdated         []entry[RoleUpdated]
	roleDeleted         []entry[RoleDeleted]
	assignmentCreated   []entry[AssignmentCreated]
	assignmentChanged   []entry[AssignmentChanged]
	principalRegistered []entry[PrincipalRegistered]
	shutdown            []entry[Shutdown]
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// SetLogger replaces the logger used for hook errors.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeResolve); ok {
		r.beforeResolve = append(r.beforeResolve, entry[BeforeResolve]{name, h})
	}
	if h, ok := p.(AfterResolve); ok {
		r.afterResolve = append(r.afterResolve, entry[AfterResolve]{name, h})
	}
	if h, ok := p.(ResolutionWarning); ok {
		r.resolutionWarning = append(r.resolutionWarning, entry[ResolutionWarning]{name, h})
	}
	if h, ok := p.(CacheInvalidated); ok {
		r.cacheInvalidated = append(r.cacheInvalidated, entry[CacheInvalidated]{name, h})
	}
	if h, ok := p.(RoleCreated); ok {
		r.roleCreated = append(r.roleCreated, entry[RoleCreated]{name, h})
	}
	if h, ok := p.(RoleUpdated); ok {
		r.roleUpdated = append(r.roleUpdated, entry[RoleUpdated]{name, h})
	}
	if h, ok := p.(RoleDeleted); ok {
		r.roleDeleted = append(r.roleDeleted, entry[RoleDeleted]{name, h})
	}
	if h, ok := p.(AssignmentCreated); ok {
		r.assignmentCreated = append(r.assignmentCreated, entry[AssignmentCreated]{name, h})
	}
	if h, ok := p.(AssignmentChanged); ok {
		r.assignmentChanged = append(r.assignmentChanged, entry[AssignmentChanged]{name, h})
	}
	if h, ok := p.(PrincipalRegistered); ok {
		r.principalRegistered = append(r.principalRegistered, entry[PrincipalRegistered]{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Resolution event emitters
// ──────────────────────────────────────────────────

// EmitBeforeResolve notifies all plugins that implement BeforeResolve.
func (r *Registry) EmitBeforeResolve(ctx context.Context, req any) {
	for _, e := range r.beforeResolve {
		if err := e.hook.OnBeforeResolve(ctx, req); err != nil {
			r.logHookError("OnBeforeResolve", e.name, err)
		}
	}
}

// EmitAfterResolve notifies all plugins that implement AfterResolve.
func (r *Registry) EmitAfterResolve(ctx context.Context, event any) {
	for _, e := range r.afterResolve {
		if err := e.hook.OnAfterResolve(ctx, event); err != nil {
			r.logHookError("OnAfterResolve", e.name, err)
		}
	}
}

// EmitResolutionWarning notifies all plugins that implement ResolutionWarning.
func (r *Registry) EmitResolutionWarning(ctx context.Context, tenantID, principalID string, warning any) {
	for _, e := range r.resolutionWarning {
		if err := e.hook.OnResolutionWarning(ctx, tenantID, principalID, warning); err != nil {
			r.logHookError("OnResolutionWarning", e.name, err)
		}
	}
}

// EmitCacheInvalidated notifies all plugins that implement CacheInvalidated.
func (r *Registry) EmitCacheInvalidated(ctx context.Context, tenantID, principalID string) {
	for _, e := range r.cacheInvalidated {
		if err := e.hook.OnCacheInvalidated(ctx, tenantID, principalID); err != nil {
			r.logHookError("OnCacheInvalidated", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Role event emitters
// ──────────────────────────────────────────────────

// EmitRoleCreated notifies all plugins that implement RoleCreated.
func (r *Registry) EmitRoleCreated(ctx context.Context, rl *role.Role) {
	for _, e := range r.roleCreated {
		if err := e.hook.OnRoleCreated(ctx, rl); err != nil {
			r.logHookError("OnRoleCreated", e.name, err)
		}
	}
}

// EmitRoleUpdated notifies all plugins that implement RoleUpdated.
func (r *Registry) EmitRoleUpdated(ctx context.Context, rl *role.Role) {
	for _, e := range r.roleUpdated {
		if err := e.hook.OnRoleUpdated(ctx, rl); err != nil {
			r.logHookError("OnRoleUpdated", e.name, err)
		}
	}
}

// EmitRoleDeleted notifies all plugins that implement RoleDeleted.
func (r *Registry) EmitRoleDeleted(ctx context.Context, roleID id.RoleID) {
	for _, e := range r.roleDeleted {
		if err := e.hook.OnRoleDeleted(ctx, roleID); err != nil {
			r.logHookError("OnRoleDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Assignment and principal emitters
// ──────────────────────────────────────────────────

// EmitAssignmentCreated notifies all plugins that implement AssignmentCreated.
func (r *Registry) EmitAssignmentCreated(ctx context.Context, a *assignment.Assignment) {
	for _, e := range r.assignmentCreated {
		if err := e.hook.OnAssignmentCreated(ctx, a); err != nil {
			r.logHookError("OnAssignmentCreated", e.name, err)
		}
	}
}

// EmitAssignmentChanged notifies all plugins that implement AssignmentChanged.
func (r *Registry) EmitAssignmentChanged(ctx context.Context, a *assignment.Assignment) {
	for _, e := range r.assignmentChanged {
		if err := e.hook.OnAssignmentChanged(ctx, a); err != nil {
			r.logHookError("OnAssignmentChanged", e.name, err)
		}
	}
}

// EmitPrincipalRegistered notifies all plugins that implement PrincipalRegistered.
func (r *Registry) EmitPrincipalRegistered(ctx context.Context, p *principal.Principal) {
	for _, e := range r.principalRegistered {
		if err := e.hook.OnPrincipalRegistered(ctx, p); err != nil {
			r.logHookError("OnPrincipalRegistered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated to the caller.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
