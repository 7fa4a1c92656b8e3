package steward

import (
	"context"
	"fmt"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/resolutionlog"
	"github.com/xraph/steward/role"
)

// Read helpers scope every lookup to the context tenant. An entity owned
// by another tenant is reported as not found.

// GetRole returns a role from the context tenant's catalog.
func (e *Engine) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	r, err := e.tenantRole(ctx, scopeFromContext(ctx), roleID)
	if err != nil {
		return nil, fmt.Errorf("steward: get role: %w", err)
	}
	return r, nil
}

// ListRoles lists the context tenant's roles ordered by precedence.
func (e *Engine) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, int64, error) {
	f := role.ListFilter{}
	if filter != nil {
		f = *filter
	}
	f.TenantID = scopeFromContext(ctx).tenantID
	roles, err := e.store.ListRoles(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("steward: list roles: %w", err)
	}
	total, err := e.store.CountRoles(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("steward: count roles: %w", err)
	}
	return roles, total, nil
}

// GetPrincipal returns a registered principal by external identifier.
func (e *Engine) GetPrincipal(ctx context.Context, externalID string) (*principal.Principal, error) {
	p, err := e.store.GetPrincipal(ctx, scopeFromContext(ctx).tenantID, externalID)
	if err != nil {
		return nil, fmt.Errorf("steward: get principal: %w", err)
	}
	return p, nil
}

// ListPrincipals lists the context tenant's registered principals.
func (e *Engine) ListPrincipals(ctx context.Context, filter *principal.ListFilter) ([]*principal.Principal, int64, error) {
	f := principal.ListFilter{}
	if filter != nil {
		f = *filter
	}
	f.TenantID = scopeFromContext(ctx).tenantID
	list, err := e.store.ListPrincipals(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("steward: list principals: %w", err)
	}
	total, err := e.store.CountPrincipals(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("steward: count principals: %w", err)
	}
	return list, total, nil
}

// GetAssignment returns an assignment from the context tenant.
func (e *Engine) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	a, err := e.store.GetAssignment(ctx, assID)
	if err == nil && a.TenantID != scopeFromContext(ctx).tenantID {
		err = fmt.Errorf("assignment %s: %w", assID, assignment.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("steward: get assignment: %w", err)
	}
	return a, nil
}

// ListAssignments lists the context tenant's assignments, deactivated
// ones included unless the filter asks for ActiveOnly.
func (e *Engine) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, int64, error) {
	f := assignment.ListFilter{}
	if filter != nil {
		f = *filter
	}
	f.TenantID = scopeFromContext(ctx).tenantID
	list, err := e.store.ListAssignments(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("steward: list assignments: %w", err)
	}
	total, err := e.store.CountAssignments(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("steward: count assignments: %w", err)
	}
	return list, total, nil
}

// ListResolutionEntries lists the context tenant's resolution warnings,
// newest first.
func (e *Engine) ListResolutionEntries(ctx context.Context, filter *resolutionlog.QueryFilter) ([]*resolutionlog.Entry, int64, error) {
	f := resolutionlog.QueryFilter{}
	if filter != nil {
		f = *filter
	}
	f.TenantID = scopeFromContext(ctx).tenantID
	list, err := e.store.ListResolutionEntries(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("steward: list resolution entries: %w", err)
	}
	total, err := e.store.CountResolutionEntries(ctx, &f)
	if err != nil {
		return nil, 0, fmt.Errorf("steward: count resolution entries: %w", err)
	}
	return list, total, nil
}
