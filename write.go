package steward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/role"
)

// The write path. Every mutation that can change a resolution invalidates
// the cache before returning, so a caller that observes success also
// observes the change on its next Resolve. When the store write succeeds
// but invalidation fails the error matches ErrCacheInvalidation.

// ──────────────────────────────────────────────────
// Roles
// ──────────────────────────────────────────────────

// CreateRole adds a role to the context tenant's catalog.
func (e *Engine) CreateRole(ctx context.Context, r *role.Role) error {
	scope := scopeFromContext(ctx)
	if r.ID.IsNil() {
		r.ID = id.NewRoleID()
	}
	r.TenantID, r.AppID = scope.tenantID, scope.appID
	role.Normalize(r)
	if err := role.Validate(r); err != nil {
		return fmt.Errorf("steward: create role: %w", err)
	}
	if err := e.checkParent(ctx, scope, r); err != nil {
		return fmt.Errorf("steward: create role: %w", err)
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	if err := e.store.CreateRole(ctx, r); err != nil {
		return fmt.Errorf("steward: create role: %w", err)
	}
	e.plugins.EmitRoleCreated(ctx, r)
	return nil
}

// UpdateRole replaces a role's definition. Any principal may hold the
// role, so the whole tenant is invalidated.
func (e *Engine) UpdateRole(ctx context.Context, r *role.Role) error {
	scope := scopeFromContext(ctx)
	existing, err := e.tenantRole(ctx, scope, r.ID)
	if err != nil {
		return fmt.Errorf("steward: update role: %w", err)
	}
	if existing.IsSystem {
		return fmt.Errorf("steward: update role: %w", ErrSystemRoleImmutable)
	}
	r.TenantID, r.AppID = existing.TenantID, existing.AppID
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	role.Normalize(r)
	if err := role.Validate(r); err != nil {
		return fmt.Errorf("steward: update role: %w", err)
	}
	if err := e.checkParent(ctx, scope, r); err != nil {
		return fmt.Errorf("steward: update role: %w", err)
	}

	if err := e.store.UpdateRole(ctx, r); err != nil {
		return fmt.Errorf("steward: update role: %w", err)
	}
	if err := e.invalidate(ctx, scope.tenantID, ""); err != nil {
		return fmt.Errorf("steward: update role: %w", err)
	}
	e.plugins.EmitRoleUpdated(ctx, r)
	return nil
}

// DeleteRole removes a role from the catalog. Assignments that still
// reference it become dangling and are reported as resolution warnings.
func (e *Engine) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	scope := scopeFromContext(ctx)
	existing, err := e.tenantRole(ctx, scope, roleID)
	if err != nil {
		return fmt.Errorf("steward: delete role: %w", err)
	}
	if existing.IsSystem {
		return fmt.Errorf("steward: delete role: %w", ErrSystemRoleImmutable)
	}
	if err := e.store.DeleteRole(ctx, roleID); err != nil {
		return fmt.Errorf("steward: delete role: %w", err)
	}
	if err := e.invalidate(ctx, scope.tenantID, ""); err != nil {
		return fmt.Errorf("steward: delete role: %w", err)
	}
	e.plugins.EmitRoleDeleted(ctx, roleID)
	return nil
}

func (e *Engine) tenantRole(ctx context.Context, scope tenantScope, roleID id.RoleID) (*role.Role, error) {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if r.TenantID != scope.tenantID {
		return nil, fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	return r, nil
}

// checkParent verifies the parent exists in the tenant and that linking
// to it does not create a cycle.
func (e *Engine) checkParent(ctx context.Context, scope tenantScope, r *role.Role) error {
	if r.ParentID == nil {
		return nil
	}
	seen := map[string]struct{}{r.ID.String(): {}}
	next := *r.ParentID
	for {
		if _, loop := seen[next.String()]; loop {
			return ErrCyclicRoleInheritance
		}
		seen[next.String()] = struct{}{}
		parent, err := e.tenantRole(ctx, scope, next)
		if err != nil {
			return fmt.Errorf("parent: %w", err)
		}
		if parent.ParentID == nil {
			return nil
		}
		next = *parent.ParentID
	}
}

// ──────────────────────────────────────────────────
// Principals
// ──────────────────────────────────────────────────

// RegisterPrincipal adds a principal to the context tenant's registry.
func (e *Engine) RegisterPrincipal(ctx context.Context, p *principal.Principal) error {
	scope := scopeFromContext(ctx)
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	if p.ExternalID == "" {
		return fmt.Errorf("steward: register principal: %w", ErrInvalidPrincipalID)
	}
	if p.ID.IsNil() {
		p.ID = id.NewPrincipalID()
	}
	if p.Kind == "" {
		p.Kind = string(PrincipalUser)
	}
	p.TenantID, p.AppID = scope.tenantID, scope.appID
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	if err := e.store.CreatePrincipal(ctx, p); err != nil {
		return fmt.Errorf("steward: register principal: %w", err)
	}
	// Registration turns a previously unknown principal into a known one.
	if err := e.invalidate(ctx, scope.tenantID, p.ExternalID); err != nil {
		return fmt.Errorf("steward: register principal: %w", err)
	}
	e.plugins.EmitPrincipalRegistered(ctx, p)
	return nil
}

// ──────────────────────────────────────────────────
// Assignments
// ──────────────────────────────────────────────────

// GrantRequest describes a new assignment.
type GrantRequest struct {
	PrincipalID    string         `json:"principal_id"`
	RoleID         id.RoleID      `json:"role_id"`
	EffectiveFrom  *time.Time     `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time     `json:"effective_until,omitempty"`
	GrantedBy      string         `json:"granted_by,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// GrantRole assigns a role to a principal. The new assignment is active
// and bounded by the optional window.
func (e *Engine) GrantRole(ctx context.Context, req *GrantRequest) (*assignment.Assignment, error) {
	scope := scopeFromContext(ctx)
	pid := strings.TrimSpace(req.PrincipalID)
	if pid == "" {
		return nil, fmt.Errorf("steward: grant role: %w", assignment.ErrPrincipalRequired)
	}
	if err := assignment.ValidateWindow(req.EffectiveFrom, req.EffectiveUntil); err != nil {
		return nil, fmt.Errorf("steward: grant role: %w", err)
	}
	if _, err := e.tenantRole(ctx, scope, req.RoleID); err != nil {
		return nil, fmt.Errorf("steward: grant role: %w", err)
	}
	if e.config.registryRequired() {
		if _, err := e.store.GetPrincipal(ctx, scope.tenantID, pid); err != nil {
			if errors.Is(err, principal.ErrNotFound) {
				return nil, fmt.Errorf("steward: grant role: %w: %q", ErrUnknownPrincipal, pid)
			}
			return nil, fmt.Errorf("steward: grant role: %w", err)
		}
	}
	if err := e.checkDuplicate(ctx, scope, pid, req); err != nil {
		return nil, fmt.Errorf("steward: grant role: %w", err)
	}

	now := time.Now().UTC()
	a := &assignment.Assignment{
		ID:             id.NewAssignmentID(),
		TenantID:       scope.tenantID,
		AppID:          scope.appID,
		PrincipalID:    pid,
		RoleID:         req.RoleID,
		IsActive:       true,
		EffectiveFrom:  utcPtr(req.EffectiveFrom),
		EffectiveUntil: utcPtr(req.EffectiveUntil),
		GrantedBy:      req.GrantedBy,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("steward: grant role: %w", err)
	}
	if err := e.invalidate(ctx, scope.tenantID, pid); err != nil {
		return a, fmt.Errorf("steward: grant role: %w", err)
	}
	e.plugins.EmitAssignmentCreated(ctx, a)
	return a, nil
}

func (e *Engine) checkDuplicate(ctx context.Context, scope tenantScope, pid string, req *GrantRequest) error {
	existing, err := e.store.ListAssignments(ctx, &assignment.ListFilter{
		TenantID:    scope.tenantID,
		PrincipalID: pid,
		RoleID:      &req.RoleID,
		ActiveOnly:  true,
	})
	if err != nil {
		return err
	}
	for _, a := range existing {
		if sameInstant(a.EffectiveFrom, req.EffectiveFrom) && sameInstant(a.EffectiveUntil, req.EffectiveUntil) {
			return ErrDuplicateAssignment
		}
	}
	return nil
}

// ActivateAssignment re-enables a deactivated assignment.
func (e *Engine) ActivateAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	return e.changeAssignment(ctx, "activate assignment", assID, func(a *assignment.Assignment) error {
		return e.store.SetAssignmentActive(ctx, a.ID, true)
	})
}

// DeactivateAssignment revokes an assignment. The record is kept for audit.
func (e *Engine) DeactivateAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	return e.changeAssignment(ctx, "deactivate assignment", assID, func(a *assignment.Assignment) error {
		return e.store.SetAssignmentActive(ctx, a.ID, false)
	})
}

// SetAssignmentWindow replaces an assignment's activity window. Nil
// bounds are open.
func (e *Engine) SetAssignmentWindow(ctx context.Context, assID id.AssignmentID, from, until *time.Time) (*assignment.Assignment, error) {
	if err := assignment.ValidateWindow(from, until); err != nil {
		return nil, fmt.Errorf("steward: set assignment window: %w", err)
	}
	return e.changeAssignment(ctx, "set assignment window", assID, func(a *assignment.Assignment) error {
		return e.store.SetAssignmentWindow(ctx, a.ID, utcPtr(from), utcPtr(until))
	})
}

func (e *Engine) changeAssignment(ctx context.Context, op string, assID id.AssignmentID, apply func(*assignment.Assignment) error) (*assignment.Assignment, error) {
	scope := scopeFromContext(ctx)
	a, err := e.store.GetAssignment(ctx, assID)
	if err != nil {
		return nil, fmt.Errorf("steward: %s: %w", op, err)
	}
	if a.TenantID != scope.tenantID {
		return nil, fmt.Errorf("steward: %s: assignment %s: %w", op, assID, assignment.ErrNotFound)
	}
	if err := apply(a); err != nil {
		return nil, fmt.Errorf("steward: %s: %w", op, err)
	}
	if err := e.invalidate(ctx, a.TenantID, a.PrincipalID); err != nil {
		return nil, fmt.Errorf("steward: %s: %w", op, err)
	}
	updated, err := e.store.GetAssignment(ctx, assID)
	if err != nil {
		return nil, fmt.Errorf("steward: %s: %w", op, err)
	}
	e.plugins.EmitAssignmentChanged(ctx, updated)
	return updated, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
