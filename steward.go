// Package steward resolves a principal's effective privileges from
// role assignments.
//
// A principal holds zero or more assignments, each binding it to one role
// from the catalog for an optional activity window. Resolution merges every
// live assignment into a single EffectivePrivileges snapshot: the
// contributing roles ordered by precedence, the most authoritative
// precedence, and the union of permission and module grants. Snapshots are
// cached per principal and invalidated synchronously on every assignment
// write. It is tenant-scoped via forge.Scope or WithTenant.
//
//	eng, err := steward.NewEngine(
//	    steward.WithStore(memStore),
//	    steward.WithCache(cache.NewMemory()),
//	)
//	priv, err := eng.Resolve(ctx, "user_123")
//	if priv.HasPermission("manage_users") { ... }
package steward

import (
	"slices"
	"time"

	"github.com/xraph/steward/role"
)

// PrincipalKind identifies the type of identity holding assignments.
type PrincipalKind string

const (
	// PrincipalUser represents a human user.
	PrincipalUser PrincipalKind = "user"

	// PrincipalAPIKey represents an API key.
	PrincipalAPIKey PrincipalKind = "api_key"

	// PrincipalService represents a service-to-service caller.
	PrincipalService PrincipalKind = "service"

	// PrincipalServiceAcct represents a service account.
	PrincipalServiceAcct PrincipalKind = "service_acct"
)

// PrecedenceNone is the HighestPrecedence reported for a principal with
// no contributing roles. It compares greater than every real precedence.
const PrecedenceNone = role.PrecedenceNone

// EffectivePrivileges is the merged result of resolving one principal at
// one instant. Treat it as immutable; use Clone before modifying.
type EffectivePrivileges struct {
	TenantID          string      `json:"tenant_id"`
	PrincipalID       string      `json:"principal_id"`
	Roles             []RoleGrant `json:"roles"`
	HighestPrecedence int         `json:"highest_precedence"`
	Permissions       []string    `json:"permissions"`
	Modules           []string    `json:"modules"`
	Warnings          []Warning   `json:"warnings,omitempty"`
	EvaluatedAt       time.Time   `json:"evaluated_at"`

	// ValidUntil is the next instant at which an assignment window opens
	// or closes. Nil when no window bounds the result.
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// RoleGrant is one role contributing to a resolution.
type RoleGrant struct {
	RoleID       RoleID       `json:"role_id"`
	Slug         string       `json:"slug"`
	Name         string       `json:"name"`
	Precedence   int          `json:"precedence"`
	AssignmentID AssignmentID `json:"assignment_id"`

	// Inherited is set for roles reached only through a parent chain.
	Inherited bool `json:"inherited,omitempty"`
}

// WarningKind classifies a non-fatal resolution problem.
type WarningKind string

const (
	// WarningDanglingRole means an assignment references a missing role.
	WarningDanglingRole WarningKind = "dangling_role"

	// WarningDanglingParent means a role's parent is missing.
	WarningDanglingParent WarningKind = "dangling_parent"

	// WarningInheritanceCycle means a parent chain loops back on itself.
	WarningInheritanceCycle WarningKind = "inheritance_cycle"

	// WarningInheritanceDepth means a parent chain exceeded MaxInheritanceDepth.
	WarningInheritanceDepth WarningKind = "inheritance_depth"
)

// Warning records a problem that excluded some grants from a resolution
// without failing it.
type Warning struct {
	Kind         WarningKind `json:"kind"`
	AssignmentID string      `json:"assignment_id,omitempty"`
	RoleID       string      `json:"role_id,omitempty"`
	Message      string      `json:"message"`
}

// Err returns the warning as an error. Dangling references match
// ErrDanglingRoleReference and inheritance loops ErrCyclicRoleInheritance.
func (w Warning) Err() error {
	switch w.Kind {
	case WarningInheritanceCycle, WarningInheritanceDepth:
		return &WarningError{Warning: w, sentinel: ErrCyclicRoleInheritance}
	default:
		return &WarningError{Warning: w, sentinel: ErrDanglingRoleReference}
	}
}

// IsEmpty reports whether no role contributed.
func (p *EffectivePrivileges) IsEmpty() bool {
	return len(p.Roles) == 0
}

// HasPermission reports whether any granted permission covers required.
// Grants may be wildcards such as "*" or "users:*".
func (p *EffectivePrivileges) HasPermission(required string) bool {
	for _, granted := range p.Permissions {
		if matchPermission(granted, required) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every required permission is covered.
func (p *EffectivePrivileges) HasAllPermissions(required ...string) bool {
	for _, r := range required {
		if !p.HasPermission(r) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether at least one required permission is covered.
func (p *EffectivePrivileges) HasAnyPermission(required ...string) bool {
	return slices.ContainsFunc(required, p.HasPermission)
}

// CanAccessModule reports whether module access was granted.
func (p *EffectivePrivileges) CanAccessModule(module string) bool {
	for _, granted := range p.Modules {
		if matchPermission(granted, module) {
			return true
		}
	}
	return false
}

// HasRole reports whether the role with the given slug contributed.
func (p *EffectivePrivileges) HasRole(slug string) bool {
	return slices.ContainsFunc(p.Roles, func(g RoleGrant) bool { return g.Slug == slug })
}

// Clone returns a deep copy.
func (p *EffectivePrivileges) Clone() *EffectivePrivileges {
	if p == nil {
		return nil
	}
	c := *p
	c.Roles = slices.Clone(p.Roles)
	c.Permissions = slices.Clone(p.Permissions)
	c.Modules = slices.Clone(p.Modules)
	c.Warnings = slices.Clone(p.Warnings)
	if p.ValidUntil != nil {
		v := *p.ValidUntil
		c.ValidUntil = &v
	}
	return &c
}

// emptyPrivileges is the successful result for a principal without live roles.
func emptyPrivileges(tenantID, principalID string, at time.Time) *EffectivePrivileges {
	return &EffectivePrivileges{
		TenantID:          tenantID,
		PrincipalID:       principalID,
		Roles:             []RoleGrant{},
		HighestPrecedence: PrecedenceNone,
		Permissions:       []string{},
		Modules:           []string{},
		EvaluatedAt:       at,
	}
}
