package role

import (
	"context"

	"github.com/xraph/steward/id"
)

// Store defines persistence operations for the role catalog.
type Store interface {
	// CreateRole persists a new role.
	CreateRole(ctx context.Context, r *Role) error

	// GetRole retrieves a role by ID. Returns ErrNotFound if absent.
	GetRole(ctx context.Context, roleID id.RoleID) (*Role, error)

	// GetRoles retrieves several roles in one round trip, keyed by ID
	// string. Unknown IDs are absent from the result rather than an error.
	GetRoles(ctx context.Context, roleIDs []id.RoleID) (map[string]*Role, error)

	// GetRoleBySlug retrieves a role by tenant and slug.
	GetRoleBySlug(ctx context.Context, tenantID, slug string) (*Role, error)

	// UpdateRole persists changes to a role.
	UpdateRole(ctx context.Context, r *Role) error

	// DeleteRole removes a role by ID. Assignments referencing it are kept.
	DeleteRole(ctx context.Context, roleID id.RoleID) error

	// ListRoles returns roles matching the filter ordered by precedence.
	ListRoles(ctx context.Context, filter *ListFilter) ([]*Role, error)

	// CountRoles returns the number of roles matching the filter.
	CountRoles(ctx context.Context, filter *ListFilter) (int64, error)

	// ListChildRoles returns direct child roles of a parent.
	ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*Role, error)

	// DeleteRolesByTenant removes all roles for a tenant.
	DeleteRolesByTenant(ctx context.Context, tenantID string) error
}
