package assignment

import (
	"context"
	"time"

	"github.com/xraph/steward/id"
)

// Store defines persistence operations for role assignments.
type Store interface {
	// CreateAssignment persists a new assignment.
	CreateAssignment(ctx context.Context, a *Assignment) error

	// GetAssignment retrieves an assignment by ID. Returns ErrNotFound if absent.
	GetAssignment(ctx context.Context, assID id.AssignmentID) (*Assignment, error)

	// SetAssignmentActive flips the active flag and bumps UpdatedAt.
	SetAssignmentActive(ctx context.Context, assID id.AssignmentID, active bool) error

	// SetAssignmentWindow replaces the activity window. Nil bounds are open.
	SetAssignmentWindow(ctx context.Context, assID id.AssignmentID, from, until *time.Time) error

	// ListAssignments returns assignments matching the filter.
	ListAssignments(ctx context.Context, filter *ListFilter) ([]*Assignment, error)

	// CountAssignments returns the number of assignments matching the filter.
	CountAssignments(ctx context.Context, filter *ListFilter) (int64, error)

	// ListLiveAssignments returns the principal's assignments that are live
	// at the given instant, as defined by Assignment.LiveAt.
	ListLiveAssignments(ctx context.Context, tenantID, principalID string, at time.Time) ([]*Assignment, error)

	// NextWindowBoundary returns the earliest window bound of the
	// principal's active assignments at or after at, as NextBoundary does.
	NextWindowBoundary(ctx context.Context, tenantID, principalID string, at time.Time) (*time.Time, error)

	// ListAssignmentsForRole returns every assignment that references a role.
	ListAssignmentsForRole(ctx context.Context, roleID id.RoleID) ([]*Assignment, error)

	// DeleteAssignmentsByTenant removes all assignments for a tenant.
	DeleteAssignmentsByTenant(ctx context.Context, tenantID string) error
}
