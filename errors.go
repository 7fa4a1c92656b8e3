package steward

import (
	"errors"
	"fmt"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/role"
)

var (
	// ErrUnknownPrincipal is returned when the principal registry reports
	// that the principal does not exist. A registered principal without
	// assignments resolves successfully to empty privileges instead.
	ErrUnknownPrincipal = errors.New("steward: unknown principal")

	// ErrCollaboratorUnavailable is returned when the role or assignment
	// source fails. Resolution never substitutes an empty result for it.
	ErrCollaboratorUnavailable = errors.New("steward: collaborator unavailable")

	// ErrDanglingRoleReference marks an assignment whose role is missing
	// from the catalog. It is reported through Warning, never returned by
	// Resolve.
	ErrDanglingRoleReference = errors.New("steward: dangling role reference")

	// ErrInvalidPrincipalID is returned for an empty principal identifier.
	ErrInvalidPrincipalID = errors.New("steward: invalid principal id")

	// ErrAccessDenied is returned by Enforce when a permission is missing.
	ErrAccessDenied = errors.New("steward: access denied")

	// ErrStoreRequired is returned by NewEngine without WithStore.
	ErrStoreRequired = errors.New("steward: store is required")

	// ErrCacheInvalidation is returned when a write succeeded but the cache
	// could not be invalidated. Callers should retry the invalidation.
	ErrCacheInvalidation = errors.New("steward: cache invalidation failed")

	// ErrCyclicRoleInheritance is returned when a parent assignment would
	// create a cycle.
	ErrCyclicRoleInheritance = errors.New("steward: cyclic role inheritance detected")

	// ErrDuplicateAssignment is returned when an identical active
	// assignment already exists.
	ErrDuplicateAssignment = errors.New("steward: role already assigned to principal")

	// ErrSystemRoleImmutable is returned when trying to modify a system role.
	ErrSystemRoleImmutable = errors.New("steward: system role cannot be modified")
)

// Entity errors re-exported so callers need only this package.
var (
	ErrRoleNotFound       = role.ErrNotFound
	ErrDuplicateRole      = role.ErrDuplicateSlug
	ErrInvalidPrecedence  = role.ErrInvalidPrecedence
	ErrAssignmentNotFound = assignment.ErrNotFound
	ErrInvalidWindow      = assignment.ErrInvalidWindow
	ErrPrincipalNotFound  = principal.ErrNotFound
	ErrDuplicatePrincipal = principal.ErrDuplicate
)

// ResolutionError describes a failed resolution. It unwraps to both the
// taxonomy sentinel and the underlying cause.
type ResolutionError struct {
	PrincipalID string
	Op          string
	Kind        error
	Err         error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s: principal %q", e.Kind, e.Op, e.PrincipalID)
	}
	return fmt.Sprintf("%v: %s: principal %q: %v", e.Kind, e.Op, e.PrincipalID, e.Err)
}

// Unwrap returns the sentinel and the cause.
func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(principalID, op string, err error) error {
	return &ResolutionError{PrincipalID: principalID, Op: op, Kind: ErrCollaboratorUnavailable, Err: err}
}

// WarningError adapts a Warning to the error interface.
type WarningError struct {
	Warning  Warning
	sentinel error
}

func (e *WarningError) Error() string {
	return fmt.Sprintf("%v: %s", e.sentinel, e.Warning.Message)
}

func (e *WarningError) Unwrap() error { return e.sentinel }
