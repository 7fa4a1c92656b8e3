// Package assignment defines the Assignment entity: a principal's binding
// to a role, optionally bounded by an activity window.
package assignment

import (
	"errors"
	"time"

	"github.com/xraph/steward/id"
)

var (
	// ErrNotFound is returned by stores when an assignment does not exist.
	ErrNotFound = errors.New("steward: assignment not found")

	// ErrInvalidWindow is returned when effective_until precedes effective_from.
	ErrInvalidWindow = errors.New("steward: assignment window ends before it starts")

	// ErrPrincipalRequired is returned when an assignment names no principal.
	ErrPrincipalRequired = errors.New("steward: assignment principal is required")
)

// Assignment binds a principal to a role. Revocation deactivates the
// record; assignments are never deleted individually.
type Assignment struct {
	ID             id.AssignmentID `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	AppID          string          `json:"app_id" db:"app_id"`
	PrincipalID    string          `json:"principal_id" db:"principal_id"`
	RoleID         id.RoleID       `json:"role_id" db:"role_id"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	EffectiveFrom  *time.Time      `json:"effective_from,omitempty" db:"effective_from"`
	EffectiveUntil *time.Time      `json:"effective_until,omitempty" db:"effective_until"`
	GrantedBy      string          `json:"granted_by,omitempty" db:"granted_by"`
	Metadata       map[string]any  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// LiveAt reports whether the assignment contributes at t. Both window
// bounds are inclusive and a nil bound is open.
func (a *Assignment) LiveAt(t time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.EffectiveFrom != nil && t.Before(*a.EffectiveFrom) {
		return false
	}
	if a.EffectiveUntil != nil && t.After(*a.EffectiveUntil) {
		return false
	}
	return true
}

// ValidateWindow rejects a window whose end precedes its start.
func ValidateWindow(from, until *time.Time) error {
	if from != nil && until != nil && until.Before(*from) {
		return ErrInvalidWindow
	}
	return nil
}

// NextBoundary returns the earliest instant at or after at where the
// liveness of one of the active assignments can change, or nil.
func NextBoundary(as []*Assignment, at time.Time) *time.Time {
	var next *time.Time
	consider := func(t *time.Time) {
		if next == nil || t.Before(*next) {
			v := *t
			next = &v
		}
	}
	for _, a := range as {
		if !a.IsActive {
			continue
		}
		if a.EffectiveFrom != nil && a.EffectiveFrom.After(at) {
			consider(a.EffectiveFrom)
		}
		if a.EffectiveUntil != nil && !a.EffectiveUntil.Before(at) {
			consider(a.EffectiveUntil)
		}
	}
	return next
}

// ListFilter contains filters for listing assignments.
type ListFilter struct {
	TenantID    string     `json:"tenant_id,omitempty"`
	AppID       string     `json:"app_id,omitempty"`
	PrincipalID string     `json:"principal_id,omitempty"`
	RoleID      *id.RoleID `json:"role_id,omitempty"`
	ActiveOnly  bool       `json:"active_only,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}
