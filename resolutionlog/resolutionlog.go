// Package resolutionlog defines the diagnostics channel for non-fatal
// problems found while resolving privileges, such as dangling role
// references.
package resolutionlog

import (
	"errors"
	"time"

	"github.com/xraph/steward/id"
)

// ErrNotFound is returned by stores when an entry does not exist.
var ErrNotFound = errors.New("steward: resolution log entry not found")

// Entry records one warning raised during a resolution.
type Entry struct {
	ID           id.ResolutionLogID `json:"id" db:"id"`
	TenantID     string             `json:"tenant_id" db:"tenant_id"`
	AppID        string             `json:"app_id" db:"app_id"`
	PrincipalID  string             `json:"principal_id" db:"principal_id"`
	Kind         string             `json:"kind" db:"kind"`
	RoleID       string             `json:"role_id,omitempty" db:"role_id"`
	AssignmentID string             `json:"assignment_id,omitempty" db:"assignment_id"`
	Message      string             `json:"message" db:"message"`
	EvaluatedAt  time.Time          `json:"evaluated_at" db:"evaluated_at"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying entries.
type QueryFilter struct {
	TenantID    string     `json:"tenant_id,omitempty"`
	PrincipalID string     `json:"principal_id,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	RoleID      string     `json:"role_id,omitempty"`
	After       *time.Time `json:"after,omitempty"`
	Before      *time.Time `json:"before,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}
