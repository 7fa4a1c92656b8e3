// Package principal defines the principal registry: the authoritative
// record of which identities exist in a tenant.
package principal

import (
	"errors"
	"time"

	"github.com/xraph/steward/id"
)

var (
	// ErrNotFound is returned by stores when a principal is not registered.
	ErrNotFound = errors.New("steward: principal not found")

	// ErrDuplicate is returned when a principal is registered twice in a tenant.
	ErrDuplicate = errors.New("steward: principal already registered")
)

// Principal is an authenticated identity that can hold role assignments.
// ExternalID is the identifier assignments and callers refer to.
type Principal struct {
	ID          id.PrincipalID `json:"id" db:"id"`
	TenantID    string         `json:"tenant_id" db:"tenant_id"`
	AppID       string         `json:"app_id" db:"app_id"`
	ExternalID  string         `json:"external_id" db:"external_id"`
	Kind        string         `json:"kind" db:"kind"`
	DisplayName string         `json:"display_name,omitempty" db:"display_name"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing principals.
type ListFilter struct {
	TenantID string `json:"tenant_id,omitempty"`
	AppID    string `json:"app_id,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
