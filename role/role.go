// Package role defines the role catalog: named bundles of permission and
// module grants ranked by precedence.
package role

import (
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/xraph/steward/id"
)

// Precedence bounds. Lower values are more authoritative; 1 is the most
// powerful role a tenant can define.
const (
	MinPrecedence = 1
	MaxPrecedence = math.MaxInt32 - 1

	// PrecedenceNone is the floor reported for a principal without any
	// contributing role. It compares greater than every valid precedence.
	PrecedenceNone = math.MaxInt32
)

var (
	// ErrNotFound is returned by stores when a role does not exist.
	ErrNotFound = errors.New("steward: role not found")

	// ErrDuplicateSlug is returned when a tenant already has a role with the slug.
	ErrDuplicateSlug = errors.New("steward: role slug already exists")

	// ErrInvalidPrecedence is returned for a precedence outside [MinPrecedence, MaxPrecedence].
	ErrInvalidPrecedence = errors.New("steward: invalid role precedence")

	// ErrSlugRequired is returned when a role has no slug.
	ErrSlugRequired = errors.New("steward: role slug is required")
)

// Role is a named grant bundle.
type Role struct {
	ID          id.RoleID      `json:"id" db:"id"`
	TenantID    string         `json:"tenant_id" db:"tenant_id"`
	AppID       string         `json:"app_id" db:"app_id"`
	Name        string         `json:"name" db:"name"`
	Description string         `json:"description,omitempty" db:"description"`
	Slug        string         `json:"slug" db:"slug"`
	Precedence  int            `json:"precedence" db:"precedence"`
	Permissions []string       `json:"permissions" db:"permissions"`
	Modules     []string       `json:"modules" db:"modules"`
	ParentID    *id.RoleID     `json:"parent_id,omitempty" db:"parent_id"`
	IsSystem    bool           `json:"is_system" db:"is_system"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing roles.
type ListFilter struct {
	TenantID string     `json:"tenant_id,omitempty"`
	AppID    string     `json:"app_id,omitempty"`
	ParentID *id.RoleID `json:"parent_id,omitempty"`
	Search   string     `json:"search,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

// Normalize canonicalizes the slug and grant sets in place.
func Normalize(r *Role) {
	r.Slug = strings.ToLower(strings.TrimSpace(r.Slug))
	r.Name = strings.TrimSpace(r.Name)
	r.Permissions = NormalizeGrants(r.Permissions)
	r.Modules = NormalizeGrants(r.Modules)
}

// Validate reports whether r may be stored. Call Normalize first.
func Validate(r *Role) error {
	if r.Slug == "" {
		return ErrSlugRequired
	}
	if r.Precedence < MinPrecedence || r.Precedence > MaxPrecedence {
		return ErrInvalidPrecedence
	}
	return nil
}

// NormalizeGrants trims and lowercases each grant, drops empties and
// duplicates, and returns the set sorted. The result is never nil.
func NormalizeGrants(in []string) []string {
	out := make([]string, 0, len(in))
	for _, g := range in {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			out = append(out, g)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
