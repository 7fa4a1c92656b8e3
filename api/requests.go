package api

// ──────────────────────────────────────────────────
// Privilege requests
// ──────────────────────────────────────────────────

// GetPrivilegesRequest holds the path and query parameters for resolving
// a principal.
type GetPrivilegesRequest struct {
	PrincipalID string `path:"principalId" description:"Principal identifier"`
	At          string `query:"at" description:"Resolve at this instant (RFC3339); bypasses the cache"`
}

// CheckRequest is the body for a permission or module check.
type CheckRequest struct {
	PrincipalID string   `json:"principal_id" description:"Principal identifier"`
	Permissions []string `json:"permissions,omitempty" description:"Permissions that must all be held"`
	Modules     []string `json:"modules,omitempty" description:"Modules that must all be accessible"`
}

// ──────────────────────────────────────────────────
// Role requests
// ──────────────────────────────────────────────────

// CreateRoleRequest is the body for creating a role.
type CreateRoleRequest struct {
	Name        string         `json:"name" description:"Role name"`
	Slug        string         `json:"slug" description:"URL-safe slug"`
	Description string         `json:"description,omitempty" description:"Human-readable description"`
	Precedence  int            `json:"precedence" description:"Authority rank; lower is more authoritative (>= 1)"`
	Permissions []string       `json:"permissions,omitempty" description:"Granted permission names"`
	Modules     []string       `json:"modules,omitempty" description:"Accessible module names"`
	ParentID    string         `json:"parent_id,omitempty" description:"Parent role ID for inheritance"`
	IsSystem    bool           `json:"is_system,omitempty" description:"System role flag (immutable once created)"`
	Metadata    map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// UpdateRoleRequest is the body for updating a role. Omitted fields keep
// their current value.
type UpdateRoleRequest struct {
	Name        string         `json:"name,omitempty" description:"Role name"`
	Description string         `json:"description,omitempty" description:"Human-readable description"`
	Precedence  *int           `json:"precedence,omitempty" description:"Authority rank"`
	Permissions []string       `json:"permissions,omitempty" description:"Replacement permission set"`
	Modules     []string       `json:"modules,omitempty" description:"Replacement module set"`
	ParentID    *string        `json:"parent_id,omitempty" description:"Parent role ID; empty string clears it"`
	Metadata    map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// GetRoleRequest is the path parameter for getting a role.
type GetRoleRequest struct {
	RoleID string `path:"roleId" description:"Role ID"`
}

// ListRolesRequest holds query parameters for listing roles.
type ListRolesRequest struct {
	Search string `query:"search" description:"Search by name or slug"`
	Limit  int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Principal requests
// ──────────────────────────────────────────────────

// RegisterPrincipalRequest is the body for registering a principal.
type RegisterPrincipalRequest struct {
	ExternalID  string         `json:"external_id" description:"Principal identifier used for resolution"`
	Kind        string         `json:"kind,omitempty" description:"Principal kind (user, api_key, service, service_acct)"`
	DisplayName string         `json:"display_name,omitempty" description:"Display name"`
	Metadata    map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// GetPrincipalRequest is the path parameter for getting a principal.
type GetPrincipalRequest struct {
	PrincipalID string `path:"principalId" description:"Principal identifier"`
}

// ListPrincipalsRequest holds query parameters for listing principals.
type ListPrincipalsRequest struct {
	Kind   string `query:"kind" description:"Filter by kind"`
	Search string `query:"search" description:"Search by identifier or display name"`
	Limit  int    `query:"limit" description:"Maximum results"`
	Offset int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Assignment requests
// ──────────────────────────────────────────────────

// GrantRoleRequest is the body for granting a role to a principal.
type GrantRoleRequest struct {
	PrincipalID    string         `json:"principal_id" description:"Principal identifier"`
	RoleID         string         `json:"role_id" description:"Role ID to grant"`
	EffectiveFrom  string         `json:"effective_from,omitempty" description:"Window start, inclusive (RFC3339)"`
	EffectiveUntil string         `json:"effective_until,omitempty" description:"Window end, inclusive (RFC3339)"`
	GrantedBy      string         `json:"granted_by,omitempty" description:"Actor performing the grant"`
	Metadata       map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// GetAssignmentRequest is the path parameter for getting an assignment.
type GetAssignmentRequest struct {
	AssignmentID string `path:"assignmentId" description:"Assignment ID"`
}

// SetWindowRequest is the body for replacing an assignment's window.
type SetWindowRequest struct {
	EffectiveFrom  string `json:"effective_from,omitempty" description:"Window start, inclusive (RFC3339); empty is open"`
	EffectiveUntil string `json:"effective_until,omitempty" description:"Window end, inclusive (RFC3339); empty is open"`
}

// ListAssignmentsRequest holds query parameters for listing assignments.
type ListAssignmentsRequest struct {
	PrincipalID string `query:"principal_id" description:"Filter by principal"`
	RoleID      string `query:"role_id" description:"Filter by role ID"`
	ActiveOnly  bool   `query:"active_only" description:"Only active assignments"`
	Limit       int    `query:"limit" description:"Maximum results"`
	Offset      int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Resolution log requests
// ──────────────────────────────────────────────────

// ListResolutionLogsRequest holds query parameters for the resolution log.
type ListResolutionLogsRequest struct {
	PrincipalID string `query:"principal_id" description:"Filter by principal"`
	Kind        string `query:"kind" description:"Filter by warning kind"`
	RoleID      string `query:"role_id" description:"Filter by role ID"`
	After       string `query:"after" description:"Entries after this time (RFC3339)"`
	Before      string `query:"before" description:"Entries before this time (RFC3339)"`
	Limit       int    `query:"limit" description:"Maximum results"`
	Offset      int    `query:"offset" description:"Results to skip"`
}
