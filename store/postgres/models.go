package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/resolutionlog"
	"github.com/xraph/steward/role"
)

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:steward_roles"`
	ID              string         `grove:"id,pk"`
	TenantID        string         `grove:"tenant_id,notnull"`
	AppID           string         `grove:"app_id,notnull"`
	Name            string         `grove:"name,notnull"`
	Description     string         `grove:"description"`
	Slug            string         `grove:"slug,notnull"`
	Precedence      int            `grove:"precedence,notnull"`
	Permissions     []string       `grove:"permissions,type:jsonb"`
	Modules         []string       `grove:"modules,type:jsonb"`
	ParentID        *string        `grove:"parent_id"`
	IsSystem        bool           `grove:"is_system,notnull"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
	UpdatedAt       time.Time      `grove:"updated_at,notnull"`
}

func roleToModel(r *role.Role) *roleModel {
	m := &roleModel{
		ID:          r.ID.String(),
		TenantID:    r.TenantID,
		AppID:       r.AppID,
		Name:        r.Name,
		Description: r.Description,
		Slug:        r.Slug,
		Precedence:  r.Precedence,
		Permissions: role.NormalizeGrants(r.Permissions),
		Modules:     role.NormalizeGrants(r.Modules),
		IsSystem:    r.IsSystem,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ParentID != nil {
		s := r.ParentID.String()
		m.ParentID = &s
	}
	return m
}

func roleFromModel(m *roleModel) *role.Role {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	r := &role.Role{
		ID:          rid,
		TenantID:    m.TenantID,
		AppID:       m.AppID,
		Name:        m.Name,
		Description: m.Description,
		Slug:        m.Slug,
		Precedence:  m.Precedence,
		Permissions: role.NormalizeGrants(m.Permissions),
		Modules:     role.NormalizeGrants(m.Modules),
		IsSystem:    m.IsSystem,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ParentID != nil {
		pid, err := id.ParseRoleID(*m.ParentID)
		if err == nil {
			r.ParentID = &pid
		}
	}
	return r
}

// ──────────────────────────────────────────────────
// Assignment model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:steward_assignments"`
	ID              string         `grove:"id,pk"`
	TenantID        string         `grove:"tenant_id,notnull"`
	AppID           string         `grove:"app_id,notnull"`
	PrincipalID     string         `grove:"principal_id,notnull"`
	RoleID          string         `grove:"role_id,notnull"`
	IsActive        bool           `grove:"is_active,notnull"`
	EffectiveFrom   *time.Time     `grove:"effective_from"`
	EffectiveUntil  *time.Time     `grove:"effective_until"`
	GrantedBy       string         `grove:"granted_by"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
	UpdatedAt       time.Time      `grove:"updated_at,notnull"`
}

func assignmentToModel(a *assignment.Assignment) *assignmentModel {
	return &assignmentModel{
		ID:             a.ID.String(),
		TenantID:       a.TenantID,
		AppID:          a.AppID,
		PrincipalID:    a.PrincipalID,
		RoleID:         a.RoleID.String(),
		IsActive:       a.IsActive,
		EffectiveFrom:  a.EffectiveFrom,
		EffectiveUntil: a.EffectiveUntil,
		GrantedBy:      a.GrantedBy,
		Metadata:       a.Metadata,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func assignmentFromModel(m *assignmentModel) *assignment.Assignment {
	aid, _ := id.ParseAssignmentID(m.ID) //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)   //nolint:errcheck // stored IDs are always valid
	return &assignment.Assignment{
		ID:             aid,
		TenantID:       m.TenantID,
		AppID:          m.AppID,
		PrincipalID:    m.PrincipalID,
		RoleID:         rid,
		IsActive:       m.IsActive,
		EffectiveFrom:  utc(m.EffectiveFrom),
		EffectiveUntil: utc(m.EffectiveUntil),
		GrantedBy:      m.GrantedBy,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Principal model
// ──────────────────────────────────────────────────

type principalModel struct {
	grove.BaseModel `grove:"table:steward_principals"`
	ID              string         `grove:"id,pk"`
	TenantID        string         `grove:"tenant_id,notnull"`
	AppID           string         `grove:"app_id,notnull"`
	ExternalID      string         `grove:"external_id,notnull"`
	Kind            string         `grove:"kind,notnull"`
	DisplayName     string         `grove:"display_name"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
	UpdatedAt       time.Time      `grove:"updated_at,notnull"`
}

func principalToModel(p *principal.Principal) *principalModel {
	return &principalModel{
		ID:          p.ID.String(),
		TenantID:    p.TenantID,
		AppID:       p.AppID,
		ExternalID:  p.ExternalID,
		Kind:        p.Kind,
		DisplayName: p.DisplayName,
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func principalFromModel(m *principalModel) *principal.Principal {
	pid, _ := id.ParsePrincipalID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &principal.Principal{
		ID:          pid,
		TenantID:    m.TenantID,
		AppID:       m.AppID,
		ExternalID:  m.ExternalID,
		Kind:        m.Kind,
		DisplayName: m.DisplayName,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Resolution log model
// ──────────────────────────────────────────────────

type resolutionEntryModel struct {
	grove.BaseModel `grove:"table:steward_resolution_logs"`
	ID              string    `grove:"id,pk"`
	TenantID        string    `grove:"tenant_id,notnull"`
	AppID           string    `grove:"app_id,notnull"`
	PrincipalID     string    `grove:"principal_id,notnull"`
	Kind            string    `grove:"kind,notnull"`
	RoleID          string    `grove:"role_id"`
	AssignmentID    string    `grove:"assignment_id"`
	Message         string    `grove:"message"`
	EvaluatedAt     time.Time `grove:"evaluated_at,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func resolutionEntryToModel(e *resolutionlog.Entry) *resolutionEntryModel {
	return &resolutionEntryModel{
		ID:           e.ID.String(),
		TenantID:     e.TenantID,
		AppID:        e.AppID,
		PrincipalID:  e.PrincipalID,
		Kind:         e.Kind,
		RoleID:       e.RoleID,
		AssignmentID: e.AssignmentID,
		Message:      e.Message,
		EvaluatedAt:  e.EvaluatedAt,
		CreatedAt:    e.CreatedAt,
	}
}

func resolutionEntryFromModel(m *resolutionEntryModel) *resolutionlog.Entry {
	eid, _ := id.ParseResolutionLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &resolutionlog.Entry{
		ID:           eid,
		TenantID:     m.TenantID,
		AppID:        m.AppID,
		PrincipalID:  m.PrincipalID,
		Kind:         m.Kind,
		RoleID:       m.RoleID,
		AssignmentID: m.AssignmentID,
		Message:      m.Message,
		EvaluatedAt:  m.EvaluatedAt,
		CreatedAt:    m.CreatedAt,
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
