// Package postgres provides a PostgreSQL implementation of the Steward
// composite store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/resolutionlog"
	"github.com/xraph/steward/role"
	"github.com/xraph/steward/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Both window bounds are inclusive; a NULL bound is open.
const (
	liveFromClause  = "(effective_from IS NULL OR effective_from <= ?)"
	liveUntilClause = "(effective_until IS NULL OR effective_until >= ?)"
)

// Store is a PostgreSQL implementation of the composite Steward store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("steward: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("steward: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	if _, err := s.GetRoleBySlug(ctx, r.TenantID, r.Slug); err == nil {
		return fmt.Errorf("role slug %q: %w", r.Slug, role.ErrDuplicateSlug)
	} else if !errors.Is(err, role.ErrNotFound) {
		return err
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := s.pgdb.NewInsert(roleToModel(r)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	m := new(roleModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", roleID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
		}
		return nil, fmt.Errorf("steward: get role: %w", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) GetRoles(ctx context.Context, roleIDs []id.RoleID) (map[string]*role.Role, error) {
	result := make(map[string]*role.Role, len(roleIDs))
	if len(roleIDs) == 0 {
		return result, nil
	}
	keys := make([]string, len(roleIDs))
	for i, rid := range roleIDs {
		keys[i] = rid.String()
	}
	var models []roleModel
	if err := s.pgdb.NewSelect(&models).Where("id IN (?)", keys).Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: get roles: %w", err)
	}
	for i := range models {
		result[models[i].ID] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) GetRoleBySlug(ctx context.Context, tenantID, slug string) (*role.Role, error) {
	m := new(roleModel)
	err := s.pgdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role slug %q: %w", slug, role.ErrNotFound)
		}
		return nil, fmt.Errorf("steward: get role by slug: %w", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	if existing, err := s.GetRoleBySlug(ctx, r.TenantID, r.Slug); err == nil && existing.ID != r.ID {
		return fmt.Errorf("role slug %q: %w", r.Slug, role.ErrDuplicateSlug)
	}
	r.UpdatedAt = time.Now().UTC()
	res, err := s.pgdb.NewUpdate(roleToModel(r)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: update role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %s: %w", r.ID, role.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	res, err := s.pgdb.NewDelete((*roleModel)(nil)).
		Where("id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.pgdb.NewSelect(&models).OrderExpr("precedence ASC, id ASC")
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.ParentID != nil {
			q = q.Where("parent_id = ?", filter.ParentID.String())
		}
		if filter.Search != "" {
			q = q.Where("(LOWER(name) LIKE LOWER(?) OR slug LIKE LOWER(?))", "%"+filter.Search+"%", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*roleModel)(nil))
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.ParentID != nil {
			q = q.Where("parent_id = ?", filter.ParentID.String())
		}
		if filter.Search != "" {
			q = q.Where("(LOWER(name) LIKE LOWER(?) OR slug LIKE LOWER(?))", "%"+filter.Search+"%", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count roles: %w", err)
	}
	return count, nil
}

func (s *Store) ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*role.Role, error) {
	return s.ListRoles(ctx, &role.ListFilter{ParentID: &parentID})
}

func (s *Store) DeleteRolesByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*roleModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete roles by tenant: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.pgdb.NewInsert(assignmentToModel(a)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: create assignment: %w", err)
	}
	return nil
}

func (s *Store) getAssignmentModel(ctx context.Context, assID id.AssignmentID) (*assignmentModel, error) {
	m := new(assignmentModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", assID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assignment %s: %w", assID, assignment.ErrNotFound)
		}
		return nil, fmt.Errorf("steward: get assignment: %w", err)
	}
	return m, nil
}

func (s *Store) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	m, err := s.getAssignmentModel(ctx, assID)
	if err != nil {
		return nil, err
	}
	return assignmentFromModel(m), nil
}

func (s *Store) SetAssignmentActive(ctx context.Context, assID id.AssignmentID, active bool) error {
	m, err := s.getAssignmentModel(ctx, assID)
	if err != nil {
		return err
	}
	m.IsActive = active
	m.UpdatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("steward: set assignment active: %w", err)
	}
	return nil
}

func (s *Store) SetAssignmentWindow(ctx context.Context, assID id.AssignmentID, from, until *time.Time) error {
	m, err := s.getAssignmentModel(ctx, assID)
	if err != nil {
		return err
	}
	m.EffectiveFrom = from
	m.EffectiveUntil = until
	m.UpdatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("steward: set assignment window: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.PrincipalID != "" {
			q = q.Where("principal_id = ?", filter.PrincipalID)
		}
		if filter.RoleID != nil {
			q = q.Where("role_id = ?", filter.RoleID.String())
		}
		if filter.ActiveOnly {
			q = q.Where("is_active = ?", true)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list assignments: %w", err)
	}
	return assignmentsFromModels(models), nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*assignmentModel)(nil))
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.PrincipalID != "" {
			q = q.Where("principal_id = ?", filter.PrincipalID)
		}
		if filter.RoleID != nil {
			q = q.Where("role_id = ?", filter.RoleID.String())
		}
		if filter.ActiveOnly {
			q = q.Where("is_active = ?", true)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) ListLiveAssignments(ctx context.Context, tenantID, principalID string, at time.Time) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	err := s.pgdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("principal_id = ?", principalID).
		Where("is_active = ?", true).
		Where(liveFromClause, at).
		Where(liveUntilClause, at).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list live assignments: %w", err)
	}
	return assignmentsFromModels(models), nil
}

func (s *Store) NextWindowBoundary(ctx context.Context, tenantID, principalID string, at time.Time) (*time.Time, error) {
	var next *time.Time

	opening := new(assignmentModel)
	err := s.pgdb.NewSelect(opening).
		Where("tenant_id = ?", tenantID).
		Where("principal_id = ?", principalID).
		Where("is_active = ?", true).
		Where("effective_from > ?", at).
		OrderExpr("effective_from ASC").
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		next = utc(opening.EffectiveFrom)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("steward: next window boundary: %w", err)
	}

	closing := new(assignmentModel)
	err = s.pgdb.NewSelect(closing).
		Where("tenant_id = ?", tenantID).
		Where("principal_id = ?", principalID).
		Where("is_active = ?", true).
		Where("effective_until >= ?", at).
		OrderExpr("effective_until ASC").
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		if next == nil || closing.EffectiveUntil.Before(*next) {
			next = utc(closing.EffectiveUntil)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("steward: next window boundary: %w", err)
	}
	return next, nil
}

func (s *Store) ListAssignmentsForRole(ctx context.Context, roleID id.RoleID) ([]*assignment.Assignment, error) {
	return s.ListAssignments(ctx, &assignment.ListFilter{RoleID: &roleID})
}

func (s *Store) DeleteAssignmentsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*assignmentModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete assignments by tenant: %w", err)
	}
	return nil
}

func assignmentsFromModels(models []assignmentModel) []*assignment.Assignment {
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result
}

// ──────────────────────────────────────────────────
// Principal operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePrincipal(ctx context.Context, p *principal.Principal) error {
	if _, err := s.GetPrincipal(ctx, p.TenantID, p.ExternalID); err == nil {
		return fmt.Errorf("principal %q: %w", p.ExternalID, principal.ErrDuplicate)
	} else if !errors.Is(err, principal.ErrNotFound) {
		return err
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.pgdb.NewInsert(principalToModel(p)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: create principal: %w", err)
	}
	return nil
}

func (s *Store) GetPrincipal(ctx context.Context, tenantID, externalID string) (*principal.Principal, error) {
	m := new(principalModel)
	err := s.pgdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("principal %q: %w", externalID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("steward: get principal: %w", err)
	}
	return principalFromModel(m), nil
}

func (s *Store) ListPrincipals(ctx context.Context, filter *principal.ListFilter) ([]*principal.Principal, error) {
	var models []principalModel
	q := s.pgdb.NewSelect(&models).OrderExpr("external_id ASC")
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.Kind != "" {
			q = q.Where("kind = ?", filter.Kind)
		}
		if filter.Search != "" {
			q = q.Where("(LOWER(external_id) LIKE LOWER(?) OR LOWER(display_name) LIKE LOWER(?))", "%"+filter.Search+"%", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list principals: %w", err)
	}
	result := make([]*principal.Principal, len(models))
	for i := range models {
		result[i] = principalFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountPrincipals(ctx context.Context, filter *principal.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*principalModel)(nil))
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.AppID != "" {
			q = q.Where("app_id = ?", filter.AppID)
		}
		if filter.Kind != "" {
			q = q.Where("kind = ?", filter.Kind)
		}
		if filter.Search != "" {
			q = q.Where("(LOWER(external_id) LIKE LOWER(?) OR LOWER(display_name) LIKE LOWER(?))", "%"+filter.Search+"%", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count principals: %w", err)
	}
	return count, nil
}

func (s *Store) DeletePrincipalsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*principalModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete principals by tenant: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Resolution log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateResolutionEntry(ctx context.Context, e *resolutionlog.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pgdb.NewInsert(resolutionEntryToModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: create resolution entry: %w", err)
	}
	return nil
}

func (s *Store) GetResolutionEntry(ctx context.Context, entryID id.ResolutionLogID) (*resolutionlog.Entry, error) {
	m := new(resolutionEntryModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", entryID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resolution entry %s: %w", entryID, resolutionlog.ErrNotFound)
		}
		return nil, fmt.Errorf("steward: get resolution entry: %w", err)
	}
	return resolutionEntryFromModel(m), nil
}

func (s *Store) ListResolutionEntries(ctx context.Context, filter *resolutionlog.QueryFilter) ([]*resolutionlog.Entry, error) {
	var models []resolutionEntryModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.PrincipalID != "" {
			q = q.Where("principal_id = ?", filter.PrincipalID)
		}
		if filter.Kind != "" {
			q = q.Where("kind = ?", filter.Kind)
		}
		if filter.RoleID != "" {
			q = q.Where("role_id = ?", filter.RoleID)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list resolution entries: %w", err)
	}
	result := make([]*resolutionlog.Entry, len(models))
	for i := range models {
		result[i] = resolutionEntryFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountResolutionEntries(ctx context.Context, filter *resolutionlog.QueryFilter) (int64, error) {
	q := s.pgdb.NewSelect((*resolutionEntryModel)(nil))
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.PrincipalID != "" {
			q = q.Where("principal_id = ?", filter.PrincipalID)
		}
		if filter.Kind != "" {
			q = q.Where("kind = ?", filter.Kind)
		}
		if filter.RoleID != "" {
			q = q.Where("role_id = ?", filter.RoleID)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count resolution entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeResolutionEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*resolutionEntryModel)(nil)).
		Where("created_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: purge resolution entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("steward: purge resolution entries rows: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteResolutionEntriesByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*resolutionEntryModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: delete resolution entries by tenant: %w", err)
	}
	return nil
}
