package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Window bounds are stored as text, so comparisons go through julianday,
// which resolves to about a millisecond.
// Both bounds are inclusive; a NULL bound is open.
const (
	liveFromClause  = "(effective_from IS NULL OR julianday(effective_from) <= julianday(?))"
	liveUntilClause = "(effective_until IS NULL OR julianday(effective_until) >= julianday(?))"
)

// Store is a SQLite implementation of the composite Steward store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("steward/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("steward/sqlite: migration failed: %w", err)
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
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
	m, err := roleToModel(r)
	if err != nil {
		return fmt.Errorf("steward/sqlite: create role: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("steward/sqlite: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	m := new(roleModel)
	err := s.sdb.NewSelect(m).Where("id = ?", roleID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/sqlite: get role: %w", err)
	}
	return roleFromModel(m)
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
	if err := s.sdb.NewSelect(&models).Where("id IN (?)", keys).Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward/sqlite: get roles: %w", err)
	}
	for i := range models {
		r, err := roleFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward/sqlite: get roles: %w", err)
		}
		result[models[i].ID] = r
	}
	return result, nil
}

func (s *Store) GetRoleBySlug(ctx context.Context, tenantID, slug string) (*role.Role, error) {
	m := new(roleModel)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("role slug %q: %w", slug, role.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/sqlite: get role by slug: %w", err)
	}
	return roleFromModel(m)
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	if existing, err := s.GetRoleBySlug(ctx, r.TenantID, r.Slug); err == nil && existing.ID != r.ID {
		return fmt.Errorf("role slug %q: %w", r.Slug, role.ErrDuplicateSlug)
	}
	r.UpdatedAt = time.Now().UTC()
	m, err := roleToModel(r)
	if err != nil {
		return fmt.Errorf("steward/sqlite: update role: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/sqlite: update role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %s: %w", r.ID, role.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	res, err := s.sdb.NewDelete((*roleModel)(nil)).
		Where("id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/sqlite: delete role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.sdb.NewSelect(&models).OrderExpr("precedence ASC, id ASC")
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
		return nil, fmt.Errorf("steward/sqlite: list roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		r, err := roleFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward/sqlite: list roles: %w", err)
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*roleModel)(nil))
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
		return 0, fmt.Errorf("steward/sqlite: count roles: %w", err)
	}
	return count, nil
}

func (s *Store) ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*role.Role, error) {
	return s.ListRoles(ctx, &role.ListFilter{ParentID: &parentID})
}

func (s *Store) DeleteRolesByTenant(ctx context.Context, tenantID string) error {
	_, err := s.sdb.NewDelete((*roleModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/sqlite: delete roles by tenant: %w", err)
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
	m, err := assignmentToModel(a)
	if err != nil {
		return fmt.Errorf("steward/sqlite: create assignment: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("steward/sqlite: create assignment: %w", err)
	}
	return nil
}

func (s *Store) getAssignmentModel(ctx context.Context, assID id.AssignmentID) (*assignmentModel, error) {
	m := new(assignmentModel)
	err := s.sdb.NewSelect(m).Where("id = ?", assID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("assignment %s: %w", assID, assignment.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/sqlite: get assignment: %w", err)
	}
	return m, nil
}

func (s *Store) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	m, err := s.getAssignmentModel(ctx, assID)
	if err != nil {
		return nil, err
	}
	return assignmentFromModel(m)
}

func (s *Store) SetAssignmentActive(ctx context.Context, assID id.AssignmentID, active bool) error {
	m, err := s.getAssignmentModel(ctx, assID)
	if err != nil {
		return err
	}
	m.IsActive = active
	m.UpdatedAt = time.Now().UTC()
	if _, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("steward/sqlite: set assignment active: %w", err)
	}
	return nil
}

func (s *Store) SetAssignmentWindow(ctx context.Context, assID id.AssignmentID, from, until *time.Time) error {
	m, err := s.getAssignmentModel(ctx, assID)
	if err != nil {
		return err
	}
	m.EffectiveFrom = utc(from)
	m.EffectiveUntil = utc(until)
	m.UpdatedAt = time.Now().UTC()
	if _, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("steward/sqlite: set assignment window: %w", err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
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
		return nil, fmt.Errorf("steward/sqlite: list assignments: %w", err)
	}
	return assignmentsFromModels(models)
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*assignmentModel)(nil))
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
		return 0, fmt.Errorf("steward/sqlite: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) ListLiveAssignments(ctx context.Context, tenantID, principalID string, at time.Time) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("principal_id = ?", principalID).
		Where("is_active = ?", true).
		Where(liveFromClause, at).
		Where(liveUntilClause, at).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward/sqlite: list live assignments: %w", err)
	}
	return assignmentsFromModels(models)
}

func (s *Store) NextWindowBoundary(ctx context.Context, tenantID, principalID string, at time.Time) (*time.Time, error) {
	var next *time.Time

	opening := new(assignmentModel)
	err := s.sdb.NewSelect(opening).
		Where("tenant_id = ?", tenantID).
		Where("principal_id = ?", principalID).
		Where("is_active = ?", true).
		Where("effective_from IS NOT NULL").
		Where("julianday(effective_from) > julianday(?)", at).
		OrderExpr("julianday(effective_from) ASC").
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		next = utc(opening.EffectiveFrom)
	case !isNoRows(err):
		return nil, fmt.Errorf("steward/sqlite: next window boundary: %w", err)
	}

	closing := new(assignmentModel)
	err = s.sdb.NewSelect(closing).
		Where("tenant_id = ?", tenantID).
		Where("principal_id = ?", principalID).
		Where("is_active = ?", true).
		Where("effective_until IS NOT NULL").
		Where("julianday(effective_until) >= julianday(?)", at).
		OrderExpr("julianday(effective_until) ASC").
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		if next == nil || closing.EffectiveUntil.Before(*next) {
			next = utc(closing.EffectiveUntil)
		}
	case !isNoRows(err):
		return nil, fmt.Errorf("steward/sqlite: next window boundary: %w", err)
	}
	return next, nil
}

func (s *Store) ListAssignmentsForRole(ctx context.Context, roleID id.RoleID) ([]*assignment.Assignment, error) {
	return s.ListAssignments(ctx, &assignment.ListFilter{RoleID: &roleID})
}

func (s *Store) DeleteAssignmentsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.sdb.NewDelete((*assignmentModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/sqlite: delete assignments by tenant: %w", err)
	}
	return nil
}

func assignmentsFromModels(models []assignmentModel) ([]*assignment.Assignment, error) {
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		a, err := assignmentFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward/sqlite: %w", err)
		}
		result[i] = a
	}
	return result, nil
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
	m, err := principalToModel(p)
	if err != nil {
		return fmt.Errorf("steward/sqlite: create principal: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("steward/sqlite: create principal: %w", err)
	}
	return nil
}

func (s *Store) GetPrincipal(ctx context.Context, tenantID, externalID string) (*principal.Principal, error) {
	m := new(principalModel)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("principal %q: %w", externalID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/sqlite: get principal: %w", err)
	}
	return principalFromModel(m)
}

func (s *Store) ListPrincipals(ctx context.Context, filter *principal.ListFilter) ([]*principal.Principal, error) {
	var models []principalModel
	q := s.sdb.NewSelect(&models).OrderExpr("external_id ASC")
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
		return nil, fmt.Errorf("steward/sqlite: list principals: %w", err)
	}
	result := make([]*principal.Principal, len(models))
	for i := range models {
		p, err := principalFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward/sqlite: list principals: %w", err)
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) CountPrincipals(ctx context.Context, filter *principal.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*principalModel)(nil))
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
		return 0, fmt.Errorf("steward/sqlite: count principals: %w", err)
	}
	return count, nil
}

func (s *Store) DeletePrincipalsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.sdb.NewDelete((*principalModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/sqlite: delete principals by tenant: %w", err)
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
	_, err := s.sdb.NewInsert(resolutionEntryToModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/sqlite: create resolution entry: %w", err)
	}
	return nil
}

func (s *Store) GetResolutionEntry(ctx context.Context, entryID id.ResolutionLogID) (*resolutionlog.Entry, error) {
	m := new(resolutionEntryModel)
	err := s.sdb.NewSelect(m).Where("id = ?", entryID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("resolution entry %s: %w", entryID, resolutionlog.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/sqlite: get resolution entry: %w", err)
	}
	return resolutionEntryFromModel(m), nil
}

func (s *Store) ListResolutionEntries(ctx context.Context, filter *resolutionlog.QueryFilter) ([]*resolutionlog.Entry, error) {
	var models []resolutionEntryModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
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
		return nil, fmt.Errorf("steward/sqlite: list resolution entries: %w", err)
	}
	result := make([]*resolutionlog.Entry, len(models))
	for i := range models {
		result[i] = resolutionEntryFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountResolutionEntries(ctx context.Context, filter *resolutionlog.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*resolutionEntryModel)(nil))
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
		return 0, fmt.Errorf("steward/sqlite: count resolution entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeResolutionEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*resolutionEntryModel)(nil)).
		Where("created_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward/sqlite: purge resolution entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("steward/sqlite: purge resolution entries rows: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteResolutionEntriesByTenant(ctx context.Context, tenantID string) error {
	_, err := s.sdb.NewDelete((*resolutionEntryModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/sqlite: delete resolution entries by tenant: %w", err)
	}
	return nil
}
