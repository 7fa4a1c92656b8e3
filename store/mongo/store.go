// Package mongo provides a MongoDB implementation of the Steward composite
// store using grove's mongo driver. Migrate creates the collection indexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/resolutionlog"
	"github.com/xraph/steward/role"
	"github.com/xraph/steward/store"
)

// Collection name constants.
const (
	colRoles          = "steward_roles"
	colAssignments    = "steward_assignments"
	colPrincipals     = "steward_principals"
	colResolutionLogs = "steward_resolution_logs"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Steward store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all steward collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("steward/mongo: migrate %s indexes: %w", col, err)
		}
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

func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all steward collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRoles: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "precedence", Value: 1}}},
			{Keys: bson.D{{Key: "parent_id", Value: 1}}},
		},
		colAssignments: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "principal_id", Value: 1}, {Key: "is_active", Value: 1}}},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
		},
		colPrincipals: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "external_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colResolutionLogs: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "principal_id", Value: 1}}},
		},
	}
}

func containsFold(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func roleFilter(filter *role.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.AppID != "" {
		f["app_id"] = filter.AppID
	}
	if filter.ParentID != nil {
		f["parent_id"] = filter.ParentID.String()
	}
	if filter.Search != "" {
		f["$or"] = bson.A{
			bson.M{"name": containsFold(filter.Search)},
			bson.M{"slug": containsFold(filter.Search)},
		}
	}
	return f
}

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	t := now()
	r.CreatedAt = t
	r.UpdatedAt = t
	if _, err := s.mdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("role slug %q: %w", r.Slug, role.ErrDuplicateSlug)
		}
		return fmt.Errorf("steward/mongo: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": roleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/mongo: get role: %w", err)
	}
	return roleFromModel(&m), nil
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
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"_id": bson.M{"$in": keys}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward/mongo: get roles: %w", err)
	}
	for i := range models {
		result[models[i].ID] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) GetRoleBySlug(ctx context.Context, tenantID, slug string) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "slug": slug}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role slug %q: %w", slug, role.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/mongo: get role by slug: %w", err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	r.UpdatedAt = now()
	m := roleToModel(r)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("role slug %q: %w", r.Slug, role.ErrDuplicateSlug)
		}
		return fmt.Errorf("steward/mongo: update role: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("role %s: %w", r.ID, role.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	res, err := s.mdb.NewDelete((*roleModel)(nil)).
		Filter(bson.M{"_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/mongo: delete role: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.mdb.NewFind(&models).
		Filter(roleFilter(filter)).
		Sort(bson.D{{Key: "precedence", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward/mongo: list roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*roleModel)(nil)).
		Filter(roleFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward/mongo: count roles: %w", err)
	}
	return count, nil
}

func (s *Store) ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*role.Role, error) {
	return s.ListRoles(ctx, &role.ListFilter{ParentID: &parentID})
}

func (s *Store) DeleteRolesByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*roleModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/mongo: delete roles by tenant: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func assignmentFilter(filter *assignment.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.AppID != "" {
		f["app_id"] = filter.AppID
	}
	if filter.PrincipalID != "" {
		f["principal_id"] = filter.PrincipalID
	}
	if filter.RoleID != nil {
		f["role_id"] = filter.RoleID.String()
	}
	if filter.ActiveOnly {
		f["is_active"] = true
	}
	return f
}

// liveFilter matches active assignments whose window contains at. A missing
// bound is open and both bounds are inclusive.
func liveFilter(tenantID, principalID string, at time.Time) bson.M {
	return bson.M{
		"tenant_id":    tenantID,
		"principal_id": principalID,
		"is_active":    true,
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"effective_from": nil},
				bson.M{"effective_from": bson.M{"$lte": at}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"effective_until": nil},
				bson.M{"effective_until": bson.M{"$gte": at}},
			}},
		},
	}
}

func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	t := now()
	a.CreatedAt = t
	a.UpdatedAt = t
	if _, err := s.mdb.NewInsert(assignmentToModel(a)).Exec(ctx); err != nil {
		return fmt.Errorf("steward/mongo: create assignment: %w", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	var m assignmentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": assID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("assignment %s: %w", assID, assignment.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/mongo: get assignment: %w", err)
	}
	return assignmentFromModel(&m), nil
}

func (s *Store) SetAssignmentActive(ctx context.Context, assID id.AssignmentID, active bool) error {
	res, err := s.mdb.NewUpdate((*assignmentModel)(nil)).
		Filter(bson.M{"_id": assID.String()}).
		Set("is_active", active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/mongo: set assignment active: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("assignment %s: %w", assID, assignment.ErrNotFound)
	}
	return nil
}

func (s *Store) SetAssignmentWindow(ctx context.Context, assID id.AssignmentID, from, until *time.Time) error {
	res, err := s.mdb.NewUpdate((*assignmentModel)(nil)).
		Filter(bson.M{"_id": assID.String()}).
		Set("effective_from", utc(from)).
		Set("effective_until", utc(until)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/mongo: set assignment window: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("assignment %s: %w", assID, assignment.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.mdb.NewFind(&models).
		Filter(assignmentFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward/mongo: list assignments: %w", err)
	}
	return assignmentsFromModels(models), nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*assignmentModel)(nil)).
		Filter(assignmentFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward/mongo: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) ListLiveAssignments(ctx context.Context, tenantID, principalID string, at time.Time) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	err := s.mdb.NewFind(&models).
		Filter(liveFilter(tenantID, principalID, at.UTC())).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward/mongo: list live assignments: %w", err)
	}
	return assignmentsFromModels(models), nil
}

func (s *Store) NextWindowBoundary(ctx context.Context, tenantID, principalID string, at time.Time) (*time.Time, error) {
	at = at.UTC()
	base := bson.M{"tenant_id": tenantID, "principal_id": principalID, "is_active": true}
	var next *time.Time

	var opening assignmentModel
	f := bson.M{"effective_from": bson.M{"$gt": at}}
	for k, v := range base {
		f[k] = v
	}
	err := s.mdb.NewFind(&opening).
		Filter(f).
		Sort(bson.D{{Key: "effective_from", Value: 1}}).
		Scan(ctx)
	switch {
	case err == nil:
		next = utc(opening.EffectiveFrom)
	case !isNoDocuments(err):
		return nil, fmt.Errorf("steward/mongo: next window boundary: %w", err)
	}

	var closing assignmentModel
	f = bson.M{"effective_until": bson.M{"$gte": at}}
	for k, v := range base {
		f[k] = v
	}
	err = s.mdb.NewFind(&closing).
		Filter(f).
		Sort(bson.D{{Key: "effective_until", Value: 1}}).
		Scan(ctx)
	switch {
	case err == nil:
		if next == nil || closing.EffectiveUntil.Before(*next) {
			next = utc(closing.EffectiveUntil)
		}
	case !isNoDocuments(err):
		return nil, fmt.Errorf("steward/mongo: next window boundary: %w", err)
	}
	return next, nil
}

func (s *Store) ListAssignmentsForRole(ctx context.Context, roleID id.RoleID) ([]*assignment.Assignment, error) {
	return s.ListAssignments(ctx, &assignment.ListFilter{RoleID: &roleID})
}

func (s *Store) DeleteAssignmentsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/mongo: delete assignments by tenant: %w", err)
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

func principalFilter(filter *principal.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.AppID != "" {
		f["app_id"] = filter.AppID
	}
	if filter.Kind != "" {
		f["kind"] = filter.Kind
	}
	if filter.Search != "" {
		f["$or"] = bson.A{
			bson.M{"external_id": containsFold(filter.Search)},
			bson.M{"display_name": containsFold(filter.Search)},
		}
	}
	return f
}

func (s *Store) CreatePrincipal(ctx context.Context, p *principal.Principal) error {
	t := now()
	p.CreatedAt = t
	p.UpdatedAt = t
	if _, err := s.mdb.NewInsert(principalToModel(p)).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("principal %q: %w", p.ExternalID, principal.ErrDuplicate)
		}
		return fmt.Errorf("steward/mongo: create principal: %w", err)
	}
	return nil
}

func (s *Store) GetPrincipal(ctx context.Context, tenantID, externalID string) (*principal.Principal, error) {
	var m principalModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "external_id": externalID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("principal %q: %w", externalID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/mongo: get principal: %w", err)
	}
	return principalFromModel(&m), nil
}

func (s *Store) ListPrincipals(ctx context.Context, filter *principal.ListFilter) ([]*principal.Principal, error) {
	var models []principalModel
	q := s.mdb.NewFind(&models).
		Filter(principalFilter(filter)).
		Sort(bson.D{{Key: "external_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward/mongo: list principals: %w", err)
	}
	result := make([]*principal.Principal, len(models))
	for i := range models {
		result[i] = principalFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountPrincipals(ctx context.Context, filter *principal.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*principalModel)(nil)).
		Filter(principalFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward/mongo: count principals: %w", err)
	}
	return count, nil
}

func (s *Store) DeletePrincipalsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*principalModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/mongo: delete principals by tenant: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Resolution log operations
// ──────────────────────────────────────────────────

func resolutionFilter(filter *resolutionlog.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.PrincipalID != "" {
		f["principal_id"] = filter.PrincipalID
	}
	if filter.Kind != "" {
		f["kind"] = filter.Kind
	}
	if filter.RoleID != "" {
		f["role_id"] = filter.RoleID
	}
	created := bson.M{}
	if filter.After != nil {
		created["$gt"] = *filter.After
	}
	if filter.Before != nil {
		created["$lt"] = *filter.Before
	}
	if len(created) > 0 {
		f["created_at"] = created
	}
	return f
}

func (s *Store) CreateResolutionEntry(ctx context.Context, e *resolutionlog.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	if _, err := s.mdb.NewInsert(resolutionEntryToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("steward/mongo: create resolution entry: %w", err)
	}
	return nil
}

func (s *Store) GetResolutionEntry(ctx context.Context, entryID id.ResolutionLogID) (*resolutionlog.Entry, error) {
	var m resolutionEntryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("resolution entry %s: %w", entryID, resolutionlog.ErrNotFound)
		}
		return nil, fmt.Errorf("steward/mongo: get resolution entry: %w", err)
	}
	return resolutionEntryFromModel(&m), nil
}

func (s *Store) ListResolutionEntries(ctx context.Context, filter *resolutionlog.QueryFilter) ([]*resolutionlog.Entry, error) {
	var models []resolutionEntryModel
	q := s.mdb.NewFind(&models).
		Filter(resolutionFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward/mongo: list resolution entries: %w", err)
	}
	result := make([]*resolutionlog.Entry, len(models))
	for i := range models {
		result[i] = resolutionEntryFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountResolutionEntries(ctx context.Context, filter *resolutionlog.QueryFilter) (int64, error) {
	count, err := s.mdb.NewFind((*resolutionEntryModel)(nil)).
		Filter(resolutionFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward/mongo: count resolution entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeResolutionEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*resolutionEntryModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward/mongo: purge resolution entries: %w", err)
	}
	return res.DeletedCount(), nil
}

func (s *Store) DeleteResolutionEntriesByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*resolutionEntryModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward/mongo: delete resolution entries by tenant: %w", err)
	}
	return nil
}
