// Package memory provides an in-memory implementation of the Steward
// composite store. It is intended for testing and development.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/resolutionlog"
	"github.com/xraph/steward/role"
)

// Compile-time interface checks.
var (
	_ role.Store          = (*Store)(nil)
	_ assignment.Store    = (*Store)(nil)
	_ principal.Store     = (*Store)(nil)
	_ resolutionlog.Store = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all Steward entities.
type Store struct {
	mu sync.RWMutex

	roles       map[string]*role.Role
	assignments map[string]*assignment.Assignment
	principals  map[string]*principal.Principal // tenantID + "\x00" + externalID
	entries     map[string]*resolutionlog.Entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		roles:       make(map[string]*role.Role),
		assignments: make(map[string]*assignment.Assignment),
		principals:  make(map[string]*principal.Principal),
		entries:     make(map[string]*resolutionlog.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Role Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.TenantID == r.TenantID && existing.Slug == r.Slug {
			return fmt.Errorf("role slug %q: %w", r.Slug, role.ErrDuplicateSlug)
		}
	}
	s.roles[r.ID.String()] = copyRole(r)
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID id.RoleID) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	return copyRole(r), nil
}

func (s *Store) GetRoles(_ context.Context, roleIDs []id.RoleID) (map[string]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]*role.Role, len(roleIDs))
	for _, rid := range roleIDs {
		if r, ok := s.roles[rid.String()]; ok {
			result[rid.String()] = copyRole(r)
		}
	}
	return result, nil
}

func (s *Store) GetRoleBySlug(_ context.Context, tenantID, slug string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.TenantID == tenantID && r.Slug == slug {
			return copyRole(r), nil
		}
	}
	return nil, fmt.Errorf("role slug %q: %w", slug, role.ErrNotFound)
}

func (s *Store) UpdateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID.String()]; !ok {
		return fmt.Errorf("role %s: %w", r.ID, role.ErrNotFound)
	}
	for _, existing := range s.roles {
		if existing.ID != r.ID && existing.TenantID == r.TenantID && existing.Slug == r.Slug {
			return fmt.Errorf("role slug %q: %w", r.Slug, role.ErrDuplicateSlug)
		}
	}
	s.roles[r.ID.String()] = copyRole(r)
	return nil
}

func (s *Store) DeleteRole(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID.String()]; !ok {
		return fmt.Errorf("role %s: %w", roleID, role.ErrNotFound)
	}
	delete(s.roles, roleID.String())
	return nil
}

func (s *Store) ListRoles(_ context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*role.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if filter != nil {
			if filter.TenantID != "" && r.TenantID != filter.TenantID {
				continue
			}
			if filter.AppID != "" && r.AppID != filter.AppID {
				continue
			}
			if filter.ParentID != nil && (r.ParentID == nil || *r.ParentID != *filter.ParentID) {
				continue
			}
			if filter.Search != "" && !containsFold(r.Name, filter.Search) && !containsFold(r.Slug, filter.Search) {
				continue
			}
		}
		result = append(result, copyRole(r))
	}
	slices.SortFunc(result, func(a, b *role.Role) int {
		return cmp.Or(cmp.Compare(a.Precedence, b.Precedence), a.ID.Compare(b.ID))
	})
	var limit, offset int
	if filter != nil {
		limit, offset = filter.Limit, filter.Offset
	}
	return applyPagination(result, limit, offset), nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	var unpaged role.ListFilter
	if filter != nil {
		unpaged = *filter
	}
	unpaged.Limit, unpaged.Offset = 0, 0
	list, err := s.ListRoles(ctx, &unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*role.Role, error) {
	return s.ListRoles(ctx, &role.ListFilter{ParentID: &parentID})
}

func (s *Store) DeleteRolesByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.roles, func(_ string, r *role.Role) bool { return r.TenantID == tenantID })
	return nil
}

// ──────────────────────────────────────────────────
// Assignment Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(_ context.Context, a *assignment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ID.String()] = copyAssignment(a)
	return nil
}

func (s *Store) GetAssignment(_ context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[assID.String()]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", assID, assignment.ErrNotFound)
	}
	return copyAssignment(a), nil
}

func (s *Store) SetAssignmentActive(_ context.Context, assID id.AssignmentID, active bool) error {
	return s.mutateAssignment(assID, func(a *assignment.Assignment) {
		a.IsActive = active
	})
}

func (s *Store) SetAssignmentWindow(_ context.Context, assID id.AssignmentID, from, until *time.Time) error {
	return s.mutateAssignment(assID, func(a *assignment.Assignment) {
		a.EffectiveFrom = copyTime(from)
		a.EffectiveUntil = copyTime(until)
	})
}

func (s *Store) mutateAssignment(assID id.AssignmentID, fn func(*assignment.Assignment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assID.String()]
	if !ok {
		return fmt.Errorf("assignment %s: %w", assID, assignment.ErrNotFound)
	}
	c := copyAssignment(a)
	fn(c)
	c.UpdatedAt = time.Now().UTC()
	s.assignments[assID.String()] = c
	return nil
}

func (s *Store) ListAssignments(_ context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*assignment.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		if filter != nil {
			if filter.TenantID != "" && a.TenantID != filter.TenantID {
				continue
			}
			if filter.AppID != "" && a.AppID != filter.AppID {
				continue
			}
			if filter.PrincipalID != "" && a.PrincipalID != filter.PrincipalID {
				continue
			}
			if filter.RoleID != nil && a.RoleID != *filter.RoleID {
				continue
			}
			if filter.ActiveOnly && !a.IsActive {
				continue
			}
		}
		result = append(result, copyAssignment(a))
	}
	sortAssignments(result)
	var limit, offset int
	if filter != nil {
		limit, offset = filter.Limit, filter.Offset
	}
	return applyPagination(result, limit, offset), nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	var unpaged assignment.ListFilter
	if filter != nil {
		unpaged = *filter
	}
	unpaged.Limit, unpaged.Offset = 0, 0
	list, err := s.ListAssignments(ctx, &unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListLiveAssignments(_ context.Context, tenantID, principalID string, at time.Time) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*assignment.Assignment
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.PrincipalID == principalID && a.LiveAt(at) {
			result = append(result, copyAssignment(a))
		}
	}
	sortAssignments(result)
	return result, nil
}

func (s *Store) NextWindowBoundary(_ context.Context, tenantID, principalID string, at time.Time) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var owned []*assignment.Assignment
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.PrincipalID == principalID {
			owned = append(owned, a)
		}
	}
	return assignment.NextBoundary(owned, at), nil
}

func (s *Store) ListAssignmentsForRole(ctx context.Context, roleID id.RoleID) ([]*assignment.Assignment, error) {
	return s.ListAssignments(ctx, &assignment.ListFilter{RoleID: &roleID})
}

func (s *Store) DeleteAssignmentsByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.assignments, func(_ string, a *assignment.Assignment) bool { return a.TenantID == tenantID })
	return nil
}

// ──────────────────────────────────────────────────
// Principal Store
// ──────────────────────────────────────────────────

func principalKey(tenantID, externalID string) string {
	return tenantID + "\x00" + externalID
}

func (s *Store) CreatePrincipal(_ context.Context, p *principal.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := principalKey(p.TenantID, p.ExternalID)
	if _, exists := s.principals[k]; exists {
		return fmt.Errorf("principal %q: %w", p.ExternalID, principal.ErrDuplicate)
	}
	c := *p
	s.principals[k] = &c
	return nil
}

func (s *Store) GetPrincipal(_ context.Context, tenantID, externalID string) (*principal.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[principalKey(tenantID, externalID)]
	if !ok {
		return nil, fmt.Errorf("principal %q: %w", externalID, principal.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *Store) ListPrincipals(_ context.Context, filter *principal.ListFilter) ([]*principal.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*principal.Principal, 0, len(s.principals))
	for _, p := range s.principals {
		if filter != nil {
			if filter.TenantID != "" && p.TenantID != filter.TenantID {
				continue
			}
			if filter.AppID != "" && p.AppID != filter.AppID {
				continue
			}
			if filter.Kind != "" && p.Kind != filter.Kind {
				continue
			}
			if filter.Search != "" && !containsFold(p.ExternalID, filter.Search) && !containsFold(p.DisplayName, filter.Search) {
				continue
			}
		}
		c := *p
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *principal.Principal) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), a.ID.Compare(b.ID))
	})
	var limit, offset int
	if filter != nil {
		limit, offset = filter.Limit, filter.Offset
	}
	return applyPagination(result, limit, offset), nil
}

func (s *Store) CountPrincipals(ctx context.Context, filter *principal.ListFilter) (int64, error) {
	var unpaged principal.ListFilter
	if filter != nil {
		unpaged = *filter
	}
	unpaged.Limit, unpaged.Offset = 0, 0
	list, err := s.ListPrincipals(ctx, &unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) DeletePrincipalsByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.principals, func(_ string, p *principal.Principal) bool { return p.TenantID == tenantID })
	return nil
}

// ──────────────────────────────────────────────────
// Resolution Log Store
// ──────────────────────────────────────────────────

func (s *Store) CreateResolutionEntry(_ context.Context, e *resolutionlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	s.entries[e.ID.String()] = &c
	return nil
}

func (s *Store) GetResolutionEntry(_ context.Context, entryID id.ResolutionLogID) (*resolutionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryID.String()]
	if !ok {
		return nil, fmt.Errorf("resolution entry %s: %w", entryID, resolutionlog.ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (s *Store) ListResolutionEntries(_ context.Context, filter *resolutionlog.QueryFilter) ([]*resolutionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*resolutionlog.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter != nil {
			if filter.TenantID != "" && e.TenantID != filter.TenantID {
				continue
			}
			if filter.PrincipalID != "" && e.PrincipalID != filter.PrincipalID {
				continue
			}
			if filter.Kind != "" && e.Kind != filter.Kind {
				continue
			}
			if filter.RoleID != "" && e.RoleID != filter.RoleID {
				continue
			}
			if filter.After != nil && !e.CreatedAt.After(*filter.After) {
				continue
			}
			if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
				continue
			}
		}
		c := *e
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *resolutionlog.Entry) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), b.ID.Compare(a.ID))
	})
	var limit, offset int
	if filter != nil {
		limit, offset = filter.Limit, filter.Offset
	}
	return applyPagination(result, limit, offset), nil
}

func (s *Store) CountResolutionEntries(ctx context.Context, filter *resolutionlog.QueryFilter) (int64, error) {
	var unpaged resolutionlog.QueryFilter
	if filter != nil {
		unpaged = *filter
	}
	unpaged.Limit, unpaged.Offset = 0, 0
	list, err := s.ListResolutionEntries(ctx, &unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) PurgeResolutionEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.entries {
		if e.CreatedAt.Before(before) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteResolutionEntriesByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.entries, func(_ string, e *resolutionlog.Entry) bool { return e.TenantID == tenantID })
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyRole(r *role.Role) *role.Role {
	c := *r
	c.Permissions = slices.Clone(r.Permissions)
	c.Modules = slices.Clone(r.Modules)
	if r.ParentID != nil {
		p := *r.ParentID
		c.ParentID = &p
	}
	return &c
}

func copyAssignment(a *assignment.Assignment) *assignment.Assignment {
	c := *a
	c.EffectiveFrom = copyTime(a.EffectiveFrom)
	c.EffectiveUntil = copyTime(a.EffectiveUntil)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func sortAssignments(as []*assignment.Assignment) {
	slices.SortFunc(as, func(a, b *assignment.Assignment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), a.ID.Compare(b.ID))
	})
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func applyPagination[T any](items []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
