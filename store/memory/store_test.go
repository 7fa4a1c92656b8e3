package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/resolutionlog"
	"github.com/xraph/steward/role"
	"github.com/xraph/steward/store"
)

// Compile-time check that *Store implements store.Store.
var _ store.Store = (*Store)(nil)

func TestRoleCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &role.Role{
		ID:          id.NewRoleID(),
		TenantID:    "t1",
		AppID:       "app1",
		Name:        "Admin",
		Slug:        "admin",
		Precedence:  1,
		Permissions: []string{"manage_users"},
	}

	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRole(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Admin" || got.Precedence != 1 {
		t.Fatalf("unexpected role %+v", got)
	}

	// Returned roles are copies.
	got.Permissions[0] = "tampered"
	again, _ := s.GetRole(ctx, r.ID)
	if again.Permissions[0] != "manage_users" {
		t.Fatal("store leaked internal slice")
	}

	got, err = s.GetRoleBySlug(ctx, "t1", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != r.ID {
		t.Fatal("slug lookup mismatch")
	}

	r.Name = "Super Admin"
	if err := s.UpdateRole(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetRole(ctx, r.ID)
	if got.Name != "Super Admin" {
		t.Fatal("update failed")
	}

	count, _ := s.CountRoles(ctx, &role.ListFilter{TenantID: "t1", Limit: 0})
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	if err := s.DeleteRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRole(ctx, r.ID); !errors.Is(err, role.ErrNotFound) {
		t.Fatalf("expected role.ErrNotFound, got %v", err)
	}
	if err := s.DeleteRole(ctx, r.ID); !errors.Is(err, role.ErrNotFound) {
		t.Fatalf("expected role.ErrNotFound on second delete, got %v", err)
	}
}

func TestRoleSlugUniquePerTenant(t *testing.T) {
	ctx := context.Background()
	s := New()

	_ = s.CreateRole(ctx, &role.Role{ID: id.NewRoleID(), TenantID: "t1", Slug: "admin", Precedence: 1})
	err := s.CreateRole(ctx, &role.Role{ID: id.NewRoleID(), TenantID: "t1", Slug: "admin", Precedence: 2})
	if !errors.Is(err, role.ErrDuplicateSlug) {
		t.Fatalf("expected ErrDuplicateSlug, got %v", err)
	}
	if err := s.CreateRole(ctx, &role.Role{ID: id.NewRoleID(), TenantID: "t2", Slug: "admin", Precedence: 1}); err != nil {
		t.Fatalf("same slug in another tenant: %v", err)
	}
}

func TestGetRolesSkipsUnknown(t *testing.T) {
	ctx := context.Background()
	s := New()

	known := &role.Role{ID: id.NewRoleID(), TenantID: "t1", Slug: "viewer", Precedence: 10}
	_ = s.CreateRole(ctx, known)
	unknown := id.NewRoleID()

	got, err := s.GetRoles(ctx, []id.RoleID{known.ID, unknown})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[known.ID.String()] == nil {
		t.Fatalf("expected only the known role, got %v", got)
	}
}

func TestListRolesOrderedByPrecedence(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, slug := range []string{"viewer", "admin", "editor"} {
		_ = s.CreateRole(ctx, &role.Role{
			ID:         id.NewRoleID(),
			TenantID:   "t1",
			Slug:       slug,
			Precedence: []int{10, 1, 5}[i],
		})
	}

	list, _ := s.ListRoles(ctx, &role.ListFilter{TenantID: "t1"})
	if len(list) != 3 || list[0].Slug != "admin" || list[1].Slug != "editor" || list[2].Slug != "viewer" {
		t.Fatalf("unexpected order: %v", slugs(list))
	}

	page, _ := s.ListRoles(ctx, &role.ListFilter{TenantID: "t1", Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].Slug != "editor" {
		t.Fatalf("unexpected page: %v", slugs(page))
	}

	parent := list[0].ID
	child := &role.Role{ID: id.NewRoleID(), TenantID: "t1", Slug: "child", Precedence: 20, ParentID: &parent}
	_ = s.CreateRole(ctx, child)
	children, _ := s.ListChildRoles(ctx, parent)
	if len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("unexpected children: %v", slugs(children))
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	roleID := id.NewRoleID()
	a := &assignment.Assignment{
		ID:          id.NewAssignmentID(),
		TenantID:    "t1",
		PrincipalID: "u1",
		RoleID:      roleID,
		IsActive:    true,
		CreatedAt:   now,
	}
	if err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}

	live, _ := s.ListLiveAssignments(ctx, "t1", "u1", now)
	if len(live) != 1 {
		t.Fatalf("expected 1 live assignment, got %d", len(live))
	}

	if err := s.SetAssignmentActive(ctx, a.ID, false); err != nil {
		t.Fatal(err)
	}
	live, _ = s.ListLiveAssignments(ctx, "t1", "u1", now)
	if len(live) != 0 {
		t.Fatal("inactive assignment reported live")
	}
	got, _ := s.GetAssignment(ctx, a.ID)
	if got.IsActive || got.UpdatedAt.IsZero() {
		t.Fatalf("deactivation not persisted: %+v", got)
	}

	_ = s.SetAssignmentActive(ctx, a.ID, true)
	until := now.Add(-time.Nanosecond)
	if err := s.SetAssignmentWindow(ctx, a.ID, nil, &until); err != nil {
		t.Fatal(err)
	}
	live, _ = s.ListLiveAssignments(ctx, "t1", "u1", now)
	if len(live) != 0 {
		t.Fatal("expired assignment reported live")
	}

	until = now
	_ = s.SetAssignmentWindow(ctx, a.ID, nil, &until)
	live, _ = s.ListLiveAssignments(ctx, "t1", "u1", now)
	if len(live) != 1 {
		t.Fatal("assignment ending exactly now should be live")
	}

	next, _ := s.NextWindowBoundary(ctx, "t1", "u1", now.Add(-time.Hour))
	if next == nil || !next.Equal(now) {
		t.Fatalf("NextWindowBoundary = %v, want %v", next, now)
	}

	forRole, _ := s.ListAssignmentsForRole(ctx, roleID)
	if len(forRole) != 1 {
		t.Fatalf("expected 1 assignment for role, got %d", len(forRole))
	}

	if err := s.SetAssignmentActive(ctx, id.NewAssignmentID(), true); !errors.Is(err, assignment.ErrNotFound) {
		t.Fatalf("expected assignment.ErrNotFound, got %v", err)
	}
}

func TestListAssignmentsFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	r1, r2 := id.NewRoleID(), id.NewRoleID()

	_ = s.CreateAssignment(ctx, &assignment.Assignment{ID: id.NewAssignmentID(), TenantID: "t1", PrincipalID: "u1", RoleID: r1, IsActive: true})
	_ = s.CreateAssignment(ctx, &assignment.Assignment{ID: id.NewAssignmentID(), TenantID: "t1", PrincipalID: "u1", RoleID: r2})
	_ = s.CreateAssignment(ctx, &assignment.Assignment{ID: id.NewAssignmentID(), TenantID: "t1", PrincipalID: "u2", RoleID: r1, IsActive: true})

	n, _ := s.CountAssignments(ctx, &assignment.ListFilter{TenantID: "t1", PrincipalID: "u1"})
	if n != 2 {
		t.Fatalf("expected 2 for u1, got %d", n)
	}
	n, _ = s.CountAssignments(ctx, &assignment.ListFilter{TenantID: "t1", PrincipalID: "u1", ActiveOnly: true})
	if n != 1 {
		t.Fatalf("expected 1 active for u1, got %d", n)
	}
	n, _ = s.CountAssignments(ctx, &assignment.ListFilter{RoleID: &r1})
	if n != 2 {
		t.Fatalf("expected 2 for role r1, got %d", n)
	}
}

func TestPrincipalRegistry(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &principal.Principal{ID: id.NewPrincipalID(), TenantID: "t1", ExternalID: "u1", Kind: "user"}
	if err := s.CreatePrincipal(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := s.CreatePrincipal(ctx, p); !errors.Is(err, principal.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := s.GetPrincipal(ctx, "t1", "u1")
	if err != nil || got.ID != p.ID {
		t.Fatalf("GetPrincipal = %v, %v", got, err)
	}
	if _, err := s.GetPrincipal(ctx, "t2", "u1"); !errors.Is(err, principal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound in other tenant, got %v", err)
	}

	n, _ := s.CountPrincipals(ctx, &principal.ListFilter{TenantID: "t1", Kind: "user"})
	if n != 1 {
		t.Fatalf("expected 1 principal, got %d", n)
	}
}

func TestResolutionEntries(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now().UTC()

	old := &resolutionlog.Entry{ID: id.NewResolutionLogID(), TenantID: "t1", PrincipalID: "u1", Kind: "dangling_role", CreatedAt: base.Add(-48 * time.Hour)}
	recent := &resolutionlog.Entry{ID: id.NewResolutionLogID(), TenantID: "t1", PrincipalID: "u1", Kind: "dangling_role", CreatedAt: base}
	_ = s.CreateResolutionEntry(ctx, old)
	_ = s.CreateResolutionEntry(ctx, recent)

	list, _ := s.ListResolutionEntries(ctx, &resolutionlog.QueryFilter{TenantID: "t1"})
	if len(list) != 2 || list[0].ID != recent.ID {
		t.Fatal("expected newest entry first")
	}

	purged, _ := s.PurgeResolutionEntries(ctx, base.Add(-24*time.Hour))
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
	if _, err := s.GetResolutionEntry(ctx, old.ID); !errors.Is(err, resolutionlog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteByTenant(t *testing.T) {
	ctx := context.Background()
	s := New()

	_ = s.CreateRole(ctx, &role.Role{ID: id.NewRoleID(), TenantID: "t1", Slug: "r1", Precedence: 1})
	_ = s.CreateRole(ctx, &role.Role{ID: id.NewRoleID(), TenantID: "t2", Slug: "r2", Precedence: 1})
	_ = s.CreateAssignment(ctx, &assignment.Assignment{ID: id.NewAssignmentID(), TenantID: "t1", PrincipalID: "u1"})
	_ = s.CreatePrincipal(ctx, &principal.Principal{ID: id.NewPrincipalID(), TenantID: "t1", ExternalID: "u1"})
	_ = s.CreateResolutionEntry(ctx, &resolutionlog.Entry{ID: id.NewResolutionLogID(), TenantID: "t1"})

	_ = s.DeleteRolesByTenant(ctx, "t1")
	_ = s.DeleteAssignmentsByTenant(ctx, "t1")
	_ = s.DeletePrincipalsByTenant(ctx, "t1")
	_ = s.DeleteResolutionEntriesByTenant(ctx, "t1")

	if n, _ := s.CountRoles(ctx, &role.ListFilter{TenantID: "t1"}); n != 0 {
		t.Fatal("t1 roles not deleted")
	}
	if n, _ := s.CountRoles(ctx, &role.ListFilter{TenantID: "t2"}); n != 1 {
		t.Fatal("t2 roles should remain")
	}
	if n, _ := s.CountAssignments(ctx, &assignment.ListFilter{TenantID: "t1"}); n != 0 {
		t.Fatal("t1 assignments not deleted")
	}
	if n, _ := s.CountPrincipals(ctx, &principal.ListFilter{TenantID: "t1"}); n != 0 {
		t.Fatal("t1 principals not deleted")
	}
	if n, _ := s.CountResolutionEntries(ctx, &resolutionlog.QueryFilter{TenantID: "t1"}); n != 0 {
		t.Fatal("t1 entries not deleted")
	}
}

func TestMigratePingClose(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func slugs(rs []*role.Role) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Slug
	}
	return out
}
