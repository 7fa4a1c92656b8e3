package steward

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/role"
	"github.com/xraph/steward/store/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	opts = append([]Option{WithStore(s), WithClock(func() time.Time { return testNow })}, opts...)
	eng, err := NewEngine(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return eng, s
}

func testContext() context.Context {
	return WithTenant(context.Background(), "app1", "t1")
}

func mustCreateRole(t *testing.T, eng *Engine, ctx context.Context, slug string, precedence int, perms ...string) *role.Role {
	t.Helper()
	r := &role.Role{Name: slug, Slug: slug, Precedence: precedence, Permissions: perms}
	if err := eng.CreateRole(ctx, r); err != nil {
		t.Fatalf("create role %s: %v", slug, err)
	}
	return r
}

func mustRegister(t *testing.T, eng *Engine, ctx context.Context, principalID string) {
	t.Helper()
	if err := eng.RegisterPrincipal(ctx, &principal.Principal{ExternalID: principalID}); err != nil {
		t.Fatalf("register %s: %v", principalID, err)
	}
}

func mustGrant(t *testing.T, eng *Engine, ctx context.Context, principalID string, roleID id.RoleID) *assignment.Assignment {
	t.Helper()
	a, err := eng.GrantRole(ctx, &GrantRequest{PrincipalID: principalID, RoleID: roleID})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	return a
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestResolve_NoAssignments(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.IsEmpty() {
		t.Fatalf("expected no roles, got %+v", priv.Roles)
	}
	if priv.HighestPrecedence != PrecedenceNone {
		t.Fatalf("expected PrecedenceNone, got %d", priv.HighestPrecedence)
	}
	if priv.Permissions == nil || priv.Modules == nil || priv.Roles == nil {
		t.Fatal("empty result should carry empty, non-nil sets")
	}
	if len(priv.Warnings) != 0 {
		t.Fatalf("unexpected warnings %+v", priv.Warnings)
	}
}

func TestResolve_SingleRole(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	r := &role.Role{Name: "Editor", Slug: "editor", Precedence: 5, Permissions: []string{"edit_posts"}, Modules: []string{"cms"}}
	if err := eng.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}
	mustGrant(t, eng, ctx, "u1", r.ID)

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if priv.HighestPrecedence != 5 {
		t.Fatalf("expected precedence 5, got %d", priv.HighestPrecedence)
	}
	if !reflect.DeepEqual(priv.Permissions, []string{"edit_posts"}) {
		t.Fatalf("unexpected permissions %v", priv.Permissions)
	}
	if !reflect.DeepEqual(priv.Modules, []string{"cms"}) {
		t.Fatalf("unexpected modules %v", priv.Modules)
	}
	if len(priv.Roles) != 1 || priv.Roles[0].RoleID != r.ID || priv.Roles[0].Slug != "editor" {
		t.Fatalf("unexpected roles %+v", priv.Roles)
	}
}

func TestResolve_AdminAndViewer(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	viewer := mustCreateRole(t, eng, ctx, "viewer", 10, "view_dashboard")
	admin := mustCreateRole(t, eng, ctx, "admin", 1, "manage_users")
	mustGrant(t, eng, ctx, "u1", viewer.ID)
	mustGrant(t, eng, ctx, "u1", admin.ID)

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if priv.HighestPrecedence != 1 {
		t.Fatalf("expected highest precedence 1, got %d", priv.HighestPrecedence)
	}
	if !reflect.DeepEqual(priv.Permissions, []string{"manage_users", "view_dashboard"}) {
		t.Fatalf("unexpected permissions %v", priv.Permissions)
	}
	if len(priv.Roles) != 2 || priv.Roles[0].Slug != "admin" || priv.Roles[1].Slug != "viewer" {
		t.Fatalf("expected roles [admin viewer], got %+v", priv.Roles)
	}
	if !priv.HasPermission("manage_users") || !priv.HasRole("viewer") {
		t.Fatal("helpers disagree with the result")
	}
}

func TestResolve_EqualPrecedenceOrderedByRoleID(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	a := mustCreateRole(t, eng, ctx, "alpha", 3, "a")
	b := mustCreateRole(t, eng, ctx, "beta", 3, "b")
	mustGrant(t, eng, ctx, "u1", b.ID)
	mustGrant(t, eng, ctx, "u1", a.ID)

	want := []id.RoleID{a.ID, b.ID}
	if b.ID.Compare(a.ID) < 0 {
		want = []id.RoleID{b.ID, a.ID}
	}

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	got := []id.RoleID{priv.Roles[0].RoleID, priv.Roles[1].RoleID}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestResolve_PermissionsUnionAcrossRoles(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	a := mustCreateRole(t, eng, ctx, "ops", 2, "deploy", "read_logs")
	b := mustCreateRole(t, eng, ctx, "support", 4, "read_logs", "reply_tickets")
	mustGrant(t, eng, ctx, "u1", a.ID)
	mustGrant(t, eng, ctx, "u1", b.ID)

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"deploy", "read_logs", "reply_tickets"}
	if !reflect.DeepEqual(priv.Permissions, want) {
		t.Fatalf("expected %v, got %v", want, priv.Permissions)
	}
}

func TestResolve_WindowBoundaries(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	r := mustCreateRole(t, eng, ctx, "temp", 2, "temp_access")

	from := testNow.Add(-time.Hour)
	until := testNow.Add(time.Hour)
	if _, err := eng.GrantRole(ctx, &GrantRequest{PrincipalID: "u1", RoleID: r.ID, EffectiveFrom: &from, EffectiveUntil: &until}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		at   time.Time
		live bool
	}{
		{"before from", from.Add(-time.Nanosecond), false},
		{"at from", from, true},
		{"inside", testNow, true},
		{"at until", until, true},
		{"after until", until.Add(time.Nanosecond), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priv, err := eng.ResolveAt(ctx, "u1", tt.at)
			if err != nil {
				t.Fatal(err)
			}
			if got := priv.HasPermission("temp_access"); got != tt.live {
				t.Fatalf("at %s: live=%v, want %v", tt.at, got, tt.live)
			}
		})
	}

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if priv.ValidUntil == nil || !priv.ValidUntil.Equal(until) {
		t.Fatalf("expected ValidUntil %s, got %v", until, priv.ValidUntil)
	}
}

func TestResolve_DeactivatedAssignment(t *testing.T) {
	ctx := testContext()
	eng, s := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	r := mustCreateRole(t, eng, ctx, "editor", 5, "edit_posts")
	a := mustGrant(t, eng, ctx, "u1", r.ID)

	updated, err := eng.DeactivateAssignment(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.IsActive {
		t.Fatal("expected inactive assignment")
	}

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.IsEmpty() {
		t.Fatalf("deactivated assignment still contributes: %+v", priv.Roles)
	}

	// Deactivation never deletes.
	if _, err := s.GetAssignment(ctx, a.ID); err != nil {
		t.Fatalf("assignment should be retained: %v", err)
	}

	if _, err := eng.ActivateAssignment(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	priv, err = eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.HasPermission("edit_posts") {
		t.Fatal("reactivated assignment should contribute")
	}
}

func TestResolve_DanglingRole(t *testing.T) {
	ctx := testContext()
	eng, s := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	r := mustCreateRole(t, eng, ctx, "viewer", 10, "view_dashboard")
	mustGrant(t, eng, ctx, "u1", r.ID)

	missing := id.NewRoleID()
	dangling := &assignment.Assignment{
		ID:          id.NewAssignmentID(),
		TenantID:    "t1",
		PrincipalID: "u1",
		RoleID:      missing,
		IsActive:    true,
	}
	if err := s.CreateAssignment(ctx, dangling); err != nil {
		t.Fatal(err)
	}

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("dangling role must not fail resolution: %v", err)
	}
	if len(priv.Roles) != 1 || !priv.HasPermission("view_dashboard") {
		t.Fatalf("remaining roles should still resolve: %+v", priv.Roles)
	}
	if len(priv.Warnings) != 1 {
		t.Fatalf("expected one warning, got %+v", priv.Warnings)
	}
	w := priv.Warnings[0]
	if w.Kind != WarningDanglingRole || w.RoleID != missing.String() || w.AssignmentID != dangling.ID.String() {
		t.Fatalf("unexpected warning %+v", w)
	}
	if !errors.Is(w.Err(), ErrDanglingRoleReference) {
		t.Fatal("warning should match ErrDanglingRoleReference")
	}
}

func TestResolve_DeletedRoleBecomesDangling(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	r := mustCreateRole(t, eng, ctx, "editor", 5, "edit_posts")
	mustGrant(t, eng, ctx, "u1", r.ID)

	if err := eng.DeleteRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.IsEmpty() || priv.HighestPrecedence != PrecedenceNone {
		t.Fatalf("deleted role should not contribute: %+v", priv)
	}
	if len(priv.Warnings) != 1 || priv.Warnings[0].Kind != WarningDanglingRole {
		t.Fatalf("expected dangling warning, got %+v", priv.Warnings)
	}
}

func TestResolve_UnknownPrincipal(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)

	_, err := eng.Resolve(ctx, "ghost")
	if !errors.Is(err, ErrUnknownPrincipal) {
		t.Fatalf("expected ErrUnknownPrincipal, got %v", err)
	}
	if errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatal("unknown principal is not an outage")
	}
}

func TestResolve_UnregisteredAllowedWithoutRegistry(t *testing.T) {
	ctx := testContext()
	off := false
	cfg := DefaultConfig()
	cfg.RequireRegisteredPrincipals = &off
	eng, _ := newTestEngine(t, WithConfig(cfg))

	priv, err := eng.Resolve(ctx, "anyone")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.IsEmpty() {
		t.Fatal("expected empty privileges")
	}
}

func TestResolve_EmptyPrincipalID(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.Resolve(testContext(), "  "); !errors.Is(err, ErrInvalidPrincipalID) {
		t.Fatalf("expected ErrInvalidPrincipalID, got %v", err)
	}
}

type failingStore struct {
	*memory.Store
	err error
}

func (f *failingStore) ListLiveAssignments(context.Context, string, string, time.Time) ([]*assignment.Assignment, error) {
	return nil, f.err
}

func (f *failingStore) GetRoles(context.Context, []id.RoleID) (map[string]*role.Role, error) {
	return nil, f.err
}

func TestResolve_CollaboratorUnavailable(t *testing.T) {
	ctx := testContext()
	mem := memory.New()
	cause := errors.New("connection refused")
	eng, err := NewEngine(WithStore(&failingStore{Store: mem, err: cause}))
	if err != nil {
		t.Fatal(err)
	}
	mustRegister(t, eng, ctx, "u1")

	priv, err := eng.Resolve(ctx, "u1")
	if priv != nil {
		t.Fatal("an outage must not produce a result")
	}
	if !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected the underlying cause to be preserved")
	}
}

func TestResolve_Idempotent(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	for i, slug := range []string{"a", "b", "c", "d"} {
		r := mustCreateRole(t, eng, ctx, slug, 10-i, "perm_"+slug)
		mustGrant(t, eng, ctx, "u1", r.ID)
	}

	first, err := eng.ResolveAt(ctx, "u1", testNow)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, err := eng.ResolveAt(ctx, "u1", testNow)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("resolution not stable:\n%+v\n%+v", first, again)
		}
	}
}

func TestResolve_Inheritance(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")

	base := mustCreateRole(t, eng, ctx, "base", 2, "read")
	child := &role.Role{Name: "child", Slug: "child", Precedence: 5, Permissions: []string{"write"}, ParentID: &base.ID}
	if err := eng.CreateRole(ctx, child); err != nil {
		t.Fatal(err)
	}
	mustGrant(t, eng, ctx, "u1", child.ID)

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.HasAllPermissions("read", "write") {
		t.Fatalf("expected inherited permissions, got %v", priv.Permissions)
	}
	if priv.HighestPrecedence != 5 {
		t.Fatalf("inherited roles should not raise precedence by default, got %d", priv.HighestPrecedence)
	}
	if len(priv.Roles) != 2 || priv.Roles[0].Slug != "base" || !priv.Roles[0].Inherited {
		t.Fatalf("unexpected roles %+v", priv.Roles)
	}

	cfg := DefaultConfig()
	cfg.InheritPrecedence = true
	eng2, err := NewEngine(WithStore(eng.Store()), WithConfig(cfg))
	if err != nil {
		t.Fatal(err)
	}
	priv, err = eng2.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if priv.HighestPrecedence != 2 {
		t.Fatalf("expected inherited precedence 2, got %d", priv.HighestPrecedence)
	}

	off := false
	cfg = DefaultConfig()
	cfg.EnableInheritance = &off
	eng3, err := NewEngine(WithStore(eng.Store()), WithConfig(cfg))
	if err != nil {
		t.Fatal(err)
	}
	priv, err = eng3.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if priv.HasPermission("read") {
		t.Fatal("inheritance disabled but parent permission granted")
	}
}

func TestResolve_InheritanceCycleWarns(t *testing.T) {
	ctx := testContext()
	eng, s := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")

	aID, bID := id.NewRoleID(), id.NewRoleID()
	a := &role.Role{ID: aID, TenantID: "t1", Slug: "a", Precedence: 3, Permissions: []string{"pa"}, ParentID: &bID}
	b := &role.Role{ID: bID, TenantID: "t1", Slug: "b", Precedence: 4, Permissions: []string{"pb"}, ParentID: &aID}
	for _, r := range []*role.Role{a, b} {
		if err := s.CreateRole(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	mustGrant(t, eng, ctx, "u1", aID)

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.HasAllPermissions("pa", "pb") {
		t.Fatalf("expected both permissions, got %v", priv.Permissions)
	}
	if len(priv.Warnings) != 1 || priv.Warnings[0].Kind != WarningInheritanceCycle {
		t.Fatalf("expected cycle warning, got %+v", priv.Warnings)
	}
	if !errors.Is(priv.Warnings[0].Err(), ErrCyclicRoleInheritance) {
		t.Fatal("cycle warning should match ErrCyclicRoleInheritance")
	}
}

func TestResolve_TenantIsolation(t *testing.T) {
	t1 := testContext()
	t2 := WithTenant(context.Background(), "app1", "t2")
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, t1, "u1")
	mustRegister(t, eng, t2, "u1")
	r := mustCreateRole(t, eng, t1, "admin", 1, "manage_users")
	mustGrant(t, eng, t1, "u1", r.ID)

	priv, err := eng.Resolve(t2, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.IsEmpty() {
		t.Fatal("assignment leaked across tenants")
	}

	// A role from another tenant cannot be granted.
	if _, err := eng.GrantRole(t2, &GrantRequest{PrincipalID: "u1", RoleID: r.ID}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Write path
// ──────────────────────────────────────────────────

func TestGrantRole_Validation(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	r := mustCreateRole(t, eng, ctx, "viewer", 10, "view_dashboard")

	from := testNow
	until := testNow.Add(-time.Minute)

	tests := []struct {
		name string
		req  *GrantRequest
		want error
	}{
		{"missing principal", &GrantRequest{RoleID: r.ID}, assignment.ErrPrincipalRequired},
		{"inverted window", &GrantRequest{PrincipalID: "u1", RoleID: r.ID, EffectiveFrom: &from, EffectiveUntil: &until}, ErrInvalidWindow},
		{"unknown role", &GrantRequest{PrincipalID: "u1", RoleID: id.NewRoleID()}, ErrRoleNotFound},
		{"unregistered principal", &GrantRequest{PrincipalID: "ghost", RoleID: r.ID}, ErrUnknownPrincipal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.GrantRole(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	mustGrant(t, eng, ctx, "u1", r.ID)
	if _, err := eng.GrantRole(ctx, &GrantRequest{PrincipalID: "u1", RoleID: r.ID}); !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}
}

func TestSetAssignmentWindow(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	r := mustCreateRole(t, eng, ctx, "viewer", 10, "view_dashboard")
	a := mustGrant(t, eng, ctx, "u1", r.ID)

	until := testNow.Add(-time.Second)
	updated, err := eng.SetAssignmentWindow(ctx, a.ID, nil, &until)
	if err != nil {
		t.Fatal(err)
	}
	if updated.EffectiveUntil == nil || !updated.EffectiveUntil.Equal(until) {
		t.Fatalf("window not stored: %+v", updated)
	}

	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !priv.IsEmpty() {
		t.Fatal("expired assignment still contributes")
	}

	other := WithTenant(context.Background(), "app1", "t2")
	if _, err := eng.SetAssignmentWindow(other, a.ID, nil, nil); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound across tenants, got %v", err)
	}
}

func TestRoleWrites(t *testing.T) {
	ctx := testContext()
	eng, s := newTestEngine(t)

	if err := eng.CreateRole(ctx, &role.Role{Slug: "x", Precedence: 0}); !errors.Is(err, ErrInvalidPrecedence) {
		t.Fatalf("expected ErrInvalidPrecedence, got %v", err)
	}

	a := mustCreateRole(t, eng, ctx, "a", 3)
	b := &role.Role{Slug: "b", Precedence: 4, ParentID: &a.ID}
	if err := eng.CreateRole(ctx, b); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetRole(ctx, b.ID); got.TenantID != "t1" || got.AppID != "app1" {
		t.Fatalf("role scope not taken from context: %+v", got)
	}

	// a -> b would close the loop b -> a.
	a.ParentID = &b.ID
	if err := eng.UpdateRole(ctx, a); !errors.Is(err, ErrCyclicRoleInheritance) {
		t.Fatalf("expected ErrCyclicRoleInheritance, got %v", err)
	}

	sys := &role.Role{Slug: "owner", Precedence: 1, IsSystem: true}
	if err := eng.CreateRole(ctx, sys); err != nil {
		t.Fatal(err)
	}
	sys.Name = "renamed"
	if err := eng.UpdateRole(ctx, sys); !errors.Is(err, ErrSystemRoleImmutable) {
		t.Fatalf("expected ErrSystemRoleImmutable, got %v", err)
	}
	if err := eng.DeleteRole(ctx, sys.ID); !errors.Is(err, ErrSystemRoleImmutable) {
		t.Fatalf("expected ErrSystemRoleImmutable, got %v", err)
	}

	if err := eng.CreateRole(ctx, &role.Role{Slug: "A", Precedence: 2}); !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole for case-folded slug, got %v", err)
	}
}

func TestRegisterPrincipal(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)

	if err := eng.RegisterPrincipal(ctx, &principal.Principal{ExternalID: " "}); !errors.Is(err, ErrInvalidPrincipalID) {
		t.Fatalf("expected ErrInvalidPrincipalID, got %v", err)
	}
	mustRegister(t, eng, ctx, "u1")
	if err := eng.RegisterPrincipal(ctx, &principal.Principal{ExternalID: "u1"}); !errors.Is(err, ErrDuplicatePrincipal) {
		t.Fatalf("expected ErrDuplicatePrincipal, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Authorization helpers
// ──────────────────────────────────────────────────

func TestCanAndEnforce(t *testing.T) {
	ctx := testContext()
	eng, _ := newTestEngine(t)
	mustRegister(t, eng, ctx, "u1")
	r := &role.Role{Slug: "ops", Precedence: 3, Permissions: []string{"deploy:*"}, Modules: []string{"infra"}}
	if err := eng.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}
	mustGrant(t, eng, ctx, "u1", r.ID)

	ok, err := eng.Can(ctx, "u1", "deploy:prod")
	if err != nil || !ok {
		t.Fatalf("expected wildcard grant to cover deploy:prod (ok=%v err=%v)", ok, err)
	}
	ok, err = eng.CanAccessModule(ctx, "u1", "infra")
	if err != nil || !ok {
		t.Fatalf("expected module access (ok=%v err=%v)", ok, err)
	}

	if err := eng.Enforce(ctx, "u1", "deploy:staging"); err != nil {
		t.Fatalf("unexpected denial: %v", err)
	}
	if err := eng.Enforce(ctx, "u1", "deploy:staging", "manage_users"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if err := eng.Enforce(ctx, "ghost", "deploy:staging"); !errors.Is(err, ErrUnknownPrincipal) {
		t.Fatalf("expected ErrUnknownPrincipal, got %v", err)
	}
}
