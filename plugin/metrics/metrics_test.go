package metrics_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/steward"
	"github.com/xraph/steward/cache"
	"github.com/xraph/steward/plugin/metrics"
	"github.com/xraph/steward/role"
	"github.com/xraph/steward/store/memory"
)

func newEngine(t *testing.T, reg *prometheus.Registry) (*steward.Engine, context.Context) {
	t.Helper()
	eng, err := steward.NewEngine(
		steward.WithStore(memory.New()),
		steward.WithCache(cache.NewMemory()),
		steward.WithPlugin(metrics.New(reg)),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, steward.WithTenant(context.Background(), "app1", "t1")
}

func TestMetrics_ResolutionsByCacheResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng, ctx := newEngine(t, reg)

	admin := &role.Role{Name: "Admin", Slug: "admin", Precedence: 1, Permissions: []string{"manage_users"}}
	if err := eng.CreateRole(ctx, admin); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := eng.GrantRole(ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: admin.ID}); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	for range 3 {
		if _, err := eng.Resolve(ctx, "u1"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}

	const want = `
# HELP steward_resolutions_total Privilege resolutions partitioned by outcome and cache result.
# TYPE steward_resolutions_total counter
steward_resolutions_total{cache="hit",outcome="success"} 2
steward_resolutions_total{cache="miss",outcome="success"} 1
# HELP steward_writes_total Catalog and assignment writes partitioned by entity and operation.
# TYPE steward_writes_total counter
steward_writes_total{entity="assignment",op="grant"} 1
steward_writes_total{entity="role",op="create"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"steward_resolutions_total", "steward_writes_total")
	if err != nil {
		t.Fatal(err)
	}
}

func TestMetrics_WarningsAndInvalidations(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng, ctx := newEngine(t, reg)

	gone := &role.Role{Name: "Gone", Slug: "gone", Precedence: 5}
	if err := eng.CreateRole(ctx, gone); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := eng.GrantRole(ctx, &steward.GrantRequest{PrincipalID: "u1", RoleID: gone.ID}); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if err := eng.DeleteRole(ctx, gone.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	priv, err := eng.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(priv.Warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(priv.Warnings))
	}

	// Grant invalidates the principal, delete invalidates the tenant.
	const want = `
# HELP steward_cache_invalidations_total Cache invalidations partitioned by scope.
# TYPE steward_cache_invalidations_total counter
steward_cache_invalidations_total{scope="principal"} 1
steward_cache_invalidations_total{scope="tenant"} 1
# HELP steward_resolution_warnings_total Non-fatal resolution warnings partitioned by kind.
# TYPE steward_resolution_warnings_total counter
steward_resolution_warnings_total{kind="dangling_role"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(want),
		"steward_cache_invalidations_total", "steward_resolution_warnings_total")
	if err != nil {
		t.Fatal(err)
	}
}

func TestMetrics_OutcomeLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := metrics.New(reg)
	ctx := context.Background()

	events := []*steward.ResolveEvent{
		{Err: steward.ErrUnknownPrincipal},
		{Err: errors.Join(steward.ErrCollaboratorUnavailable, errors.New("db down"))},
		{Err: errors.New("boom")},
	}
	for _, ev := range events {
		if err := p.OnAfterResolve(ctx, ev); err != nil {
			t.Fatalf("OnAfterResolve: %v", err)
		}
	}
	// Unrelated payloads are ignored.
	if err := p.OnAfterResolve(ctx, "not an event"); err != nil {
		t.Fatalf("OnAfterResolve: %v", err)
	}

	const want = `
# HELP steward_resolutions_total Privilege resolutions partitioned by outcome and cache result.
# TYPE steward_resolutions_total counter
steward_resolutions_total{cache="miss",outcome="error"} 1
steward_resolutions_total{cache="miss",outcome="unavailable"} 1
steward_resolutions_total{cache="miss",outcome="unknown_principal"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "steward_resolutions_total"); err != nil {
		t.Fatal(err)
	}
}
