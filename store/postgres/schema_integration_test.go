//go:build integration

package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupPostgres(t *testing.T) *pgx.Conn {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("steward_test"),
		tcpostgres.WithUsername("steward"),
		tcpostgres.WithPassword("steward_test_password"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	for _, step := range schema {
		_, err := conn.Exec(ctx, step.up)
		require.NoError(t, err, step.name)
	}
	return conn
}

func TestSchemaIsIdempotent(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()
	for _, step := range schema {
		_, err := conn.Exec(ctx, step.up)
		require.NoError(t, err, "re-running %s", step.name)
	}
}

func TestSchemaConstraints(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	_, err := conn.Exec(ctx, `INSERT INTO steward_roles (id, tenant_id, slug, precedence) VALUES ('r1', 't1', 'admin', 1)`)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, `INSERT INTO steward_roles (id, tenant_id, slug, precedence) VALUES ('r2', 't1', 'admin', 2)`)
	assert.Error(t, err, "slug must be unique per tenant")

	_, err = conn.Exec(ctx, `INSERT INTO steward_roles (id, tenant_id, slug, precedence) VALUES ('r3', 't1', 'zero', 0)`)
	assert.Error(t, err, "precedence below 1 must be rejected")

	_, err = conn.Exec(ctx, `INSERT INTO steward_assignments (id, tenant_id, principal_id, role_id, effective_from, effective_until)
		VALUES ('a1', 't1', 'u1', 'r1', NOW(), NOW() - INTERVAL '1 hour')`)
	assert.Error(t, err, "inverted window must be rejected")
}

func TestLiveAssignmentPredicate(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []struct {
		id     string
		active bool
		from   *time.Time
		until  *time.Time
	}{
		{"open", true, nil, nil},
		{"starts-now", true, &at, nil},
		{"ends-now", true, nil, &at},
		{"ended", true, nil, ptr(at.Add(-time.Microsecond))},
		{"future", true, ptr(at.Add(time.Microsecond)), nil},
		{"inactive", false, nil, nil},
	}
	for _, r := range rows {
		_, err := conn.Exec(ctx, `INSERT INTO steward_assignments (id, tenant_id, principal_id, role_id, is_active, effective_from, effective_until)
			VALUES ($1, 't1', 'u1', 'r1', $2, $3, $4)`, r.id, r.active, r.from, r.until)
		require.NoError(t, err)
	}

	query := "SELECT id FROM steward_assignments WHERE tenant_id = 't1' AND principal_id = 'u1' AND is_active AND " +
		strings.ReplaceAll(liveFromClause, "?", "$1") + " AND " +
		strings.ReplaceAll(liveUntilClause, "?", "$1") + " ORDER BY id"
	result, err := conn.Query(ctx, query, at)
	require.NoError(t, err)
	ids, err := pgx.CollectRows(result, pgx.RowTo[string])
	require.NoError(t, err)

	assert.Equal(t, []string{"ends-now", "open", "starts-now"}, ids)
}

func ptr(t time.Time) *time.Time { return &t }
