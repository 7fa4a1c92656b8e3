package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Steward store (PostgreSQL).
var Migrations = migrate.NewGroup("steward")

// schema lists the DDL in migration order.
var schema = []struct {
	name    string
	version string
	table   string
	up      string
}{
	{"create_roles", "20260101000001", "steward_roles", createRolesSQL},
	{"create_assignments", "20260101000002", "steward_assignments", createAssignmentsSQL},
	{"create_principals", "20260101000003", "steward_principals", createPrincipalsSQL},
	{"create_resolution_logs", "20260101000004", "steward_resolution_logs", createResolutionLogsSQL},
}

func init() {
	for _, step := range schema {
		Migrations.MustRegister(&migrate.Migration{
			Name:    step.name,
			Version: step.version,
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, step.up)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, "DROP TABLE IF EXISTS "+step.table)
				return err
			},
		})
	}
}

const createRolesSQL = `
CREATE TABLE IF NOT EXISTS steward_roles (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    name            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    slug            TEXT NOT NULL,
    precedence      INTEGER NOT NULL CHECK (precedence >= 1),
    permissions     JSONB NOT NULL DEFAULT '[]',
    modules         JSONB NOT NULL DEFAULT '[]',
    parent_id       TEXT,
    is_system       BOOLEAN NOT NULL DEFAULT FALSE,
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (tenant_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_steward_roles_tenant ON steward_roles (tenant_id, precedence);
CREATE INDEX IF NOT EXISTS idx_steward_roles_parent ON steward_roles (parent_id);
`

const createAssignmentsSQL = `
CREATE TABLE IF NOT EXISTS steward_assignments (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    principal_id    TEXT NOT NULL,
    role_id         TEXT NOT NULL,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    effective_from  TIMESTAMPTZ,
    effective_until TIMESTAMPTZ,
    granted_by      TEXT NOT NULL DEFAULT '',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (effective_from IS NULL OR effective_until IS NULL OR effective_from <= effective_until)
);

CREATE INDEX IF NOT EXISTS idx_steward_assignments_principal ON steward_assignments (tenant_id, principal_id, is_active);
CREATE INDEX IF NOT EXISTS idx_steward_assignments_role ON steward_assignments (role_id);
`

const createPrincipalsSQL = `
CREATE TABLE IF NOT EXISTS steward_principals (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    external_id     TEXT NOT NULL,
    kind            TEXT NOT NULL DEFAULT 'user',
    display_name    TEXT NOT NULL DEFAULT '',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (tenant_id, external_id)
);
`

const createResolutionLogsSQL = `
CREATE TABLE IF NOT EXISTS steward_resolution_logs (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    principal_id    TEXT NOT NULL,
    kind            TEXT NOT NULL,
    role_id         TEXT NOT NULL DEFAULT '',
    assignment_id   TEXT NOT NULL DEFAULT '',
    message         TEXT NOT NULL DEFAULT '',
    evaluated_at    TIMESTAMPTZ NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_steward_resolution_logs_tenant ON steward_resolution_logs (tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_steward_resolution_logs_principal ON steward_resolution_logs (tenant_id, principal_id);
`
