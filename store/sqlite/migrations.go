package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Steward store (SQLite).
var Migrations = migrate.NewGroup("steward")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_roles",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_roles (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    name            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    slug            TEXT NOT NULL,
    precedence      INTEGER NOT NULL CHECK (precedence >= 1),
    permissions     TEXT NOT NULL DEFAULT '[]',
    modules         TEXT NOT NULL DEFAULT '[]',
    parent_id       TEXT,
    is_system       INTEGER NOT NULL DEFAULT 0,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(tenant_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_steward_roles_tenant ON steward_roles (tenant_id, precedence);
CREATE INDEX IF NOT EXISTS idx_steward_roles_parent ON steward_roles (parent_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_roles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_assignments",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_assignments (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    principal_id    TEXT NOT NULL,
    role_id         TEXT NOT NULL,
    is_active       INTEGER NOT NULL DEFAULT 1,
    effective_from  TEXT,
    effective_until TEXT,
    granted_by      TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_steward_assignments_principal ON steward_assignments (tenant_id, principal_id, is_active);
CREATE INDEX IF NOT EXISTS idx_steward_assignments_role ON steward_assignments (role_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_assignments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_principals",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_principals (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    external_id     TEXT NOT NULL,
    kind            TEXT NOT NULL DEFAULT 'user',
    display_name    TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE(tenant_id, external_id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_principals`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_resolution_logs",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS steward_resolution_logs (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    principal_id    TEXT NOT NULL,
    kind            TEXT NOT NULL,
    role_id         TEXT NOT NULL DEFAULT '',
    assignment_id   TEXT NOT NULL DEFAULT '',
    message         TEXT NOT NULL DEFAULT '',
    evaluated_at    TEXT NOT NULL,
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_steward_resolution_logs_tenant ON steward_resolution_logs (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_steward_resolution_logs_principal ON steward_resolution_logs (tenant_id, principal_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS steward_resolution_logs`)
				return err
			},
		},
	)
}
