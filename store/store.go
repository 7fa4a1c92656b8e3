// Package store defines the aggregate persistence interface. Each entity
// package (role, assignment, principal, resolutionlog) defines its own
// store; a backend implements all of them.
// Backends: Memory, Postgres, SQLite, and MongoDB.
package store

import (
	"context"

	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/principal"
	"github.com/xraph/steward/resolutionlog"
	"github.com/xraph/steward/role"
)

// Store is the aggregate persistence interface.
type Store interface {
	role.Store
	assignment.Store
	principal.Store
	resolutionlog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
