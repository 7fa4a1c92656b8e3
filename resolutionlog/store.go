package resolutionlog

import (
	"context"
	"time"

	"github.com/xraph/steward/id"
)

// Store defines persistence operations for resolution diagnostics.
type Store interface {
	// CreateResolutionEntry persists a new entry.
	CreateResolutionEntry(ctx context.Context, e *Entry) error

	// GetResolutionEntry retrieves an entry by ID.
	GetResolutionEntry(ctx context.Context, entryID id.ResolutionLogID) (*Entry, error)

	// ListResolutionEntries returns entries matching the filter, newest first.
	ListResolutionEntries(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountResolutionEntries returns the number of entries matching the filter.
	CountResolutionEntries(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeResolutionEntries removes entries created before the given time.
	PurgeResolutionEntries(ctx context.Context, before time.Time) (int64, error)

	// DeleteResolutionEntriesByTenant removes all entries for a tenant.
	DeleteResolutionEntriesByTenant(ctx context.Context, tenantID string) error
}
