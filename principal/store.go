package principal

import "context"

// Store defines persistence operations for registered principals.
type Store interface {
	// CreatePrincipal registers a principal. Returns ErrDuplicate when the
	// external ID is already registered in the tenant.
	CreatePrincipal(ctx context.Context, p *Principal) error

	// GetPrincipal looks a principal up by its external identifier.
	// Returns ErrNotFound if the principal is not registered.
	GetPrincipal(ctx context.Context, tenantID, externalID string) (*Principal, error)

	// ListPrincipals returns principals matching the filter.
	ListPrincipals(ctx context.Context, filter *ListFilter) ([]*Principal, error)

	// CountPrincipals returns the number of principals matching the filter.
	CountPrincipals(ctx context.Context, filter *ListFilter) (int64, error)

	// DeletePrincipalsByTenant removes all principals for a tenant.
	DeletePrincipalsByTenant(ctx context.Context, tenantID string) error
}
