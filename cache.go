package steward

import (
	"context"
	"time"
)

// Stamp is a cache generation token. A snapshot resolved after taking a
// stamp may only be stored if no invalidation happened since.
type Stamp uint64

// Cache memoizes resolved privileges per principal.
//
// Implementations must be linearizable per principal: once Invalidate
// returns, Get never yields a snapshot stored before it, and
// PutIfUnchanged with an older stamp is rejected.
type Cache interface {
	// Get returns the cached snapshot, if any.
	Get(ctx context.Context, tenantID, principalID string) (*EffectivePrivileges, bool)

	// Put stores a snapshot unconditionally.
	Put(ctx context.Context, tenantID, principalID string, priv *EffectivePrivileges, ttl time.Duration) error

	// Stamp returns the current generation for the principal.
	Stamp(ctx context.Context, tenantID, principalID string) (Stamp, error)

	// PutIfUnchanged stores a snapshot only if neither the principal nor
	// its tenant was invalidated after stamp was taken.
	PutIfUnchanged(ctx context.Context, tenantID, principalID string, stamp Stamp, priv *EffectivePrivileges, ttl time.Duration) (bool, error)

	// Invalidate drops the principal's snapshot.
	Invalidate(ctx context.Context, tenantID, principalID string) error

	// InvalidateTenant drops every snapshot in the tenant.
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// Invalidation is an assignment-change notification exchanged between
// engine instances. An empty PrincipalID covers the whole tenant.
type Invalidation struct {
	TenantID    string `json:"tenant_id"`
	PrincipalID string `json:"principal_id,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

// Feed carries invalidations across processes so each instance can drop
// local snapshots.
type Feed interface {
	// Publish announces an invalidation to every subscriber.
	Publish(ctx context.Context, inv Invalidation) error

	// Subscribe delivers invalidations to fn until ctx is cancelled.
	// It returns once the subscription is established.
	Subscribe(ctx context.Context, fn func(context.Context, Invalidation)) error
}
