package steward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xraph/steward/id"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/store"
)

// Engine is the central privilege engine. It resolves principals through
// the cache, owns the assignment write path so every change invalidates
// synchronously, and fires plugin hooks.
type Engine struct {
	store   store.Store
	cache   Cache
	feed    Feed
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config
	now     func() time.Time

	instanceID string
	flights    singleflight.Group

	mu       sync.Mutex
	stopFeed context.CancelFunc
}

// NewEngine creates a new Steward engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:     slog.Default(),
		config:     DefaultConfig(),
		now:        time.Now,
		instanceID: id.New("node").String(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, ErrStoreRequired
	}
	if e.plugins == nil {
		e.plugins = plugin.NewRegistry(e.logger)
	} else {
		e.plugins.SetLogger(e.logger)
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Start subscribes to the invalidation feed, if one is configured, so
// changes made by other instances drop local snapshots.
func (e *Engine) Start(ctx context.Context) error {
	if e.feed == nil || e.cache == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopFeed != nil {
		return nil
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := e.feed.Subscribe(subCtx, e.applyRemoteInvalidation); err != nil {
		cancel()
		return fmt.Errorf("steward: subscribe invalidation feed: %w", err)
	}
	e.stopFeed = cancel
	return nil
}

// Stop cancels the feed subscription and notifies Shutdown plugins.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopFeed != nil {
		e.stopFeed()
		e.stopFeed = nil
	}
	e.mu.Unlock()

	e.plugins.EmitShutdown(ctx)
	return nil
}

func (e *Engine) applyRemoteInvalidation(ctx context.Context, inv Invalidation) {
	if inv.Origin == e.instanceID {
		return
	}
	var err error
	if inv.PrincipalID == "" {
		err = e.cache.InvalidateTenant(ctx, inv.TenantID)
	} else {
		err = e.cache.Invalidate(ctx, inv.TenantID, inv.PrincipalID)
	}
	if err != nil {
		e.logger.Error("steward: apply remote invalidation",
			slog.String("tenant_id", inv.TenantID),
			slog.String("principal_id", inv.PrincipalID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.plugins.EmitCacheInvalidated(ctx, inv.TenantID, inv.PrincipalID)
}

// ──────────────────────────────────────────────────
// Resolution
// ──────────────────────────────────────────────────

// Resolve returns the principal's effective privileges now. This is the
// hot path: results are served from cache when possible.
func (e *Engine) Resolve(ctx context.Context, principalID string) (*EffectivePrivileges, error) {
	return e.resolve(ctx, principalID, e.now().UTC(), true)
}

// ResolveAt returns the principal's effective privileges at the given
// instant. It always bypasses the cache.
func (e *Engine) ResolveAt(ctx context.Context, principalID string, at time.Time) (*EffectivePrivileges, error) {
	return e.resolve(ctx, principalID, at.UTC(), false)
}

func (e *Engine) resolve(ctx context.Context, principalID string, at time.Time, cached bool) (*EffectivePrivileges, error) {
	start := time.Now()
	scope := scopeFromContext(ctx)
	req := &ResolveRequest{
		TenantID:    scope.tenantID,
		AppID:       scope.appID,
		PrincipalID: strings.TrimSpace(principalID),
		At:          at,
	}
	if req.PrincipalID == "" {
		return nil, ErrInvalidPrincipalID
	}

	e.plugins.EmitBeforeResolve(ctx, req)

	var (
		priv *EffectivePrivileges
		hit  bool
		err  error
	)
	if cached && e.cachingEnabled() {
		priv, hit, err = e.resolveCached(ctx, req)
	} else {
		priv, err = e.resolveFresh(ctx, req)
	}

	e.plugins.EmitAfterResolve(ctx, &ResolveEvent{
		Request:  req,
		Result:   priv,
		Err:      err,
		CacheHit: hit,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return priv, nil
}

// resolveCached serves from cache or resolves under a stamp so a
// concurrent invalidation can never be overwritten by a stale snapshot.
// Concurrent misses for the same principal and generation share one
// resolution.
func (e *Engine) resolveCached(ctx context.Context, req *ResolveRequest) (*EffectivePrivileges, bool, error) {
	if priv, ok := e.cache.Get(ctx, req.TenantID, req.PrincipalID); ok {
		return priv, true, nil
	}

	stamp, err := e.cache.Stamp(ctx, req.TenantID, req.PrincipalID)
	if err != nil {
		e.logger.Warn("steward: cache stamp failed, resolving uncached",
			slog.String("principal_id", req.PrincipalID),
			slog.String("error", err.Error()),
		)
		priv, err := e.resolveFresh(ctx, req)
		return priv, false, err
	}

	// The shared resolution outlives any single caller: each caller waits
	// on its own context, and one caller leaving never fails the others.
	key := req.TenantID + "\x00" + req.PrincipalID + "\x00" + strconv.FormatUint(uint64(stamp), 10)
	flightCtx := context.WithoutCancel(ctx)
	ch := e.flights.DoChan(key, func() (any, error) {
		priv, err := e.resolveFresh(flightCtx, req)
		if err != nil {
			return nil, err
		}
		e.cachePut(flightCtx, req, stamp, priv)
		return priv, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("steward: resolve: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		priv := res.Val.(*EffectivePrivileges) //nolint:errcheck // DoChan only delivers what the closure returns
		if res.Shared {
			priv = priv.Clone()
		}
		return priv, false, nil
	}
}

func (e *Engine) cachePut(ctx context.Context, req *ResolveRequest, stamp Stamp, priv *EffectivePrivileges) {
	ttl := e.config.CacheTTL
	if priv.ValidUntil != nil {
		if remaining := priv.ValidUntil.Sub(req.At); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}
	if _, err := e.cache.PutIfUnchanged(ctx, req.TenantID, req.PrincipalID, stamp, priv.Clone(), ttl); err != nil {
		e.logger.Warn("steward: cache put failed",
			slog.String("principal_id", req.PrincipalID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) resolveFresh(ctx context.Context, req *ResolveRequest) (*EffectivePrivileges, error) {
	priv, err := e.resolver().Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, w := range priv.Warnings {
		e.logger.Warn("steward: resolution warning",
			slog.String("kind", string(w.Kind)),
			slog.String("tenant_id", req.TenantID),
			slog.String("principal_id", req.PrincipalID),
			slog.String("assignment_id", w.AssignmentID),
			slog.String("role_id", w.RoleID),
		)
		e.plugins.EmitResolutionWarning(ctx, req.TenantID, req.PrincipalID, w)
	}
	return priv, nil
}

func (e *Engine) resolver() *Resolver {
	r := &Resolver{
		Roles:             e.store,
		Assignments:       e.store,
		Inheritance:       e.config.inheritanceEnabled(),
		MaxDepth:          e.config.maxDepth(),
		InheritPrecedence: e.config.InheritPrecedence,
	}
	if e.config.registryRequired() {
		r.Principals = e.store
	}
	return r
}

func (e *Engine) cachingEnabled() bool {
	return e.cache != nil && e.config.CacheTTL > 0
}

// ──────────────────────────────────────────────────
// Authorization helpers
// ──────────────────────────────────────────────────

// Can reports whether the principal currently holds the permission.
func (e *Engine) Can(ctx context.Context, principalID, permission string) (bool, error) {
	priv, err := e.Resolve(ctx, principalID)
	if err != nil {
		return false, err
	}
	return priv.HasPermission(permission), nil
}

// CanAccessModule reports whether the principal may access the module.
func (e *Engine) CanAccessModule(ctx context.Context, principalID, module string) (bool, error) {
	priv, err := e.Resolve(ctx, principalID)
	if err != nil {
		return false, err
	}
	return priv.CanAccessModule(module), nil
}

// Enforce returns ErrAccessDenied unless the principal holds every
// listed permission.
func (e *Engine) Enforce(ctx context.Context, principalID string, permissions ...string) error {
	priv, err := e.Resolve(ctx, principalID)
	if err != nil {
		return fmt.Errorf("steward: enforce: %w", err)
	}
	for _, p := range permissions {
		if !priv.HasPermission(p) {
			return fmt.Errorf("%w: principal %q lacks %q", ErrAccessDenied, principalID, p)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Invalidation
// ──────────────────────────────────────────────────

// Invalidate drops the principal's cached privileges in the context's
// tenant and notifies other instances.
func (e *Engine) Invalidate(ctx context.Context, principalID string) error {
	return e.invalidate(ctx, scopeFromContext(ctx).tenantID, principalID)
}

// InvalidateTenant drops every cached snapshot in the context's tenant.
func (e *Engine) InvalidateTenant(ctx context.Context) error {
	return e.invalidate(ctx, scopeFromContext(ctx).tenantID, "")
}

// invalidate runs synchronously on the write path. It returns once the
// local cache no longer holds the snapshot and peers have been notified.
func (e *Engine) invalidate(ctx context.Context, tenantID, principalID string) error {
	if e.cache != nil {
		var err error
		if principalID == "" {
			err = e.cache.InvalidateTenant(ctx, tenantID)
		} else {
			err = e.cache.Invalidate(ctx, tenantID, principalID)
		}
		if err != nil {
			return errors.Join(ErrCacheInvalidation, err)
		}
	}
	if e.feed != nil {
		inv := Invalidation{TenantID: tenantID, PrincipalID: principalID, Origin: e.instanceID}
		if err := e.feed.Publish(ctx, inv); err != nil {
			return errors.Join(ErrCacheInvalidation, err)
		}
	}
	e.plugins.EmitCacheInvalidated(ctx, tenantID, principalID)
	return nil
}
