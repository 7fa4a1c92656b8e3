// Package metrics is a Steward plugin that exports Prometheus collectors
// for resolutions, resolution warnings, cache invalidations and writes.
package metrics

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/steward"
	"github.com/xraph/steward/assignment"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/role"
)

// Compile-time hook checks.
var (
	_ plugin.AfterResolve      = (*Plugin)(nil)
	_ plugin.ResolutionWarning = (*Plugin)(nil)
	_ plugin.CacheInvalidated  = (*Plugin)(nil)
	_ plugin.RoleCreated       = (*Plugin)(nil)
	_ plugin.RoleUpdated       = (*Plugin)(nil)
	_ plugin.RoleDeleted       = (*Plugin)(nil)
	_ plugin.AssignmentCreated = (*Plugin)(nil)
	_ plugin.AssignmentChanged = (*Plugin)(nil)
)

// Plugin records Prometheus metrics from engine lifecycle events.
type Plugin struct {
	resolutions   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	roles         prometheus.Histogram
	warnings      *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	writes        *prometheus.CounterVec
}

var (
	defaultOnce   sync.Once
	defaultPlugin *Plugin
)

// New registers the collectors against registerer. A nil registerer uses
// the default Prometheus registerer; repeated calls then share collectors.
func New(registerer prometheus.Registerer) *Plugin {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultPlugin = build(prometheus.DefaultRegisterer)
		})
		return defaultPlugin
	}
	return build(registerer)
}

func build(registerer prometheus.Registerer) *Plugin {
	p := &Plugin{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_resolutions_total",
			Help: "Privilege resolutions partitioned by outcome and cache result.",
		}, []string{"outcome", "cache"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steward_resolution_duration_seconds",
			Help:    "Duration in seconds of privilege resolutions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cache"}),
		roles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "steward_resolution_roles",
			Help:    "Number of contributing roles per successful resolution.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_resolution_warnings_total",
			Help: "Non-fatal resolution warnings partitioned by kind.",
		}, []string{"kind"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_cache_invalidations_total",
			Help: "Cache invalidations partitioned by scope.",
		}, []string{"scope"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_writes_total",
			Help: "Catalog and assignment writes partitioned by entity and operation.",
		}, []string{"entity", "op"}),
	}
	registerer.MustRegister(p.resolutions, p.duration, p.roles, p.warnings, p.invalidations, p.writes)
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "metrics" }

// OnAfterResolve implements plugin.AfterResolve.
func (p *Plugin) OnAfterResolve(_ context.Context, event any) error {
	ev, ok := event.(*steward.ResolveEvent)
	if !ok || ev == nil {
		return nil
	}
	cache := "miss"
	if ev.CacheHit {
		cache = "hit"
	}
	p.resolutions.WithLabelValues(outcome(ev.Err), cache).Inc()
	p.duration.WithLabelValues(cache).Observe(ev.Duration.Seconds())
	if ev.Err == nil && ev.Result != nil {
		p.roles.Observe(float64(len(ev.Result.Roles)))
	}
	return nil
}

// OnResolutionWarning implements plugin.ResolutionWarning.
func (p *Plugin) OnResolutionWarning(_ context.Context, _, _ string, warning any) error {
	if w, ok := warning.(steward.Warning); ok {
		p.warnings.WithLabelValues(string(w.Kind)).Inc()
	}
	return nil
}

// OnCacheInvalidated implements plugin.CacheInvalidated.
func (p *Plugin) OnCacheInvalidated(_ context.Context, _, principalID string) error {
	scope := "principal"
	if principalID == "" {
		scope = "tenant"
	}
	p.invalidations.WithLabelValues(scope).Inc()
	return nil
}

// OnRoleCreated implements plugin.RoleCreated.
func (p *Plugin) OnRoleCreated(context.Context, *role.Role) error {
	p.writes.WithLabelValues("role", "create").Inc()
	return nil
}

// OnRoleUpdated implements plugin.RoleUpdated.
func (p *Plugin) OnRoleUpdated(context.Context, *role.Role) error {
	p.writes.WithLabelValues("role", "update").Inc()
	return nil
}

// OnRoleDeleted implements plugin.RoleDeleted.
func (p *Plugin) OnRoleDeleted(context.Context, id.RoleID) error {
	p.writes.WithLabelValues("role", "delete").Inc()
	return nil
}

// OnAssignmentCreated implements plugin.AssignmentCreated.
func (p *Plugin) OnAssignmentCreated(context.Context, *assignment.Assignment) error {
	p.writes.WithLabelValues("assignment", "grant").Inc()
	return nil
}

// OnAssignmentChanged implements plugin.AssignmentChanged.
func (p *Plugin) OnAssignmentChanged(context.Context, *assignment.Assignment) error {
	p.writes.WithLabelValues("assignment", "change").Inc()
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, steward.ErrUnknownPrincipal):
		return "unknown_principal"
	case errors.Is(err, steward.ErrCollaboratorUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
