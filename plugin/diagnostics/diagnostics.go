// Package diagnostics is a Steward plugin that persists non-fatal
// resolution warnings, such as dangling role references, to the
// resolution log so operators can find and repair them.
package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/steward"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/resolutionlog"
)

var _ plugin.ResolutionWarning = (*Plugin)(nil)

// Plugin writes one resolution log entry per warning of a fresh resolution.
type Plugin struct {
	store resolutionlog.Store
	now   func() time.Time
}

// Option configures the plugin.
type Option func(*Plugin)

// WithClock overrides the clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Plugin) { p.now = now }
}

// New returns a diagnostics plugin writing to s.
func New(s resolutionlog.Store, opts ...Option) *Plugin {
	p := &Plugin{store: s, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "diagnostics" }

// OnResolutionWarning implements plugin.ResolutionWarning.
func (p *Plugin) OnResolutionWarning(ctx context.Context, tenantID, principalID string, warning any) error {
	w, ok := warning.(steward.Warning)
	if !ok {
		return nil
	}
	appID, _ := steward.TenantFromContext(ctx)
	now := p.now().UTC()
	entry := &resolutionlog.Entry{
		ID:           id.NewResolutionLogID(),
		TenantID:     tenantID,
		AppID:        appID,
		PrincipalID:  principalID,
		Kind:         string(w.Kind),
		RoleID:       w.RoleID,
		AssignmentID: w.AssignmentID,
		Message:      w.Message,
		EvaluatedAt:  now,
		CreatedAt:    now,
	}
	if err := p.store.CreateResolutionEntry(ctx, entry); err != nil {
		return fmt.Errorf("diagnostics: record %s warning: %w", w.Kind, err)
	}
	return nil
}

// Purge removes entries older than retention and reports how many went.
func (p *Plugin) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return p.store.PurgeResolutionEntries(ctx, p.now().UTC().Add(-retention))
}
