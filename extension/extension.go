// Package extension provides a Forge extension entry point for Steward.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/steward"
	"github.com/xraph/steward/api"
	"github.com/xraph/steward/cache"
	stewardredis "github.com/xraph/steward/cache/redis"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/plugin/diagnostics"
	"github.com/xraph/steward/plugin/metrics"
	"github.com/xraph/steward/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "steward"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Role-based privilege resolution with precedence ranking"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Steward as a Forge extension.
type Extension struct {
	config      Config
	eng         *steward.Engine
	apiHandler  *api.API
	logger      *slog.Logger
	store       store.Store
	cache       steward.Cache
	feed        steward.Feed
	redis       goredis.UniversalClient
	registerer  prometheus.Registerer
	stewardOpts []steward.Option
	plugins     []plugin.Plugin
}

// New creates a Steward Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Steward engine.
func (e *Extension) Engine() *steward.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the engine,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*steward.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("steward: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := e.store
	if s == nil {
		injected, err := forge.Inject[store.Store](fapp.Container())
		if err != nil {
			return fmt.Errorf("steward: resolve store: %w", err)
		}
		s = injected
	}

	opts := make([]steward.Option, 0, len(e.stewardOpts)+len(e.plugins)+8)
	opts = append(opts,
		steward.WithLogger(logger),
		steward.WithStore(s),
		steward.WithConfig(e.config.engineConfig()),
	)

	// A Redis client in the container backs both the shared cache and the
	// invalidation feed.
	client := e.redis
	if client == nil {
		if c, err := forge.Inject[goredis.UniversalClient](fapp.Container()); err == nil {
			client = c
		}
	}

	switch {
	case e.cache != nil:
		opts = append(opts, steward.WithCache(e.cache))
	case e.config.CacheTTL <= 0:
	case client != nil:
		opts = append(opts, steward.WithCache(stewardredis.NewCache(client,
			stewardredis.WithTTL(e.config.CacheTTL),
			stewardredis.WithLogger(logger),
		)))
	default:
		opts = append(opts, steward.WithCache(cache.NewMemory(
			cache.WithTTL(e.config.CacheTTL),
			cache.WithMaxSize(e.config.CacheSize),
		)))
	}

	switch {
	case e.feed != nil:
		opts = append(opts, steward.WithFeed(e.feed))
	case client != nil:
		opts = append(opts, steward.WithFeed(stewardredis.NewFeed(client, stewardredis.WithLogger(logger))))
	}

	if !e.config.DisableMetrics {
		reg := e.registerer
		if reg == nil {
			if r, err := forge.Inject[prometheus.Registerer](fapp.Container()); err == nil {
				reg = r
			}
		}
		opts = append(opts, steward.WithPlugin(metrics.New(reg)))
	}
	if !e.config.DisableDiagnostics {
		opts = append(opts, steward.WithPlugin(diagnostics.New(s)))
	}

	// User-provided options may override anything above.
	opts = append(opts, e.stewardOpts...)

	for _, x := range e.plugins {
		opts = append(opts, steward.WithPlugin(x))
	}

	eng, err := steward.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("steward: create engine: %w", err)
	}
	e.eng = eng

	e.apiHandler = api.New(eng, fapp.Router())

	if !e.config.DisableRoutes {
		if err := e.apiHandler.RegisterRoutes(fapp.Router()); err != nil {
			return fmt.Errorf("steward: register routes: %w", err)
		}
	}

	return nil
}

// Start runs migrations if enabled and starts the engine.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("steward: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if s := e.eng.Store(); s != nil {
			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("steward: migration failed: %w", err)
			}
		}
	}

	return e.eng.Start(ctx)
}

// Stop gracefully shuts down the steward engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("steward: extension not initialized")
	}
	s := e.eng.Store()
	if s == nil {
		return errors.New("steward: no store configured")
	}
	return s.Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all steward API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
