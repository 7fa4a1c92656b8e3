package extension

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/steward"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/store"
)

// ExtOption configures the Steward Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithCache sets the privilege cache, overriding the one built from config.
func WithCache(c steward.Cache) ExtOption {
	return func(e *Extension) {
		e.cache = c
	}
}

// WithFeed sets the cross-instance invalidation feed.
func WithFeed(f steward.Feed) ExtOption {
	return func(e *Extension) {
		e.feed = f
	}
}

// WithRedis backs the privilege cache and the invalidation feed with the
// given client instead of one resolved from the container.
func WithRedis(client goredis.UniversalClient) ExtOption {
	return func(e *Extension) {
		e.redis = client
	}
}

// WithRegisterer sets where the metrics plugin registers its collectors.
func WithRegisterer(reg prometheus.Registerer) ExtOption {
	return func(e *Extension) {
		e.registerer = reg
	}
}

// WithCacheTTL overrides Config.CacheTTL. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) ExtOption {
	return func(e *Extension) {
		e.config.CacheTTL = ttl
	}
}

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithEngineOptions adds engine-level options.
func WithEngineOptions(opts ...steward.Option) ExtOption {
	return func(e *Extension) {
		e.stewardOpts = append(e.stewardOpts, opts...)
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, x)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
