package extension

import (
	"time"

	"github.com/xraph/steward"
)

// Config holds the Steward extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.steward" or "steward" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// CacheTTL bounds how long a resolved snapshot is cached. Zero disables
	// the cache.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// CacheSize caps the in-process cache when no Redis client is available.
	CacheSize int `json:"cache_size" mapstructure:"cache_size" yaml:"cache_size"`

	// MaxInheritanceDepth limits parent hops followed during resolution.
	MaxInheritanceDepth int `json:"max_inheritance_depth" mapstructure:"max_inheritance_depth" yaml:"max_inheritance_depth"`

	// DisableMetrics skips the Prometheus plugin.
	DisableMetrics bool `json:"disable_metrics" mapstructure:"disable_metrics" yaml:"disable_metrics"`

	// DisableDiagnostics skips recording resolution warnings to the store.
	DisableDiagnostics bool `json:"disable_diagnostics" mapstructure:"disable_diagnostics" yaml:"disable_diagnostics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:            30 * time.Second,
		CacheSize:           10_000,
		MaxInheritanceDepth: 10,
	}
}

func (c Config) engineConfig() steward.Config {
	cfg := steward.DefaultConfig()
	cfg.CacheTTL = c.CacheTTL
	if c.MaxInheritanceDepth > 0 {
		cfg.MaxInheritanceDepth = c.MaxInheritanceDepth
	}
	return cfg
}
