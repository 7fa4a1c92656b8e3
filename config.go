package steward

import "time"

// Config holds configuration for the Steward engine.
type Config struct {
	// CacheTTL bounds how long a resolved snapshot is served from cache.
	// Invalidation on writes is the primary mechanism; TTL is a fallback.
	// Zero disables caching.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// MaxInheritanceDepth limits how many parent hops are followed from
	// an assigned role. Defaults to 10.
	MaxInheritanceDepth int `json:"max_inheritance_depth,omitempty"`

	// EnableInheritance merges parent role grants into their children.
	// Defaults to true.
	EnableInheritance *bool `json:"enable_inheritance,omitempty"`

	// InheritPrecedence lets inherited parent roles lower the reported
	// HighestPrecedence. By default only directly assigned roles do.
	InheritPrecedence bool `json:"inherit_precedence,omitempty"`

	// RequireRegisteredPrincipals fails resolution with ErrUnknownPrincipal
	// for principals missing from the registry. Defaults to true.
	RequireRegisteredPrincipals *bool `json:"require_registered_principals,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		CacheTTL:                    30 * time.Second,
		MaxInheritanceDepth:         10,
		EnableInheritance:           &t,
		RequireRegisteredPrincipals: &t,
	}
}

func (c Config) inheritanceEnabled() bool { return c.EnableInheritance == nil || *c.EnableInheritance }

func (c Config) registryRequired() bool {
	return c.RequireRegisteredPrincipals == nil || *c.RequireRegisteredPrincipals
}

func (c Config) maxDepth() int {
	if c.MaxInheritanceDepth <= 0 {
		return 10
	}
	return c.MaxInheritanceDepth
}
