package rules

import "time"

// RulesCache holds the active rule set between mutations. Get hands out a
// private copy so an evaluation sweep never observes a concurrent mutation.
type RulesCache interface {
	// Get returns a copy of the cached rules, or nil on miss or expiry
	Get() []*Rule

	// Set replaces the cached rules
	Set(rules []*Rule)

	// Invalidate drops the cached rules; the next Get misses
	Invalidate()

	// IsValid reports whether Get would hit
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL bounds how long a rule set is served. Zero means until invalidated.
	TTL time.Duration
}

// DefaultCacheConfig invalidates only on mutation
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
