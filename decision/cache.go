package decision

import "time"

// TablesCache caches the list of active tables so evaluation by key does not hit the store
type TablesCache interface {
	// Get returns the cached tables, or nil on a miss or after expiry
	Get() []*Table

	// Set stores tables in the cache
	Set(tables []*Table)

	// Invalidate clears the cache, forcing a reload on the next Get
	Invalidate()

	// IsValid returns true if the cache holds fresh data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means no expiration (invalidation on mutation only).
	TTL time.Duration

	// RefreshOnInvalidate reloads the cache right after a mutation instead of
	// waiting for the next read
	RefreshOnInvalidate bool
}

// DefaultCacheConfig disables expiry; mutations invalidate the cache
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{}
}
