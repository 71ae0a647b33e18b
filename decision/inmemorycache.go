package decision

import (
	"sync"
	"time"
)

// InMemoryTablesCache is an in-memory TablesCache, safe for concurrent access
type InMemoryTablesCache struct {
	tables   []*Table
	cachedAt time.Time
	config   CacheConfig
	valid    bool
	mu       sync.RWMutex
}

// NewInMemoryTablesCache creates an empty cache
func NewInMemoryTablesCache(config CacheConfig) *InMemoryTablesCache {
	return &InMemoryTablesCache{config: config}
}

func (c *InMemoryTablesCache) fresh() bool {
	if !c.valid {
		return false
	}
	return c.config.TTL <= 0 || time.Since(c.cachedAt) <= c.config.TTL
}

// Get returns a copy of the cached slice so callers cannot reorder it
func (c *InMemoryTablesCache) Get() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}
	tables := make([]*Table, len(c.tables))
	copy(tables, c.tables)
	return tables
}

// Set stores a copy of tables. An empty list is a valid cached value.
func (c *InMemoryTablesCache) Set(tables []*Table) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tables = make([]*Table, len(tables))
	copy(c.tables, tables)
	c.cachedAt = time.Now()
	c.valid = true
}

func (c *InMemoryTablesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.tables = nil
}

func (c *InMemoryTablesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.fresh()
}
