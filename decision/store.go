package decision

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTableNotFound is returned when a table id or key is unknown
	ErrTableNotFound = errors.New("decision table not found")

	// ErrTableExists is returned when a table's id or non-empty key is taken
	ErrTableExists = errors.New("decision table already exists")

	// ErrInvalidTable wraps validation and compilation failures of a table definition
	ErrInvalidTable = errors.New("invalid decision table")
)

// TableStore manages decision table persistence and retrieval
type TableStore interface {
	// Add a new table
	Add(table *Table) error

	// Get a table by ID
	Get(id string) (*Table, error)

	// List all tables, active or not
	List() ([]*Table, error)

	// List all active tables
	ListActive() ([]*Table, error)

	// Update an existing table
	Update(table *Table) error

	// Delete a table
	Delete(id string) error
}

// InMemoryTableStore implements TableStore using an in-memory map
type InMemoryTableStore struct {
	tables map[string]*Table
	mu     sync.RWMutex
}

// NewInMemoryTableStore creates a new in-memory table store
func NewInMemoryTableStore() *InMemoryTableStore {
	return &InMemoryTableStore{
		tables: make(map[string]*Table),
	}
}

// Add sets both timestamps and rejects duplicate ids and keys
func (s *InMemoryTableStore) Add(table *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[table.ID]; exists {
		return fmt.Errorf("table %s: %w", table.ID, ErrTableExists)
	}
	if err := s.checkKey(table); err != nil {
		return err
	}

	now := time.Now()
	table.CreatedAt = now
	table.UpdatedAt = now
	s.tables[table.ID] = table
	return nil
}

// Get retrieves a table by ID
func (s *InMemoryTableStore) Get(id string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, exists := s.tables[id]
	if !exists {
		return nil, fmt.Errorf("table %s: %w", id, ErrTableNotFound)
	}
	return table, nil
}

// List returns every table ordered by creation time
func (s *InMemoryTableStore) List() ([]*Table, error) {
	return s.list(false), nil
}

// ListActive returns the active tables ordered by creation time
func (s *InMemoryTableStore) ListActive() ([]*Table, error) {
	return s.list(true), nil
}

func (s *InMemoryTableStore) list(activeOnly bool) []*Table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tables []*Table
	for _, t := range s.tables {
		if !activeOnly || t.Active {
			tables = append(tables, t)
		}
	}
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].CreatedAt.Equal(tables[j].CreatedAt) {
			return tables[i].ID < tables[j].ID
		}
		return tables[i].CreatedAt.Before(tables[j].CreatedAt)
	})
	return tables
}

// Update replaces a table, preserving its CreatedAt timestamp
func (s *InMemoryTableStore) Update(table *Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.tables[table.ID]
	if !exists {
		return fmt.Errorf("table %s: %w", table.ID, ErrTableNotFound)
	}
	if err := s.checkKey(table); err != nil {
		return err
	}

	table.CreatedAt = existing.CreatedAt
	table.UpdatedAt = time.Now()
	s.tables[table.ID] = table
	return nil
}

// checkKey rejects a non-empty key held by another table. Callers hold the lock.
func (s *InMemoryTableStore) checkKey(table *Table) error {
	if table.Key == "" {
		return nil
	}
	for id, t := range s.tables {
		if id != table.ID && t.Key == table.Key {
			return fmt.Errorf("table key %s: %w", table.Key, ErrTableExists)
		}
	}
	return nil
}

// Delete removes a table from the store
func (s *InMemoryTableStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[id]; !exists {
		return fmt.Errorf("table %s: %w", id, ErrTableNotFound)
	}

	delete(s.tables, id)
	return nil
}
