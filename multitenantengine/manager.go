package multitenantengine

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/decisions/decision"
)

var (
	// ErrTenantNotFound is returned when no engine is loaded for a tenant
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidSchema is returned when a schema fails validation or breaks an existing table
	ErrInvalidSchema = errors.New("invalid schema")
)

// Schema represents a tenant's fact schema.
// Maps object names to field definitions.
type Schema map[string]map[string]string

// Options configure every engine created by a Manager
type Options struct {
	// PreviewFeaturesEnabled unlocks the PRIORITY and OUTPUT ORDER hit policies
	PreviewFeaturesEnabled bool
	CostLimit              uint64
	Cache                  decision.CacheConfig
	Listeners              []decision.EvaluationListener
	Logger                 *slog.Logger
}

// TenantEngine wraps a decision.Engine with tenant-specific metadata
type TenantEngine struct {
	TenantID string
	Schema   Schema
	Version  int
	Engine   *decision.Engine
}

// Manager owns one decision engine per tenant
type Manager struct {
	engines map[string]*TenantEngine
	db      *sql.DB
	opts    Options
	log     *slog.Logger
	mu      sync.RWMutex
}

// NewManager creates a new manager instance
func NewManager(db *sql.DB, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		engines: make(map[string]*TenantEngine),
		db:      db,
		opts:    opts,
		log:     log,
	}
}

// NewEnvFromSchema creates a CEL environment with one dynamic variable per schema object.
// The "facts" map stays available so tables written for the default environment still compile.
func NewEnvFromSchema(schema Schema) (*cel.Env, error) {
	opts := []cel.EnvOption{
		cel.Variable("facts", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	}

	objects := make([]string, 0, len(schema))
	for objectName := range schema {
		objects = append(objects, objectName)
	}
	sort.Strings(objects)

	for _, objectName := range objects {
		if objectName == "facts" {
			continue
		}
		opts = append(opts, cel.Variable(objectName, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return env, nil
}

func (m *Manager) engineConfig() decision.Config {
	return decision.Config{
		PreviewFeaturesEnabled: m.opts.PreviewFeaturesEnabled,
		Cache:                  m.opts.Cache,
		CostLimit:              m.opts.CostLimit,
		Listeners:              m.opts.Listeners,
	}
}

func (m *Manager) buildEngine(tenantID string, schema Schema) (*decision.Engine, error) {
	env, err := NewEnvFromSchema(schema)
	if err != nil {
		return nil, err
	}

	store := decision.NewPostgresTableStore(m.db, tenantID)
	engine, err := decision.NewEngineWithEnv(env, store, m.engineConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return engine, nil
}

// LoadAllTenants initializes an engine for every tenant. Tenants without an active
// schema get version 0 and an empty schema, so only the facts map is declared.
func (m *Manager) LoadAllTenants() error {
	rows, err := m.db.Query(`
		SELECT t.id, COALESCE(s.version, 0), COALESCE(s.definition, '{}'::jsonb)
		FROM tenants t
		LEFT JOIN schemas s ON s.tenant_id = t.id AND s.active = true
		ORDER BY t.created_at, t.id
	`)
	if err != nil {
		return fmt.Errorf("failed to fetch tenants: %w", err)
	}
	defer rows.Close()

	type tenantRow struct {
		id      string
		version int
		schema  Schema
	}
	var loaded []tenantRow
	for rows.Next() {
		var row tenantRow
		var schemaJSON []byte
		if err := rows.Scan(&row.id, &row.version, &schemaJSON); err != nil {
			return fmt.Errorf("failed to scan tenant row: %w", err)
		}
		if err := json.Unmarshal(schemaJSON, &row.schema); err != nil {
			return fmt.Errorf("invalid schema for tenant %s: %w", row.id, err)
		}
		loaded = append(loaded, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tenant rows: %w", err)
	}

	for _, row := range loaded {
		engine, err := m.buildEngine(row.id, row.schema)
		if err != nil {
			return fmt.Errorf("failed to initialize tenant %s: %w", row.id, err)
		}
		m.mu.Lock()
		m.engines[row.id] = &TenantEngine{TenantID: row.id, Schema: row.schema, Version: row.version, Engine: engine}
		m.mu.Unlock()
	}

	m.log.Info("tenants loaded", "count", len(loaded))
	return nil
}

// CreateTenant creates a tenant engine for an existing tenant row with the given schema.
// The schema is not persisted; use UpdateTenantSchema for that.
func (m *Manager) CreateTenant(tenantID string, schema Schema) error {
	engine, err := m.buildEngine(tenantID, schema)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[tenantID] = &TenantEngine{
		TenantID: tenantID,
		Schema:   schema,
		Engine:   engine,
	}
	m.mu.Unlock()

	return nil
}

// GetEngine retrieves the engine for a specific tenant
func (m *Manager) GetEngine(tenantID string) (*decision.Engine, error) {
	te, err := m.Tenant(tenantID)
	if err != nil {
		return nil, err
	}
	return te.Engine, nil
}

// Tenant returns the loaded engine together with its schema
func (m *Manager) Tenant(tenantID string) (*TenantEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	te, exists := m.engines[tenantID]
	if !exists {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}
	return te, nil
}

// UpdateTenantSchema persists a new schema version, recompiles every table of the tenant
// against it and swaps the engine in. Evaluations keep using the old engine until the swap.
// A schema that breaks an existing table is rejected before anything is written.
func (m *Manager) UpdateTenantSchema(tenantID string, newSchema Schema) error {
	if err := ValidateSchema(newSchema); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	newEngine, err := m.buildEngine(tenantID, newSchema)
	if errors.Is(err, decision.ErrInvalidTable) {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	if err != nil {
		return err
	}

	version, err := m.saveSchema(tenantID, newSchema)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[tenantID] = &TenantEngine{
		TenantID: tenantID,
		Schema:   newSchema,
		Version:  version,
		Engine:   newEngine,
	}
	m.mu.Unlock()

	active, err := newEngine.ActiveTables()
	if err != nil {
		return fmt.Errorf("failed to load tables: %w", err)
	}
	m.log.Info("tenant schema updated", "tenant_id", tenantID, "version", version, "active_tables", len(active))

	return nil
}

// saveSchema deactivates the current schema and inserts the next version in one transaction
func (m *Manager) saveSchema(tenantID string, schema Schema) (int, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal schema: %w", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE schemas
		SET active = false
		WHERE tenant_id = $1
	`, tenantID); err != nil {
		return 0, fmt.Errorf("failed to deactivate old schemas: %w", err)
	}

	var version int
	err = tx.QueryRow(`
		INSERT INTO schemas (tenant_id, version, definition, active, created_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, true, NOW()
		FROM schemas
		WHERE tenant_id = $1
		RETURNING version
	`, tenantID, schemaJSON).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to save new schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit schema: %w", err)
	}
	return version, nil
}

// ListTenants returns all loaded tenant IDs in sorted order
func (m *Manager) ListTenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenants := make([]string, 0, len(m.engines))
	for tenantID := range m.engines {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants
}

// DeleteTenant removes a tenant's engine from the manager.
// The tenant's rows in the database are left untouched.
func (m *Manager) DeleteTenant(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[tenantID]; !exists {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}

	delete(m.engines, tenantID)
	return nil
}
