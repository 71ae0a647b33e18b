package decision

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key
const uniqueViolation = "23505"

// PostgresTableStore implements TableStore backed by PostgreSQL.
// Inputs, outputs and rules are kept together in a JSONB definition column.
type PostgresTableStore struct {
	db       *sql.DB
	tenantID string
}

// tableDefinition is the JSONB payload of a decision_tables row
type tableDefinition struct {
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
	Rules   []Rule   `json:"rules"`
}

// NewPostgresTableStore creates a table store scoped to one tenant
func NewPostgresTableStore(db *sql.DB, tenantID string) *PostgresTableStore {
	return &PostgresTableStore{
		db:       db,
		tenantID: tenantID,
	}
}

const selectTableColumns = `
	SELECT id, key, name, hit_policy, aggregator, definition, active, created_at, updated_at
	FROM decision_tables`

// Add inserts a new table; a duplicate id or key yields ErrTableExists
func (s *PostgresTableStore) Add(table *Table) error {
	definition, err := marshalDefinition(table)
	if err != nil {
		return err
	}

	now := time.Now()
	table.CreatedAt = now
	table.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO decision_tables
			(id, tenant_id, key, name, hit_policy, aggregator, definition, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, table.ID, s.tenantID, table.Key, table.Name, table.HitPolicy, table.Aggregator,
		definition, table.Active, table.CreatedAt, table.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("table %s: %w", table.ID, ErrTableExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert table: %w", err)
	}

	return nil
}

// Get retrieves a table by ID
func (s *PostgresTableStore) Get(id string) (*Table, error) {
	row := s.db.QueryRow(selectTableColumns+`
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)

	table, err := scanTable(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("table %s: %w", id, ErrTableNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}

	return table, nil
}

// List returns every table of the tenant
func (s *PostgresTableStore) List() ([]*Table, error) {
	return s.query(selectTableColumns+`
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`)
}

// ListActive returns the active tables of the tenant
func (s *PostgresTableStore) ListActive() ([]*Table, error) {
	return s.query(selectTableColumns+`
		WHERE tenant_id = $1 AND active = true
		ORDER BY created_at ASC, id ASC
	`)
}

func (s *PostgresTableStore) query(q string) ([]*Table, error) {
	rows, err := s.db.Query(q, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	return tables, nil
}

// Update replaces the definition of an existing table
func (s *PostgresTableStore) Update(table *Table) error {
	definition, err := marshalDefinition(table)
	if err != nil {
		return err
	}

	table.UpdatedAt = time.Now()

	var createdAt time.Time
	err = s.db.QueryRow(`
		UPDATE decision_tables
		SET key = $1, name = $2, hit_policy = $3, aggregator = $4, definition = $5, active = $6, updated_at = $7
		WHERE id = $8 AND tenant_id = $9
		RETURNING created_at
	`, table.Key, table.Name, table.HitPolicy, table.Aggregator, definition, table.Active,
		table.UpdatedAt, table.ID, s.tenantID).Scan(&createdAt)

	var pqErr *pq.Error
	switch {
	case err == sql.ErrNoRows:
		return fmt.Errorf("table %s: %w", table.ID, ErrTableNotFound)
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		return fmt.Errorf("table key %s: %w", table.Key, ErrTableExists)
	case err != nil:
		return fmt.Errorf("failed to update table: %w", err)
	}

	table.CreatedAt = createdAt
	return nil
}

// Delete removes a table from the database
func (s *PostgresTableStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM decision_tables
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("table %s: %w", id, ErrTableNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTable(row rowScanner) (*Table, error) {
	var (
		t          Table
		definition []byte
	)
	if err := row.Scan(&t.ID, &t.Key, &t.Name, &t.HitPolicy, &t.Aggregator, &definition,
		&t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	var def tableDefinition
	if err := json.Unmarshal(definition, &def); err != nil {
		return nil, fmt.Errorf("invalid definition for table %s: %w", t.ID, err)
	}
	t.Inputs, t.Outputs, t.Rules = def.Inputs, def.Outputs, def.Rules
	return &t, nil
}

func marshalDefinition(t *Table) ([]byte, error) {
	data, err := json.Marshal(tableDefinition{Inputs: t.Inputs, Outputs: t.Outputs, Rules: t.Rules})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal table definition: %w", err)
	}
	return data, nil
}
