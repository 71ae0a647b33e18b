package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/hitpolicy"
	"github.com/liamcoop/decisions/multitenantengine"
)

const maxBodyBytes = 1 << 20

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", TenantsLoaded: len(s.tenants.ListTenants())}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// Evaluation handler for POST /evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	switch {
	case req.TenantID == "":
		respondError(w, http.StatusBadRequest, "tenantId is required", nil)
		return
	case (req.TableID == "") == (req.TableKey == ""):
		respondError(w, http.StatusBadRequest, "exactly one of tableId and tableKey is required", nil)
		return
	case req.Facts == nil:
		respondError(w, http.StatusBadRequest, "facts are required", nil)
		return
	}

	engine, ok := s.tenantEngine(w, req.TenantID)
	if !ok {
		return
	}

	facts := decision.NormalizeFacts(req.Facts)
	if req.TableKey != "" {
		s.evaluate(r.Context(), w, func(ctx context.Context) (*decision.EvaluationResult, error) {
			return engine.EvaluateByKey(ctx, req.TableKey, facts)
		})
		return
	}
	s.evaluate(r.Context(), w, func(ctx context.Context) (*decision.EvaluationResult, error) {
		return engine.Evaluate(ctx, req.TableID, facts)
	})
}

// Evaluation handler for POST /tenants/{tenantId}/tables/{tableId}/evaluate.
// The body is the facts object itself.
func (s *Server) handleEvaluateTable(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.tenantEngine(w, chi.URLParam(r, "tenantId"))
	if !ok {
		return
	}

	facts, err := decision.DecodeFacts(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid facts", err)
		return
	}

	tableID := chi.URLParam(r, "tableId")
	s.evaluate(r.Context(), w, func(ctx context.Context) (*decision.EvaluationResult, error) {
		return engine.Evaluate(ctx, tableID, facts)
	})
}

func (s *Server) evaluate(ctx context.Context, w http.ResponseWriter, run func(context.Context) (*decision.EvaluationResult, error)) {
	start := time.Now()
	result, err := run(ctx)
	if err != nil {
		respondEvaluationError(w, err)
		return
	}

	if result.Result == nil {
		result.Result = hitpolicy.Result{}
	}
	if result.MatchedRules == nil {
		result.MatchedRules = []string{}
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		EvaluationResult: result,
		EvaluationTime:   time.Since(start).String(),
	})
}

// respondEvaluationError maps evaluation failures to HTTP statuses. Hit policy
// violations carry their DMN code; unsupported hit policies are client errors.
func respondEvaluationError(w http.ResponseWriter, err error) {
	var hpErr *hitpolicy.Error
	switch {
	case errors.As(err, &hpErr):
		status, msg := http.StatusUnprocessableEntity, "hit policy violation"
		if hpErr.IsConfiguration() {
			status, msg = http.StatusBadRequest, "hit policy not supported"
		}
		respondJSON(w, status, ErrorResponse{Error: msg, Code: string(hpErr.Code), Details: hpErr.Error()})
	case errors.Is(err, decision.ErrTableNotFound):
		respondError(w, http.StatusNotFound, "table not found", err)
	case errors.Is(err, decision.ErrInvalidTable):
		respondError(w, http.StatusUnprocessableEntity, "table does not compile", err)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "evaluation timed out", err)
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusServiceUnavailable, "evaluation canceled", err)
	default:
		respondError(w, http.StatusUnprocessableEntity, "evaluation failed", err)
	}
}

// List tenants handler
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), "SELECT id, name, created_at, updated_at FROM tenants ORDER BY created_at DESC")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
		return
	}
	defer rows.Close()

	tenants := []TenantResponse{}
	for rows.Next() {
		var t TenantResponse
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan tenant", err)
			return
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
		return
	}

	respondJSON(w, http.StatusOK, TenantsListResponse{Tenants: tenants})
}

// Create tenant handler. The tenant gets an engine right away; a schema in the
// request is saved as version 1.
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if len(req.Schema) > 0 {
		if err := multitenantengine.ValidateSchema(req.Schema); err != nil {
			respondError(w, http.StatusBadRequest, "invalid schema", err)
			return
		}
	}

	var t TenantResponse
	err := s.db.QueryRowContext(r.Context(), `
		INSERT INTO tenants (name, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING id, name, created_at, updated_at
	`, req.Name).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tenant", err)
		return
	}

	if len(req.Schema) > 0 {
		err = s.tenants.UpdateTenantSchema(t.ID, req.Schema)
	} else {
		err = s.tenants.CreateTenant(t.ID, multitenantengine.Schema{})
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to initialize tenant engine", err)
		return
	}

	respondJSON(w, http.StatusCreated, t)
}

// Update schema handler. Tables are recompiled against the new schema before it is saved.
func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	if _, err := s.tenants.Tenant(tenantID); err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}

	var req CreateSchemaRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.tenants.UpdateTenantSchema(tenantID, req.Definition); err != nil {
		if errors.Is(err, multitenantengine.ErrInvalidSchema) {
			respondError(w, http.StatusBadRequest, "invalid schema", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update schema", err)
		return
	}

	te, err := s.tenants.Tenant(tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reload tenant", err)
		return
	}
	active, err := te.Engine.ActiveTables()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tables", err)
		return
	}

	respondJSON(w, http.StatusOK, SchemaResponse{
		Version:          te.Version,
		Status:           "active",
		Definition:       te.Schema,
		TablesRecompiled: len(active),
	})
}

// Get schema handler
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	te, err := s.tenants.Tenant(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}
	if te.Version == 0 {
		respondError(w, http.StatusNotFound, "schema not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, SchemaResponse{
		Version:    te.Version,
		Status:     "active",
		Definition: te.Schema,
	})
}

// Create table handler. Accepts JSON, or YAML when the content type says so.
func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.tenantEngine(w, chi.URLParam(r, "tenantId"))
	if !ok {
		return
	}

	table, err := decodeTable(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid table definition", err)
		return
	}

	if err := engine.AddTable(table); err != nil {
		respondTableError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, table)
}

// List tables handler
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.tenantEngine(w, chi.URLParam(r, "tenantId"))
	if !ok {
		return
	}

	tables, err := engine.ListTables()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tables", err)
		return
	}
	if tables == nil {
		tables = []*decision.Table{}
	}

	respondJSON(w, http.StatusOK, TablesListResponse{Tables: tables})
}

// Get table handler
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.tenantEngine(w, chi.URLParam(r, "tenantId"))
	if !ok {
		return
	}

	table, err := engine.GetTable(chi.URLParam(r, "tableId"))
	if err != nil {
		respondTableError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, table)
}

// Update table handler. The id in the path wins over any id in the body.
func (s *Server) handleUpdateTable(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.tenantEngine(w, chi.URLParam(r, "tenantId"))
	if !ok {
		return
	}

	table, err := decodeTable(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid table definition", err)
		return
	}
	table.ID = chi.URLParam(r, "tableId")

	if err := engine.UpdateTable(table); err != nil {
		respondTableError(w, err)
		return
	}

	updated, err := engine.GetTable(table.ID)
	if err != nil {
		respondTableError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// Delete table handler
func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.tenantEngine(w, chi.URLParam(r, "tenantId"))
	if !ok {
		return
	}

	if err := engine.DeleteTable(chi.URLParam(r, "tableId")); err != nil {
		respondTableError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) tenantEngine(w http.ResponseWriter, tenantID string) (*decision.Engine, bool) {
	te, err := s.tenants.Tenant(tenantID)
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return nil, false
	}
	return te.Engine, true
}

// decodeTable reads a table definition. A missing "active" field means active.
func decodeTable(w http.ResponseWriter, r *http.Request) (*decision.Table, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return decision.ParseTable(body)
	}

	var req struct {
		decision.Table
		Active *bool `json:"active"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	table := req.Table
	table.Active = req.Active == nil || *req.Active
	return &table, nil
}

func respondTableError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, decision.ErrInvalidTable):
		respondError(w, http.StatusBadRequest, "invalid table definition", err)
	case errors.Is(err, decision.ErrTableNotFound):
		respondError(w, http.StatusNotFound, "table not found", err)
	case errors.Is(err, decision.ErrTableExists):
		respondError(w, http.StatusConflict, "table already exists", err)
	default:
		respondError(w, http.StatusInternalServerError, "table operation failed", err)
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
