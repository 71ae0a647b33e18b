package main

import (
	"time"

	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/multitenantengine"
)

// API request and response models

// CreateTenantRequest is the body of POST /tenants
type CreateTenantRequest struct {
	Name string `json:"name"`
	// Schema is optional; without it tables reach facts through the "facts" map
	Schema multitenantengine.Schema `json:"schema,omitempty"`
}

// TenantResponse represents a tenant in API responses
type TenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TenantsListResponse is the body of GET /tenants
type TenantsListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
}

// CreateSchemaRequest is the body of POST /tenants/{tenantId}/schema
type CreateSchemaRequest struct {
	Definition multitenantengine.Schema `json:"definition"`
}

// SchemaResponse represents the active schema of a tenant
type SchemaResponse struct {
	Version          int                      `json:"version"`
	Status           string                   `json:"status"`
	Definition       multitenantengine.Schema `json:"definition"`
	TablesRecompiled int                      `json:"tablesRecompiled"`
}

// TablesListResponse is the body of GET /tenants/{tenantId}/tables
type TablesListResponse struct {
	Tables []*decision.Table `json:"tables"`
}

// EvaluateRequest is the body of POST /evaluate. Exactly one of TableID and TableKey is set.
type EvaluateRequest struct {
	TenantID string         `json:"tenantId"`
	TableID  string         `json:"tableId,omitempty"`
	TableKey string         `json:"tableKey,omitempty"`
	Facts    map[string]any `json:"facts"`
}

// EvaluateResponse wraps a decision result with the time spent evaluating it
type EvaluateResponse struct {
	*decision.EvaluationResult
	EvaluationTime string `json:"evaluationTime"`
}

// ErrorResponse is returned for every failed request. Code carries the DMN error code
// of hit policy violations.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string `json:"status"`
	TenantsLoaded int    `json:"tenantsLoaded"`
	Error         string `json:"error,omitempty"`
}
