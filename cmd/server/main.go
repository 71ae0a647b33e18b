package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/internal/config"
	"github.com/liamcoop/decisions/internal/logger"
	"github.com/liamcoop/decisions/internal/metrics"
	"github.com/liamcoop/decisions/multitenantengine"
)

// tenantEngines is the part of the tenant manager the handlers use
type tenantEngines interface {
	Tenant(tenantID string) (*multitenantengine.TenantEngine, error)
	CreateTenant(tenantID string, schema multitenantengine.Schema) error
	UpdateTenantSchema(tenantID string, schema multitenantengine.Schema) error
	ListTenants() []string
}

type Server struct {
	db      *sql.DB
	tenants tenantEngines
	metrics *metrics.Collector
	cfg     config.Config
	router  *chi.Mux
}

// NewServer connects to the database and loads every tenant
func NewServer(cfg config.Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := NewServerWithDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewServerWithDB builds the tenant manager over an open database and loads every tenant
func NewServerWithDB(db *sql.DB, cfg config.Config) (*Server, error) {
	collector := metrics.NewCollector(cfg.MetricsNamespace)

	manager := multitenantengine.NewManager(db, multitenantengine.Options{
		PreviewFeaturesEnabled: cfg.PreviewFeaturesEnabled,
		CostLimit:              cfg.CostLimit,
		Cache: decision.CacheConfig{
			TTL:                 cfg.CacheTTL,
			RefreshOnInvalidate: cfg.CacheRefreshOnInvalidate,
		},
		Listeners: []decision.EvaluationListener{collector, evaluationLogger{}},
		Logger:    logger.Logger,
	})

	logger.Info("loading tenants from database")
	if err := manager.LoadAllTenants(); err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}
	logger.Info("tenants loaded", "tenants", manager.ListTenants(), "preview_features", cfg.PreviewFeaturesEnabled)

	return newServer(db, manager, collector, cfg), nil
}

func newServer(db *sql.DB, tenants tenantEngines, collector *metrics.Collector, cfg config.Config) *Server {
	s := &Server{
		db:      db,
		tenants: tenants,
		metrics: collector,
		cfg:     cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(slowRequestThreshold))
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/api/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Post("/schema", s.handleUpdateSchema)
			r.Put("/schema", s.handleUpdateSchema)
			r.Get("/schema", s.handleGetSchema)

			r.Post("/tables", s.handleCreateTable)
			r.Get("/tables", s.handleListTables)
			r.Get("/tables/{tableId}", s.handleGetTable)
			r.Put("/tables/{tableId}", s.handleUpdateTable)
			r.Delete("/tables/{tableId}", s.handleDeleteTable)
			r.Post("/tables/{tableId}/evaluate", s.handleEvaluateTable)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Setup(context.Background(), logger.Options{
		Level:       cfg.LogLevel,
		SampleRate:  cfg.ErrorSampleRate,
		OTELEnabled: cfg.OTELEnabled,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		logger.Warn("logger setup degraded", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown error: %v\n", err)
	}

	logger.Info("server stopped")
}
