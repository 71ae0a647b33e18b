package decision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/liamcoop/decisions/hitpolicy"
)

// factsVariable exposes the whole fact map to expressions of the default environment
const factsVariable = "facts"

// DefaultCostLimit bounds the runtime cost of a single CEL expression
const DefaultCostLimit uint64 = 1000000

// Config tunes an Engine
type Config struct {
	// PreviewFeaturesEnabled unlocks the PRIORITY and OUTPUT ORDER hit policies
	PreviewFeaturesEnabled bool

	Cache     CacheConfig
	CostLimit uint64
	Listeners []EvaluationListener
}

// DefaultConfig returns an engine configuration with preview features disabled
func DefaultConfig() Config {
	return Config{
		Cache:     DefaultCacheConfig(),
		CostLimit: DefaultCostLimit,
	}
}

// Engine compiles decision tables to CEL programs and evaluates them under their hit policy.
// Compiled tables are guarded by an RWMutex, so evaluations run concurrently with updates.
type Engine struct {
	env       *cel.Env
	store     TableStore
	cache     TablesCache
	evaluator *hitpolicy.Evaluator
	config    Config
	tables    map[string]*compiledTable // tableID -> compiled table
	mu        sync.RWMutex
}

// NewDefaultEnv returns the CEL environment used when no fact schema is known.
// Facts are reachable through the dynamic "facts" map.
func NewDefaultEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(factsVariable, cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine creates an engine over the default CEL environment
func NewEngine(store TableStore, cfg Config) (*Engine, error) {
	env, err := NewDefaultEnv()
	if err != nil {
		return nil, err
	}
	return NewEngineWithEnv(env, store, cfg)
}

// NewEngineWithEnv creates an engine with a custom CEL environment, such as
// one derived from a tenant's fact schema. All active tables are compiled.
func NewEngineWithEnv(env *cel.Env, store TableStore, cfg Config) (*Engine, error) {
	if cfg.CostLimit == 0 {
		cfg.CostLimit = DefaultCostLimit
	}
	en := &Engine{
		env:   env,
		store: store,
		cache: NewInMemoryTablesCache(cfg.Cache),
		evaluator: hitpolicy.NewEvaluator(hitpolicy.NewRegistry(&hitpolicy.Options{
			PreviewFeaturesEnabled: cfg.PreviewFeaturesEnabled,
		})),
		config: cfg,
		tables: make(map[string]*compiledTable),
	}

	if err := en.CompileAllTables(); err != nil {
		return nil, fmt.Errorf("failed to compile tables: %w", err)
	}

	return en, nil
}

// AddListener registers a listener notified after every evaluation
func (en *Engine) AddListener(l EvaluationListener) {
	en.mu.Lock()
	en.config.Listeners = append(en.config.Listeners, l)
	en.mu.Unlock()
}

// CompileTable validates and compiles t, replacing any compiled program under t.ID
func (en *Engine) CompileTable(t *Table) error {
	_, err := en.compile(t)
	return err
}

func (en *Engine) compile(t *Table) (*compiledTable, error) {
	ct, err := compileTable(en.env, t, en.config.CostLimit)
	if err != nil {
		return nil, err
	}

	en.mu.Lock()
	en.tables[t.ID] = ct
	en.mu.Unlock()

	return ct, nil
}

// CompileAllTables compiles all active tables from the store and primes the cache
func (en *Engine) CompileAllTables() error {
	tables, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, t := range tables {
		if err := en.CompileTable(t); err != nil {
			return fmt.Errorf("table %s: %w: %w", t.ID, ErrInvalidTable, err)
		}
	}

	en.cache.Set(tables)
	return nil
}

// AddTable assigns missing ids, compiles the table and stores it.
// The compiled program is installed only once the store has accepted the table.
func (en *Engine) AddTable(t *Table) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	} else if _, err := en.store.Get(t.ID); err == nil {
		return fmt.Errorf("table %s: %w", t.ID, ErrTableExists)
	}
	for i := range t.Rules {
		if t.Rules[i].ID == "" {
			t.Rules[i].ID = uuid.New().String()
		}
	}

	ct, err := compileTable(en.env, t, en.config.CostLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	if err := en.store.Add(t); err != nil {
		return err
	}

	en.mu.Lock()
	en.tables[t.ID] = ct
	en.mu.Unlock()

	en.invalidate()
	return nil
}

// UpdateTable validates the new definition before replacing the stored one
func (en *Engine) UpdateTable(t *Table) error {
	for i := range t.Rules {
		if t.Rules[i].ID == "" {
			t.Rules[i].ID = uuid.New().String()
		}
	}

	ct, err := compileTable(en.env, t, en.config.CostLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	if err := en.store.Update(t); err != nil {
		return err
	}

	en.mu.Lock()
	en.tables[t.ID] = ct
	en.mu.Unlock()

	en.invalidate()
	return nil
}

// DeleteTable removes a table from the store and drops its compiled program
func (en *Engine) DeleteTable(id string) error {
	if err := en.store.Delete(id); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.tables, id)
	en.mu.Unlock()

	en.invalidate()
	return nil
}

// GetTable returns the stored definition of a table
func (en *Engine) GetTable(id string) (*Table, error) {
	return en.store.Get(id)
}

// ListTables returns every stored table, active or not
func (en *Engine) ListTables() ([]*Table, error) {
	return en.store.List()
}

// ActiveTables returns the active tables, served from the cache when possible
func (en *Engine) ActiveTables() ([]*Table, error) {
	if tables := en.cache.Get(); tables != nil {
		return tables, nil
	}

	tables, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	en.cache.Set(tables)
	return tables, nil
}

// Evaluate runs a compiled table against facts. Hit policy violations are
// returned as *hitpolicy.Error without wrapping.
func (en *Engine) Evaluate(ctx context.Context, tableID string, facts map[string]any) (*EvaluationResult, error) {
	en.mu.RLock()
	ct, exists := en.tables[tableID]
	listeners := en.config.Listeners
	en.mu.RUnlock()

	// inactive tables are compiled on first use
	if !exists {
		t, err := en.store.Get(tableID)
		if err != nil {
			return nil, err
		}
		if ct, err = en.compile(t); err != nil {
			return nil, fmt.Errorf("failed to compile table %s: %w", tableID, err)
		}
	}

	start := time.Now()
	result, err := en.evaluate(ctx, ct, facts)
	elapsed := time.Since(start)

	event := EvaluationEvent{
		TableID:  ct.table.ID,
		TableKey: ct.table.Key,
		Config:   ct.config,
		Duration: elapsed,
		Err:      err,
	}
	if result != nil {
		result.Duration = elapsed
		event.Matched = result.MatchedRules
	}
	for _, l := range listeners {
		l.OnEvaluation(event)
	}

	return result, err
}

// EvaluateByKey evaluates the active table carrying the given key
func (en *Engine) EvaluateByKey(ctx context.Context, key string, facts map[string]any) (*EvaluationResult, error) {
	tables, err := en.ActiveTables()
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Key == key {
			return en.Evaluate(ctx, t.ID, facts)
		}
	}
	return nil, fmt.Errorf("table with key %s: %w", key, ErrTableNotFound)
}

func (en *Engine) evaluate(ctx context.Context, ct *compiledTable, facts map[string]any) (*EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matcher, err := newTableMatcher(ctx, ct, facts)
	if err != nil {
		return nil, err
	}

	ev, err := en.evaluator.EvaluateDetailed(ct.hpRules, ct.config, matcher, ct.outputs)
	if err != nil {
		var hpErr *hitpolicy.Error
		if errors.As(err, &hpErr) {
			return nil, hpErr
		}
		return nil, fmt.Errorf("table %s: %w", ct.table.ID, err)
	}

	matched := make([]string, len(ev.Matched))
	for i, r := range ev.Matched {
		matched[i] = r.ID
	}

	return &EvaluationResult{
		TableID:      ct.table.ID,
		TableKey:     ct.table.Key,
		HitPolicy:    ct.config,
		MatchedRules: matched,
		Result:       ev.Result,
	}, nil
}

// invalidate drops the active table list, optionally reloading it right away
func (en *Engine) invalidate() {
	en.cache.Invalidate()
	if !en.config.Cache.RefreshOnInvalidate {
		return
	}
	if tables, err := en.store.ListActive(); err == nil {
		en.cache.Set(tables)
	}
}
