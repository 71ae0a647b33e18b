package decision

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/liamcoop/decisions/hitpolicy"
)

func customerFacts(age int64, tier string) map[string]any {
	return map[string]any{
		"customer": map[string]any{
			"age":  age,
			"tier": tier,
		},
	}
}

// ageTable declares an "age" input and one rule per condition, each producing its literal output
func ageTable(id, hitPolicy, aggregator string, rules ...[2]string) *Table {
	t := &Table{
		ID:         id,
		Key:        id,
		Name:       "Age " + hitPolicy,
		HitPolicy:  hitPolicy,
		Aggregator: aggregator,
		Inputs:     []Input{{Name: "age", Expression: "facts.customer.age"}},
		Outputs:    []Output{{Name: "result"}},
		Active:     true,
	}
	for i, r := range rules {
		t.Rules = append(t.Rules, Rule{
			ID:        "r" + string(rune('1'+i)),
			Condition: r[0],
			Outputs:   []string{r[1]},
		})
	}
	return t
}

func newTestEngine(t *testing.T, cfg Config, tables ...*Table) *Engine {
	t.Helper()
	engine, err := NewEngine(NewInMemoryTableStore(), cfg)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	for _, table := range tables {
		if err := engine.AddTable(table); err != nil {
			t.Fatalf("AddTable(%s) failed: %v", table.ID, err)
		}
	}
	return engine
}

func singleValue(t *testing.T, res *EvaluationResult) any {
	t.Helper()
	v, err := res.Result.SingleEntry()
	if err != nil {
		t.Fatalf("SingleEntry() failed: %v", err)
	}
	return v
}

// TestNewEngine verifies an engine can be built over an empty store
func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(NewInMemoryTableStore(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	if engine == nil {
		t.Fatal("NewEngine() should return non-nil engine")
	}
}

// TestNewEngineCompilesExistingTables verifies active tables are compiled on construction
func TestNewEngineCompilesExistingTables(t *testing.T) {
	store := NewInMemoryTableStore()
	if err := store.Add(ageTable("adult", "FIRST", "", [2]string{"age >= 18", `"adult"`})); err != nil {
		t.Fatalf("Failed to add table: %v", err)
	}
	broken := ageTable("broken", "FIRST", "", [2]string{"age >=", `"x"`})
	broken.Active = false
	if err := store.Add(broken); err != nil {
		t.Fatalf("Failed to add table: %v", err)
	}

	engine, err := NewEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() should skip inactive tables: %v", err)
	}

	res, err := engine.Evaluate(context.Background(), "adult", customerFacts(30, "gold"))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if got := singleValue(t, res); got != "adult" {
		t.Errorf("result = %v, want adult", got)
	}

	if _, err := engine.Evaluate(context.Background(), "broken", customerFacts(30, "gold")); err == nil {
		t.Error("Evaluate() of an inactive table with a broken condition should fail to compile")
	}
}

// TestNewEngineRejectsBrokenActiveTable verifies construction fails on compile errors
func TestNewEngineRejectsBrokenActiveTable(t *testing.T) {
	store := NewInMemoryTableStore()
	if err := store.Add(ageTable("broken", "FIRST", "", [2]string{"age >=", `"x"`})); err != nil {
		t.Fatalf("Failed to add table: %v", err)
	}
	if _, err := NewEngine(store, DefaultConfig()); err == nil {
		t.Error("NewEngine() should fail when an active table does not compile")
	}
}

// TestEngineHitPolicies runs each supported hit policy end to end over CEL tables
func TestEngineHitPolicies(t *testing.T) {
	rules := [][2]string{
		{"age >= 18", "10"},
		{"age >= 21", "20"},
		{"age >= 65", "30"},
		{"age < 18", "5"},
	}

	testCases := []struct {
		hitPolicy  string
		aggregator string
		want       any
	}{
		{"FIRST", "", int64(10)},
		{"COLLECT", "SUM", int64(30)},
		{"COLLECT", "MIN", int64(10)},
		{"COLLECT", "MAX", int64(20)},
		{"COLLECT", "COUNT", int64(2)},
	}

	for _, tc := range testCases {
		t.Run(tc.hitPolicy+" "+tc.aggregator, func(t *testing.T) {
			engine := newTestEngine(t, DefaultConfig(), ageTable("t", tc.hitPolicy, tc.aggregator, rules...))
			res, err := engine.Evaluate(context.Background(), "t", customerFacts(40, "gold"))
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if got := singleValue(t, res); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("result = %#v, want %#v", got, tc.want)
			}
			if !reflect.DeepEqual(res.MatchedRules, []string{"r1", "r2"}) {
				t.Errorf("MatchedRules = %v, want [r1 r2]", res.MatchedRules)
			}
		})
	}
}

// TestEngineRuleOrderAndCollect verifies multi-row results keep declaration order
func TestEngineRuleOrderAndCollect(t *testing.T) {
	rules := [][2]string{{"age >= 18", `"adult"`}, {"", `"customer"`}, {"age >= 65", `"senior"`}}
	for _, hp := range []string{"RULE ORDER", "COLLECT"} {
		engine := newTestEngine(t, DefaultConfig(), ageTable("t", hp, "", rules...))
		res, err := engine.Evaluate(context.Background(), "t", customerFacts(70, "gold"))
		if err != nil {
			t.Fatalf("%s: Evaluate() failed: %v", hp, err)
		}
		got := res.Result.CollectEntries("result")
		want := []any{"adult", "customer", "senior"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: result = %v, want %v", hp, got, want)
		}
	}
}

// TestEngineUniqueViolationIsUnwrapped verifies hit policy errors keep their code first
func TestEngineUniqueViolationIsUnwrapped(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(),
		ageTable("t", "UNIQUE", "", [2]string{"age >= 18", `"a"`}, [2]string{"age >= 21", `"b"`}))

	_, err := engine.Evaluate(context.Background(), "t", customerFacts(30, "gold"))
	if !hitpolicy.IsCode(err, hitpolicy.CodeUniqueViolation) {
		t.Fatalf("expected DMN-03001, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "DMN-03001") {
		t.Errorf("message should start with the code: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "'r1', 'r2'") {
		t.Errorf("message should list matching rules: %q", err.Error())
	}

	res, err := engine.Evaluate(context.Background(), "t", customerFacts(19, "gold"))
	if err != nil {
		t.Fatalf("single match should succeed: %v", err)
	}
	if got := singleValue(t, res); got != "a" {
		t.Errorf("result = %v, want a", got)
	}
}

// TestEngineAnyPolicy verifies equal outputs pass and differing outputs conflict
func TestEngineAnyPolicy(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(),
		ageTable("same", "ANY", "", [2]string{"age >= 18", `"ok"`}, [2]string{"age >= 21", `"ok"`}),
		ageTable("diff", "ANY", "", [2]string{"age >= 18", `"ok"`}, [2]string{"age >= 21", `"no"`}))

	res, err := engine.Evaluate(context.Background(), "same", customerFacts(30, ""))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if got := singleValue(t, res); got != "ok" {
		t.Errorf("result = %v, want ok", got)
	}

	_, err = engine.Evaluate(context.Background(), "diff", customerFacts(30, ""))
	if !hitpolicy.IsCode(err, hitpolicy.CodeAnyConflict) {
		t.Errorf("expected DMN-03002, got %v", err)
	}
}

// TestEnginePreviewPolicies verifies PRIORITY is gated and ranks by allowed values
func TestEnginePreviewPolicies(t *testing.T) {
	table := func() *Table {
		tbl := ageTable("p", "PRIORITY", "",
			[2]string{"age >= 18", `"low"`},
			[2]string{"age >= 65", `"high"`},
			[2]string{"age >= 30", `"medium"`})
		tbl.Outputs[0].AllowedValues = []string{`"high"`, `"medium"`, `"low"`}
		return tbl
	}

	disabled := newTestEngine(t, DefaultConfig(), table())
	_, err := disabled.Evaluate(context.Background(), "p", customerFacts(70, ""))
	if !hitpolicy.IsCode(err, hitpolicy.CodeUnsupportedHitPolicy) {
		t.Fatalf("expected DMN-02004 with preview disabled, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.PreviewFeaturesEnabled = true
	enabled := newTestEngine(t, cfg, table())
	res, err := enabled.Evaluate(context.Background(), "p", customerFacts(70, ""))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if got := singleValue(t, res); got != "high" {
		t.Errorf("PRIORITY = %v, want high", got)
	}

	order := ageTable("o", "OUTPUT ORDER", "",
		[2]string{"age >= 18", "3"},
		[2]string{"age >= 65", "1"},
		[2]string{"age >= 30", "2"})
	order.Outputs[0].AllowedValues = []string{"1", "2", "3"}
	if err := enabled.AddTable(order); err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}
	res, err = enabled.Evaluate(context.Background(), "o", customerFacts(70, ""))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if got := res.Result.CollectEntries("result"); !reflect.DeepEqual(got, []any{int64(1), int64(2), int64(3)}) {
		t.Errorf("OUTPUT ORDER = %v", got)
	}

	_, err = enabled.Evaluate(context.Background(), "o", customerFacts(10, ""))
	if !hitpolicy.IsCode(err, hitpolicy.CodeRequiresMatchingRule) {
		t.Errorf("expected DMN-03007, got %v", err)
	}
}

// TestEngineCompoundOutputs verifies rows carry every named output in column order
func TestEngineCompoundOutputs(t *testing.T) {
	table := &Table{
		ID:        "compound",
		HitPolicy: "COLLECT",
		Inputs: []Input{
			{Name: "age", Expression: "facts.customer.age"},
			{Name: "tier", Expression: "facts.customer.tier"},
		},
		Outputs: []Output{{Name: "discount"}, {Name: "reason"}},
		Rules: []Rule{
			{ID: "gold", Condition: `tier == "gold"`, Outputs: []string{"0.1", `"gold tier"`}},
			{ID: "senior", Condition: "age >= 65", Outputs: []string{"0.05", `"senior " + string(age)`}},
		},
		Active: true,
	}
	engine := newTestEngine(t, DefaultConfig(), table)

	res, err := engine.Evaluate(context.Background(), "compound", customerFacts(70, "gold"))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	want := hitpolicy.Result{
		{{Name: "discount", Value: 0.1}, {Name: "reason", Value: "gold tier"}},
		{{Name: "discount", Value: 0.05}, {Name: "reason", Value: "senior 70"}},
	}
	if !reflect.DeepEqual(res.Result, want) {
		t.Errorf("result = %v, want %v", res.Result, want)
	}

	table.Aggregator = "SUM"
	if err := engine.UpdateTable(table); err != nil {
		t.Fatalf("UpdateTable() failed: %v", err)
	}
	_, err = engine.Evaluate(context.Background(), "compound", customerFacts(70, "gold"))
	if !hitpolicy.IsCode(err, hitpolicy.CodeAggregationOnCompoundOutput) {
		t.Errorf("expected DMN-03003, got %v", err)
	}
}

// TestEngineNotComparableAggregation verifies string outputs cannot be summed
func TestEngineNotComparableAggregation(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(),
		ageTable("t", "COLLECT", "SUM", [2]string{"", "1"}, [2]string{"", `"two"`}))
	_, err := engine.Evaluate(context.Background(), "t", customerFacts(1, ""))
	if !hitpolicy.IsCode(err, hitpolicy.CodeNotComparable) {
		t.Errorf("expected DMN-03004, got %v", err)
	}
}

// TestEngineMixedDomainSum verifies an int and a double sum to a double
func TestEngineMixedDomainSum(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(),
		ageTable("t", "COLLECT", "SUM", [2]string{"", "age"}, [2]string{"", "0.5"}))
	res, err := engine.Evaluate(context.Background(), "t", customerFacts(40, ""))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if got := singleValue(t, res); got != 40.5 {
		t.Errorf("SUM = %#v, want 40.5", got)
	}
}

// TestEngineNonBooleanCondition verifies a non-boolean condition never matches
func TestEngineNonBooleanCondition(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(),
		ageTable("t", "FIRST", "", [2]string{"age", `"numeric"`}, [2]string{"", `"fallback"`}))
	res, err := engine.Evaluate(context.Background(), "t", customerFacts(40, ""))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if got := singleValue(t, res); got != "fallback" {
		t.Errorf("result = %v, want fallback", got)
	}
}

// TestEngineEvaluationErrors verifies CEL runtime errors abort and are not hit policy errors
func TestEngineEvaluationErrors(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(),
		ageTable("t", "FIRST", "", [2]string{"facts.customer.missing > 1", `"x"`}))

	_, err := engine.Evaluate(context.Background(), "t", customerFacts(40, ""))
	if err == nil {
		t.Fatal("Evaluate() should fail on a missing fact")
	}
	if _, ok := hitpolicy.CodeOf(err); ok {
		t.Errorf("runtime error should not carry a hit policy code: %v", err)
	}

	_, err = engine.Evaluate(context.Background(), "t", map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "input age") {
		t.Errorf("input evaluation error expected, got %v", err)
	}
}

// TestEngineEvaluateCanceledContext verifies a canceled context stops evaluation
func TestEngineEvaluateCanceledContext(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(), ageTable("t", "FIRST", "", [2]string{"", `"x"`}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Evaluate(ctx, "t", customerFacts(1, "")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// TestEngineAddTableAssignsIDs verifies missing table and rule ids are generated
func TestEngineAddTableAssignsIDs(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())
	table := ageTable("", "FIRST", "", [2]string{"", `"x"`})
	table.Rules[0].ID = ""

	if err := engine.AddTable(table); err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}
	if len(table.ID) != 36 || len(table.Rules[0].ID) != 36 {
		t.Errorf("expected uuid ids, got table %q rule %q", table.ID, table.Rules[0].ID)
	}
	if _, err := engine.GetTable(table.ID); err != nil {
		t.Errorf("GetTable() failed: %v", err)
	}
}

// TestEngineAddTableValidation verifies invalid tables are rejected before storing
func TestEngineAddTableValidation(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig())

	testCases := []struct {
		name  string
		table *Table
	}{
		{"syntax error", ageTable("a", "FIRST", "", [2]string{"age >=", `"x"`})},
		{"bad output", ageTable("b", "FIRST", "", [2]string{"", `"x" +`})},
		{"unknown variable", ageTable("c", "FIRST", "", [2]string{"height > 2", `"x"`})},
		{"unknown hit policy", ageTable("d", "SOMETIMES", "", [2]string{"", `"x"`})},
		{"aggregator without collect", ageTable("e", "FIRST", "SUM", [2]string{"", "1"})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := engine.AddTable(tc.table); !errors.Is(err, ErrInvalidTable) {
				t.Fatalf("AddTable() error = %v, want ErrInvalidTable", err)
			}
			if _, err := engine.GetTable(tc.table.ID); !errors.Is(err, ErrTableNotFound) {
				t.Errorf("rejected table should not be stored, got %v", err)
			}
		})
	}

	bad := ageTable("f", "PRIORITY", "", [2]string{"", `"x"`})
	bad.Outputs[0].AllowedValues = []string{"age"}
	if err := engine.AddTable(bad); err == nil {
		t.Error("allowed values must be constants")
	}
}

// TestEngineAddTableAtomicity verifies a duplicate leaves the original program in place
func TestEngineAddTableAtomicity(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(), ageTable("existing", "FIRST", "", [2]string{"", `"original"`}))

	err := engine.AddTable(ageTable("existing", "FIRST", "", [2]string{"", `"duplicate"`}))
	if !errors.Is(err, ErrTableExists) {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}

	res, err := engine.Evaluate(context.Background(), "existing", customerFacts(1, ""))
	if err != nil {
		t.Fatalf("Original table should still be evaluatable: %v", err)
	}
	if got := singleValue(t, res); got != "original" {
		t.Errorf("result = %v, want original", got)
	}
}

// staleStore reports every id as unknown, as a store does when a concurrent
// AddTable claims the id between the existence check and Add
type staleStore struct {
	*InMemoryTableStore
}

func (s staleStore) Get(id string) (*Table, error) {
	return nil, fmt.Errorf("table %s: %w", id, ErrTableNotFound)
}

// TestEngineAddTableRejectedByStore verifies a table the store rejects never replaces the live program
func TestEngineAddTableRejectedByStore(t *testing.T) {
	store := staleStore{NewInMemoryTableStore()}
	engine, err := NewEngine(store, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	if err := engine.AddTable(ageTable("existing", "FIRST", "", [2]string{"", `"original"`})); err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}

	err = engine.AddTable(ageTable("existing", "FIRST", "", [2]string{"", `"duplicate"`}))
	if !errors.Is(err, ErrTableExists) {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}

	res, err := engine.Evaluate(context.Background(), "existing", customerFacts(1, ""))
	if err != nil {
		t.Fatalf("Original table should still be evaluatable: %v", err)
	}
	if got := singleValue(t, res); got != "original" {
		t.Errorf("result = %v, want original", got)
	}
}

// TestEngineAddTableDuplicateKey verifies a second table cannot take an existing key
func TestEngineAddTableDuplicateKey(t *testing.T) {
	first := ageTable("first", "FIRST", "", [2]string{"", `"first"`})
	first.Key = "k"
	engine := newTestEngine(t, DefaultConfig(), first)

	second := ageTable("second", "FIRST", "", [2]string{"", `"second"`})
	second.Key = "k"
	if err := engine.AddTable(second); !errors.Is(err, ErrTableExists) {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}
	if _, err := engine.GetTable("second"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("rejected table should not be stored, got %v", err)
	}

	res, err := engine.EvaluateByKey(context.Background(), "k", customerFacts(1, ""))
	if err != nil {
		t.Fatalf("EvaluateByKey() failed: %v", err)
	}
	if got := singleValue(t, res); got != "first" {
		t.Errorf("result = %v, want first", got)
	}
}

// TestEngineUpdateTable verifies updates recompile and invalid updates change nothing
func TestEngineUpdateTable(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(), ageTable("t", "FIRST", "", [2]string{"", `"v1"`}))

	if err := engine.UpdateTable(ageTable("t", "FIRST", "", [2]string{"age >", `"broken"`})); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("UpdateTable() with invalid condition error = %v, want ErrInvalidTable", err)
	}
	res, _ := engine.Evaluate(context.Background(), "t", customerFacts(1, ""))
	if got := singleValue(t, res); got != "v1" {
		t.Errorf("after failed update result = %v, want v1", got)
	}

	if err := engine.UpdateTable(ageTable("t", "FIRST", "", [2]string{"", `"v2"`})); err != nil {
		t.Fatalf("UpdateTable() failed: %v", err)
	}
	res, _ = engine.Evaluate(context.Background(), "t", customerFacts(1, ""))
	if got := singleValue(t, res); got != "v2" {
		t.Errorf("after update result = %v, want v2", got)
	}

	if err := engine.UpdateTable(ageTable("missing", "FIRST", "", [2]string{"", `"x"`})); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
}

// TestEngineDeleteTable verifies deleted tables can no longer be evaluated
func TestEngineDeleteTable(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(), ageTable("t", "FIRST", "", [2]string{"", `"x"`}))

	if err := engine.DeleteTable("t"); err != nil {
		t.Fatalf("DeleteTable() failed: %v", err)
	}
	if _, err := engine.Evaluate(context.Background(), "t", customerFacts(1, "")); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}
	if err := engine.DeleteTable("t"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("second delete should fail with ErrTableNotFound, got %v", err)
	}
}

// TestEngineEvaluateByKey verifies lookup by key through the active table cache
func TestEngineEvaluateByKey(t *testing.T) {
	table := ageTable("id-1", "FIRST", "", [2]string{"", `"keyed"`})
	table.Key = "discount"
	engine := newTestEngine(t, DefaultConfig(), table)

	res, err := engine.EvaluateByKey(context.Background(), "discount", customerFacts(1, ""))
	if err != nil {
		t.Fatalf("EvaluateByKey() failed: %v", err)
	}
	if res.TableID != "id-1" || res.TableKey != "discount" {
		t.Errorf("result identifies %s/%s", res.TableID, res.TableKey)
	}

	if _, err := engine.EvaluateByKey(context.Background(), "unknown", nil); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("expected ErrTableNotFound, got %v", err)
	}

	tables, err := engine.ActiveTables()
	if err != nil || len(tables) != 1 {
		t.Errorf("ActiveTables() = %d tables, %v", len(tables), err)
	}
}

// TestEngineListeners verifies every evaluation is reported, including failures
func TestEngineListeners(t *testing.T) {
	var (
		mu     sync.Mutex
		events []EvaluationEvent
	)
	cfg := DefaultConfig()
	cfg.Listeners = []EvaluationListener{ListenerFunc(func(e EvaluationEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})}

	engine := newTestEngine(t, cfg,
		ageTable("t", "UNIQUE", "", [2]string{"age >= 18", `"a"`}, [2]string{"age >= 21", `"b"`}))

	if _, err := engine.Evaluate(context.Background(), "t", customerFacts(19, "")); err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	_, _ = engine.Evaluate(context.Background(), "t", customerFacts(30, ""))

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Err != nil || !reflect.DeepEqual(events[0].Matched, []string{"r1"}) {
		t.Errorf("first event = %+v", events[0])
	}
	if !hitpolicy.IsCode(events[1].Err, hitpolicy.CodeUniqueViolation) {
		t.Errorf("second event should carry DMN-03001, got %v", events[1].Err)
	}
	if events[1].Config.HitPolicy != hitpolicy.Unique {
		t.Errorf("event config = %s", events[1].Config)
	}
}

// TestEngineConcurrentEvaluate verifies evaluations run safely alongside updates
func TestEngineConcurrentEvaluate(t *testing.T) {
	engine := newTestEngine(t, DefaultConfig(),
		ageTable("sum", "COLLECT", "SUM", [2]string{"age >= 18", "10"}, [2]string{"age >= 21", "20"}))

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for range 50 {
				res, err := engine.Evaluate(context.Background(), "sum", customerFacts(30, ""))
				if err != nil {
					t.Errorf("Concurrent Evaluate() failed: %v", err)
					return
				}
				if v, _ := res.Result.SingleEntry(); v != int64(30) {
					t.Errorf("SUM = %v, want 30", v)
					return
				}
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			table := ageTable("sum", "COLLECT", "SUM", [2]string{"age >= 18", "10"}, [2]string{"age >= 21", "20"})
			if err := engine.UpdateTable(table); err != nil {
				t.Errorf("Concurrent UpdateTable() failed: %v", err)
				return
			}
		}
	}()

	wg.Wait()
}
