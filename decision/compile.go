package decision

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/liamcoop/decisions/hitpolicy"
)

// compiledTable is a table whose CEL expressions have all been turned into programs
type compiledTable struct {
	table   *Table
	config  hitpolicy.Config
	inputs  []compiledInput
	rules   []compiledRule
	hpRules []hitpolicy.Rule
	outputs []hitpolicy.OutputDefinition
}

type compiledInput struct {
	name string
	prog cel.Program
}

type compiledRule struct {
	id        string
	condition cel.Program // nil matches unconditionally
	outputs   []cel.Program
}

// compileTable validates t and compiles every expression against env.
// Inputs are declared as dynamic variables on top of env.
func compileTable(env *cel.Env, t *Table, costLimit uint64) (*compiledTable, error) {
	if err := ValidateTable(t); err != nil {
		return nil, err
	}
	cfg, err := t.HitPolicyConfig()
	if err != nil {
		return nil, err
	}

	ct := &compiledTable{table: t, config: cfg}

	for _, in := range t.Inputs {
		prog, err := compileExpression(env, in.Expression, costLimit)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Name, err)
		}
		ct.inputs = append(ct.inputs, compiledInput{name: in.Name, prog: prog})
	}

	ruleEnv := env
	if len(t.Inputs) > 0 {
		vars := make([]cel.EnvOption, 0, len(t.Inputs))
		for _, in := range t.Inputs {
			vars = append(vars, cel.Variable(in.Name, cel.DynType))
		}
		ruleEnv, err = env.Extend(vars...)
		if err != nil {
			return nil, fmt.Errorf("failed to declare inputs: %w", err)
		}
	}

	for i, out := range t.Outputs {
		def := hitpolicy.OutputDefinition{Name: out.Name, Ordinal: i}
		for _, literal := range out.AllowedValues {
			v, err := evalConstant(env, literal)
			if err != nil {
				return nil, fmt.Errorf("output %s: allowed value %q: %w", outputLabel(out), literal, err)
			}
			def.AllowedValues = append(def.AllowedValues, v)
		}
		ct.outputs = append(ct.outputs, def)
	}

	for i, r := range t.Rules {
		cr := compiledRule{id: r.ID}
		if r.Condition != "" {
			cr.condition, err = compileExpression(ruleEnv, r.Condition, costLimit)
			if err != nil {
				return nil, fmt.Errorf("rule %s condition: %w", ruleLabel(r, i), err)
			}
		}
		for j, expr := range r.Outputs {
			prog, err := compileExpression(ruleEnv, expr, costLimit)
			if err != nil {
				return nil, fmt.Errorf("rule %s output %s: %w", ruleLabel(r, i), outputLabel(t.Outputs[j]), err)
			}
			cr.outputs = append(cr.outputs, prog)
		}
		ct.rules = append(ct.rules, cr)
		ct.hpRules = append(ct.hpRules, hitpolicy.Rule{ID: r.ID, Ordinal: i})
	}

	return ct, nil
}

func compileExpression(env *cel.Env, expression string, costLimit uint64) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast,
		cel.CostLimit(costLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// evalConstant evaluates a literal that must not reference any variable
func evalConstant(env *cel.Env, literal string) (any, error) {
	ast, issues := env.Compile(literal)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	out, _, err := prog.Eval(map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("not a constant: %w", err)
	}
	return nativeValue(out), nil
}

func outputLabel(o Output) string {
	if o.Name == "" {
		return "(unnamed)"
	}
	return o.Name
}

func ruleLabel(r Rule, ordinal int) string {
	if r.ID == "" {
		return fmt.Sprintf("#%d", ordinal)
	}
	return r.ID
}

// nativeValue converts a CEL value into the Go values the hit policy core
// understands: int64, float64, string, bool, []any and map[string]any.
func nativeValue(v ref.Val) any {
	switch val := v.(type) {
	case types.Null:
		return nil
	case traits.Mapper:
		m := make(map[string]any)
		it := val.Iterator()
		for it.HasNext() == types.True {
			key := it.Next()
			m[fmt.Sprint(nativeValue(key))] = nativeValue(val.Get(key))
		}
		return m
	case traits.Lister:
		size, _ := val.Size().(types.Int)
		list := make([]any, 0, int(size))
		for i := types.Int(0); i < size; i++ {
			list = append(list, nativeValue(val.Get(i)))
		}
		return list
	}
	return v.Value()
}

// tableMatcher evaluates the CEL conditions and outputs of one table for one input
type tableMatcher struct {
	ctx        context.Context
	table      *compiledTable
	activation map[string]any
}

// newTableMatcher evaluates the table inputs and builds the activation shared by all rules
func newTableMatcher(ctx context.Context, ct *compiledTable, facts map[string]any) (*tableMatcher, error) {
	activation := make(map[string]any, len(facts)+len(ct.inputs)+1)
	for k, v := range facts {
		activation[k] = v
	}
	activation[factsVariable] = facts

	for _, in := range ct.inputs {
		out, _, err := in.prog.ContextEval(ctx, activation)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.name, err)
		}
		activation[in.name] = out
	}
	return &tableMatcher{ctx: ctx, table: ct, activation: activation}, nil
}

// Match treats a non-boolean condition result as no match
func (m *tableMatcher) Match(rule hitpolicy.Rule) (bool, error) {
	cr := m.table.rules[rule.Ordinal]
	if cr.condition == nil {
		return true, nil
	}
	out, _, err := cr.condition.ContextEval(m.ctx, m.activation)
	if err != nil {
		return false, fmt.Errorf("rule %s condition: %w", ruleLabel(m.table.table.Rules[rule.Ordinal], rule.Ordinal), err)
	}
	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

func (m *tableMatcher) EvaluateOutputs(rule hitpolicy.Rule) ([]hitpolicy.OutputEntry, error) {
	cr := m.table.rules[rule.Ordinal]
	entries := make([]hitpolicy.OutputEntry, len(cr.outputs))
	for i, prog := range cr.outputs {
		out, _, err := prog.ContextEval(m.ctx, m.activation)
		if err != nil {
			return nil, fmt.Errorf("rule %s output %s: %w",
				ruleLabel(m.table.table.Rules[rule.Ordinal], rule.Ordinal), outputLabel(m.table.table.Outputs[i]), err)
		}
		entries[i] = hitpolicy.OutputEntry{Name: m.table.outputs[i].Name, Value: nativeValue(out)}
	}
	return entries, nil
}
