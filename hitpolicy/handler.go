package hitpolicy

import "reflect"

// Handler resolves the matched rules of one evaluation into the decision result.
// Implementations are stateless and safe for concurrent use.
type Handler interface {
	// Config returns the hit policy and aggregator this handler implements
	Config() Config

	// Apply receives the matched rules in declaration order. On error no
	// partial result is returned.
	Apply(matched []Rule, outputs []OutputDefinition) (Result, error)
}

// passThrough returns every matched rule as a result row, in the given order
func passThrough(matched []Rule) Result {
	result := make(Result, len(matched))
	for i, rule := range matched {
		result[i] = resultOf(rule)
	}
	return result
}

// outputValue finds the value a rule produced for an output definition.
// A single unnamed output resolves to the rule's only entry.
func outputValue(rule Rule, output OutputDefinition, singleOutput bool) (any, error) {
	if output.Name != "" {
		for _, e := range rule.Outputs {
			if e.Name == output.Name {
				return e.Value, nil
			}
		}
		return nil, nil
	}
	if !singleOutput {
		return nil, errUnnamedCompoundOutput()
	}
	if len(rule.Outputs) == 0 {
		return nil, nil
	}
	return rule.Outputs[0].Value, nil
}

// sameOutputs reports whether two rules produced structurally equal values for every column
func sameOutputs(a, b Rule) bool {
	if len(a.Outputs) != len(b.Outputs) {
		return false
	}
	values := make(map[string]any, len(a.Outputs))
	for _, e := range a.Outputs {
		values[e.Name] = e.Value
	}
	for _, e := range b.Outputs {
		v, ok := values[e.Name]
		if !ok || !reflect.DeepEqual(v, e.Value) {
			return false
		}
	}
	return true
}
