package hitpolicy

import (
	"reflect"
	"slices"
)

// rankedRule pairs a matched rule with the priority rank of each sortable output
type rankedRule struct {
	rule  Rule
	ranks []int
}

func compareRanks(a, b rankedRule) int {
	for i := range a.ranks {
		if a.ranks[i] != b.ranks[i] {
			if a.ranks[i] < b.ranks[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// sortableOutputs keeps the outputs that declare allowed values, in declaration order.
// Outputs without a list never influence ordering.
func sortableOutputs(outputs []OutputDefinition) []OutputDefinition {
	var sortable []OutputDefinition
	for _, o := range outputs {
		if len(o.AllowedValues) > 0 {
			sortable = append(sortable, o)
		}
	}
	return sortable
}

// rankOf returns the index of value in allowed. Numbers match across kinds.
func rankOf(value any, allowed []any) int {
	for i, candidate := range allowed {
		if equal, numeric := sameNumber(value, candidate); numeric {
			if equal {
				return i
			}
			continue
		}
		if reflect.DeepEqual(value, candidate) {
			return i
		}
	}
	return -1
}

// rank computes the rank tuple of every matched rule. Any value missing from
// its output's allowed values fails the whole evaluation.
func rank(matched []Rule, outputs []OutputDefinition) ([]rankedRule, error) {
	sortable := sortableOutputs(outputs)
	single := len(outputs) == 1
	ranked := make([]rankedRule, len(matched))
	for i, rule := range matched {
		ranks := make([]int, len(sortable))
		for j, output := range sortable {
			value, err := outputValue(rule, output, single)
			if err != nil {
				return nil, err
			}
			idx := rankOf(value, output.AllowedValues)
			if idx < 0 {
				return nil, errValueNotInOutputValues(output.Name, value, output.AllowedValues)
			}
			ranks[j] = idx
		}
		ranked[i] = rankedRule{rule: rule, ranks: ranks}
	}
	return ranked, nil
}

// priorityHandler returns the single matching rule whose outputs rank highest
type priorityHandler struct{}

func (priorityHandler) Config() Config { return Config{HitPolicy: Priority} }

func (priorityHandler) Apply(matched []Rule, outputs []OutputDefinition) (Result, error) {
	if len(sortableOutputs(outputs)) == 0 {
		return nil, errRequiresOutputValues(Priority)
	}
	if len(matched) == 0 {
		return Result{}, nil
	}
	ranked, err := rank(matched, outputs)
	if err != nil {
		return nil, err
	}
	best := ranked[0]
	for _, candidate := range ranked[1:] {
		// strictly better only, so ties keep the earlier declared rule
		if compareRanks(candidate, best) < 0 {
			best = candidate
		}
	}
	return Result{resultOf(best.rule)}, nil
}

// outputOrderHandler returns all matching rules ordered by output rank
type outputOrderHandler struct{}

func (outputOrderHandler) Config() Config { return Config{HitPolicy: OutputOrder} }

func (outputOrderHandler) Apply(matched []Rule, outputs []OutputDefinition) (Result, error) {
	if len(matched) == 0 {
		return nil, errRequiresMatchingRule(OutputOrder)
	}
	ranked, err := rank(matched, outputs)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(ranked, compareRanks)
	result := make(Result, len(ranked))
	for i, r := range ranked {
		result[i] = resultOf(r.rule)
	}
	return result, nil
}
