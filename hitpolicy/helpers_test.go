package hitpolicy

import (
	"errors"
	"reflect"
	"testing"
)

var singleOutput = []OutputDefinition{{Name: "out", Ordinal: 0}}

var compoundOutputs = []OutputDefinition{
	{Name: "out1", Ordinal: 0},
	{Name: "out2", Ordinal: 1},
	{Name: "out3", Ordinal: 2},
}

// singleRules builds three single-output rules producing the given values
func singleRules(values ...any) []Rule {
	rules := make([]Rule, len(values))
	for i, v := range values {
		rules[i] = Rule{
			ID:      "rule" + string(rune('1'+i)),
			Ordinal: i,
			Outputs: []OutputEntry{{Name: "out", Value: v}},
		}
	}
	return rules
}

// compoundRules builds rules where every output column of rule i carries values[i]
func compoundRules(values ...any) []Rule {
	rules := make([]Rule, len(values))
	for i, v := range values {
		rules[i] = Rule{
			ID:      "rule" + string(rune('1'+i)),
			Ordinal: i,
			Outputs: []OutputEntry{
				{Name: "out1", Value: v},
				{Name: "out2", Value: v},
				{Name: "out3", Value: v},
			},
		}
	}
	return rules
}

// matching returns a predicate that matches rules by ordinal
func matching(flags ...bool) PredicateFunc {
	return func(r Rule) (bool, error) {
		return flags[r.Ordinal], nil
	}
}

func evaluate(t *testing.T, cfg Config, rules []Rule, outputs []OutputDefinition, flags ...bool) (Result, error) {
	t.Helper()
	ev := NewEvaluator(NewRegistry(&Options{PreviewFeaturesEnabled: true}))
	return ev.Evaluate(rules, cfg, matching(flags...), outputs)
}

func mustEvaluate(t *testing.T, cfg Config, rules []Rule, outputs []OutputDefinition, flags ...bool) Result {
	t.Helper()
	result, err := evaluate(t, cfg, rules, outputs, flags...)
	if err != nil {
		t.Fatalf("Evaluate(%s) failed: %v", cfg, err)
	}
	return result
}

func expectCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got nil", code)
	}
	var hpErr *Error
	if !errors.As(err, &hpErr) {
		t.Fatalf("expected *hitpolicy.Error, got %T: %v", err, err)
	}
	if hpErr.Code != code {
		t.Fatalf("error code = %s, want %s (%v)", hpErr.Code, code, err)
	}
	if got := err.Error()[:len(code)]; got != string(code) {
		t.Errorf("error message should start with %s, got %q", code, err.Error())
	}
}

func expectSingleEntry(t *testing.T, result Result, want any) {
	t.Helper()
	got, err := result.SingleEntry()
	if err != nil {
		t.Fatalf("SingleEntry() failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("single entry = %#v (%T), want %#v (%T)", got, got, want, want)
	}
}

func singleEntries(result Result) []any {
	return result.CollectEntries("out")
}
