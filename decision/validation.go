package decision

import (
	"fmt"
	"regexp"

	"github.com/liamcoop/decisions/hitpolicy"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateTable checks the structure of a table without compiling its expressions
func ValidateTable(t *Table) error {
	if t == nil {
		return fmt.Errorf("table cannot be nil")
	}

	cfg, err := t.HitPolicyConfig()
	if err != nil {
		return err
	}
	if cfg.Aggregator != hitpolicy.NoAggregator && cfg.HitPolicy != hitpolicy.Collect {
		return fmt.Errorf("aggregator %s requires hit policy %s, got %s", cfg.Aggregator, hitpolicy.Collect, cfg.HitPolicy)
	}

	inputs := make(map[string]bool, len(t.Inputs))
	for i, in := range t.Inputs {
		if !identifierPattern.MatchString(in.Name) {
			return fmt.Errorf("input %d: invalid name %q", i, in.Name)
		}
		if inputs[in.Name] {
			return fmt.Errorf("input %d: duplicate name %q", i, in.Name)
		}
		if in.Expression == "" {
			return fmt.Errorf("input %q: expression cannot be empty", in.Name)
		}
		inputs[in.Name] = true
	}

	if len(t.Outputs) == 0 {
		return fmt.Errorf("table must declare at least one output")
	}
	if len(t.Outputs) > 1 {
		outputs := make(map[string]bool, len(t.Outputs))
		for i, out := range t.Outputs {
			if out.Name == "" {
				return fmt.Errorf("output %d: name is required when the table has several outputs", i)
			}
			if outputs[out.Name] {
				return fmt.Errorf("output %d: duplicate name %q", i, out.Name)
			}
			outputs[out.Name] = true
		}
	}
	for i, out := range t.Outputs {
		if out.Name != "" && !identifierPattern.MatchString(out.Name) {
			return fmt.Errorf("output %d: invalid name %q", i, out.Name)
		}
	}

	ruleIDs := make(map[string]bool, len(t.Rules))
	for i, r := range t.Rules {
		if len(r.Outputs) != len(t.Outputs) {
			return fmt.Errorf("rule %d: has %d output entries, table declares %d outputs", i, len(r.Outputs), len(t.Outputs))
		}
		if r.ID == "" {
			continue
		}
		if ruleIDs[r.ID] {
			return fmt.Errorf("rule %d: duplicate id %q", i, r.ID)
		}
		ruleIDs[r.ID] = true
	}

	return nil
}
