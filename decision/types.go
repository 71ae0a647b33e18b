package decision

import (
	"time"

	"github.com/liamcoop/decisions/hitpolicy"
)

// Table is a DMN decision table whose expressions are written in CEL
type Table struct {
	ID         string    `json:"id" yaml:"id,omitempty"`
	Key        string    `json:"key" yaml:"key"`
	Name       string    `json:"name" yaml:"name"`
	HitPolicy  string    `json:"hitPolicy" yaml:"hitPolicy"`
	Aggregator string    `json:"aggregator,omitempty" yaml:"aggregator,omitempty"`
	Inputs     []Input   `json:"inputs" yaml:"inputs"`
	Outputs    []Output  `json:"outputs" yaml:"outputs"`
	Rules      []Rule    `json:"rules" yaml:"rules"`
	Active     bool      `json:"active" yaml:"-"`
	CreatedAt  time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time `json:"updatedAt" yaml:"-"`
}

// Input is evaluated once per evaluation; its value is bound under Name for
// every condition and output expression of the table.
type Input struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

// Output is one output column. AllowedValues are CEL literals in priority order.
type Output struct {
	Name          string   `json:"name" yaml:"name"`
	Label         string   `json:"label,omitempty" yaml:"label,omitempty"`
	AllowedValues []string `json:"allowedValues,omitempty" yaml:"allowedValues,omitempty"`
}

// Rule holds a CEL condition and one CEL expression per output column.
// An empty condition always matches.
type Rule struct {
	ID          string   `json:"id" yaml:"id,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Condition   string   `json:"condition" yaml:"condition"`
	Outputs     []string `json:"outputs" yaml:"outputs"`
}

// HitPolicyConfig parses the table's hit policy and aggregator
func (t *Table) HitPolicyConfig() (hitpolicy.Config, error) {
	hp, err := hitpolicy.ParseHitPolicy(t.HitPolicy)
	if err != nil {
		return hitpolicy.Config{}, err
	}
	agg, err := hitpolicy.ParseAggregator(t.Aggregator)
	if err != nil {
		return hitpolicy.Config{}, err
	}
	return hitpolicy.Config{HitPolicy: hp, Aggregator: agg}, nil
}

// EvaluationResult contains the outcome of evaluating one decision table
type EvaluationResult struct {
	TableID      string           `json:"tableId"`
	TableKey     string           `json:"tableKey"`
	HitPolicy    hitpolicy.Config `json:"hitPolicy"`
	MatchedRules []string         `json:"matchedRules"`
	Result       hitpolicy.Result `json:"result"`
	Duration     time.Duration    `json:"-"`
}
