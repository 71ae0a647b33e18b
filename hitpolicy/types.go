package hitpolicy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// HitPolicy is the declared strategy for resolving several matching rules into one result
type HitPolicy string

const (
	Unique      HitPolicy = "UNIQUE"
	Any         HitPolicy = "ANY"
	First       HitPolicy = "FIRST"
	Priority    HitPolicy = "PRIORITY"
	RuleOrder   HitPolicy = "RULE ORDER"
	OutputOrder HitPolicy = "OUTPUT ORDER"
	Collect     HitPolicy = "COLLECT"
)

// HitPolicies lists every hit policy in DMN declaration order
var HitPolicies = []HitPolicy{Unique, Any, First, Priority, RuleOrder, OutputOrder, Collect}

// Aggregator summarizes the outputs of a COLLECT table
type Aggregator string

const (
	NoAggregator Aggregator = ""
	Sum          Aggregator = "SUM"
	Min          Aggregator = "MIN"
	Max          Aggregator = "MAX"
	Count        Aggregator = "COUNT"
)

// Aggregators lists the aggregators usable with COLLECT, including none
var Aggregators = []Aggregator{NoAggregator, Sum, Min, Max, Count}

// ParseHitPolicy accepts the DMN spellings ("RULE ORDER", "rule_order", ...).
// An empty string yields UNIQUE, the DMN default.
func ParseHitPolicy(s string) (HitPolicy, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", " ")
	if norm == "" {
		return Unique, nil
	}
	for _, hp := range HitPolicies {
		if string(hp) == norm {
			return hp, nil
		}
	}
	return "", fmt.Errorf("unknown hit policy %q", s)
}

// ParseAggregator accepts SUM, MIN, MAX, COUNT in any case. An empty string means none.
func ParseAggregator(s string) (Aggregator, error) {
	norm := Aggregator(strings.ToUpper(strings.TrimSpace(s)))
	for _, agg := range Aggregators {
		if agg == norm {
			return agg, nil
		}
	}
	return "", fmt.Errorf("unknown aggregator %q", s)
}

// IsPreview reports whether the hit policy is gated behind preview features
func (hp HitPolicy) IsPreview() bool {
	return hp == Priority || hp == OutputOrder
}

// Config selects a handler: a hit policy plus an optional aggregator (COLLECT only)
type Config struct {
	HitPolicy  HitPolicy  `json:"hitPolicy"`
	Aggregator Aggregator `json:"aggregator,omitempty"`
}

func (c Config) String() string {
	if c.Aggregator == NoAggregator {
		return string(c.HitPolicy)
	}
	return string(c.HitPolicy) + " " + string(c.Aggregator)
}

// OutputEntry is one named output value of a rule or a result row
type OutputEntry struct {
	Name  string
	Value any
}

// Rule is a compiled decision rule. Ordinal is its declaration position.
type Rule struct {
	ID      string
	Ordinal int
	Outputs []OutputEntry
}

func (r Rule) identifier() string {
	if r.ID != "" {
		return r.ID
	}
	return fmt.Sprintf("#%d", r.Ordinal)
}

// OutputDefinition describes one output column. AllowedValues is ordered; an
// index into it is the value's priority rank.
type OutputDefinition struct {
	Name          string
	Ordinal       int
	AllowedValues []any
}

// RuleResult is one row of a decision result, in output column order
type RuleResult []OutputEntry

// Get returns the value of the named output
func (rr RuleResult) Get(name string) (any, bool) {
	for _, e := range rr {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// SingleEntry returns the only value of a single-output row
func (rr RuleResult) SingleEntry() (any, error) {
	if len(rr) != 1 {
		return nil, fmt.Errorf("rule result has %d entries, expected exactly one", len(rr))
	}
	return rr[0].Value, nil
}

// Map returns the row as a map; column order is lost
func (rr RuleResult) Map() map[string]any {
	m := make(map[string]any, len(rr))
	for _, e := range rr {
		m[e.Name] = e.Value
	}
	return m
}

// MarshalJSON encodes the row as an object with keys in column order
func (rr RuleResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range rr {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", e.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is the ordered outcome of a decision table evaluation
type Result []RuleResult

// SingleResult returns the only row, or nil when the result is empty
func (r Result) SingleResult() (RuleResult, error) {
	switch len(r) {
	case 0:
		return nil, nil
	case 1:
		return r[0], nil
	default:
		return nil, fmt.Errorf("decision result has %d rows, expected at most one", len(r))
	}
}

// SingleEntry returns the only value of the only row, or nil for an empty result
func (r Result) SingleEntry() (any, error) {
	row, err := r.SingleResult()
	if err != nil || row == nil {
		return nil, err
	}
	return row.SingleEntry()
}

// CollectEntries returns the named output of every row that has it
func (r Result) CollectEntries(name string) []any {
	values := make([]any, 0, len(r))
	for _, row := range r {
		if v, ok := row.Get(name); ok {
			values = append(values, v)
		}
	}
	return values
}

// resultOf builds a fresh row from the rule's outputs. Map and slice values are
// copied too, so callers may change a result without touching the rule.
func resultOf(rule Rule) RuleResult {
	row := make(RuleResult, len(rule.Outputs))
	for i, e := range rule.Outputs {
		row[i] = OutputEntry{Name: e.Name, Value: copyValue(e.Value)}
	}
	return row
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = copyValue(item)
		}
		return m
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = copyValue(item)
		}
		return list
	}
	return v
}
