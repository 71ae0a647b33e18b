package hitpolicy

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable, caller-visible error identifier. Callers match on it, never on message text.
type Code string

const (
	CodeUnsupportedHitPolicy        Code = "DMN-02004"
	CodeUniqueViolation             Code = "DMN-03001"
	CodeAnyConflict                 Code = "DMN-03002"
	CodeAggregationOnCompoundOutput Code = "DMN-03003"
	CodeNotComparable               Code = "DMN-03004"
	CodeRequiresMatchingRule        Code = "DMN-03007"
	CodeValueNotInOutputValues      Code = "DMN-03008"
	CodeUnnamedCompoundOutput       Code = "DMN-03009"
	CodeRequiresOutputValues        Code = "DMN-03010"
)

// Error is the single error type raised by hit policy evaluation.
// Its message always starts with the code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + " " + e.Message
}

// IsConfiguration reports whether the error stems from table configuration
// rather than from the evaluated input.
func (e *Error) IsConfiguration() bool {
	switch e.Code {
	case CodeUnsupportedHitPolicy, CodeAggregationOnCompoundOutput, CodeUnnamedCompoundOutput, CodeRequiresOutputValues:
		return true
	}
	return false
}

// CodeOf returns the code of a hit policy error anywhere in err's chain
func CodeOf(err error) (Code, bool) {
	var hpErr *Error
	if errors.As(err, &hpErr) {
		return hpErr.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given code
func IsCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func errUnsupportedHitPolicy(cfg Config) *Error {
	if cfg.HitPolicy.IsPreview() {
		return newError(CodeUnsupportedHitPolicy,
			"Hit policy '%s' is a preview feature and is not enabled", cfg)
	}
	return newError(CodeUnsupportedHitPolicy, "Hit policy '%s' is not supported", cfg)
}

func errUniqueViolation(matched []Rule) *Error {
	return newError(CodeUniqueViolation,
		"Hit policy '%s' only allows a single rule to match. Actually match rules: %s",
		Unique, ruleIDs(matched))
}

func errAnyConflict(matched []Rule) *Error {
	return newError(CodeAnyConflict,
		"Hit policy '%s' only allows multiple matching rules with equal output. Matching rules: %s",
		Any, ruleIDs(matched))
}

func errAggregationOnCompoundOutput(agg Aggregator, outputs []OutputDefinition) *Error {
	return newError(CodeAggregationOnCompoundOutput,
		"Unable to execute aggregation '%s' on compound decision output with %d outputs. Only one output entry allowed.",
		agg, len(outputs))
}

func errNotComparable(agg Aggregator, values []any) *Error {
	return newError(CodeNotComparable,
		"Unable to convert value '%v' of aggregation '%s' to a number. Only integral and floating point values can be aggregated.",
		values, agg)
}

func errRequiresMatchingRule(hp HitPolicy) *Error {
	return newError(CodeRequiresMatchingRule,
		"Hit policy '%s' requires at least one matching rule", hp)
}

func errValueNotInOutputValues(output string, value any, allowed []any) *Error {
	if output == "" {
		output = "unnamed output"
	}
	return newError(CodeValueNotInOutputValues,
		"value '%v' not found in allowed output values for output %s: %v", value, output, allowed)
}

func errUnnamedCompoundOutput() *Error {
	return newError(CodeUnnamedCompoundOutput,
		"Output must have a name when the decision table has multiple outputs")
}

func errRequiresOutputValues(hp HitPolicy) *Error {
	return newError(CodeRequiresOutputValues,
		"Hit policy '%s' requires at least one output with allowed output values", hp)
}

func ruleIDs(rules []Rule) string {
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = "'" + r.identifier() + "'"
	}
	return strings.Join(ids, ", ")
}
