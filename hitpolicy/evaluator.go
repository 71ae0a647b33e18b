package hitpolicy

// Matcher decides whether a rule's input conditions hold for the current input.
// Condition evaluation lives outside this package.
type Matcher interface {
	Match(rule Rule) (bool, error)
}

// OutputEvaluator is implemented by matchers whose output values depend on the
// current input. The evaluator asks it for the outputs of every matched rule.
type OutputEvaluator interface {
	EvaluateOutputs(rule Rule) ([]OutputEntry, error)
}

// PredicateFunc adapts a plain predicate to a Matcher
type PredicateFunc func(rule Rule) (bool, error)

func (f PredicateFunc) Match(rule Rule) (bool, error) { return f(rule) }

// Evaluation is the outcome of one table evaluation
type Evaluation struct {
	Config  Config
	Matched []Rule
	Result  Result
}

// Evaluator collects matching rules and hands them to the registered hit policy handler.
// It keeps no state between calls.
type Evaluator struct {
	registry *Registry
}

// NewEvaluator creates an evaluator backed by the given registry
func NewEvaluator(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Evaluate returns the decision result of the rules under cfg
func (e *Evaluator) Evaluate(rules []Rule, cfg Config, m Matcher, outputs []OutputDefinition) (Result, error) {
	ev, err := e.EvaluateDetailed(rules, cfg, m, outputs)
	if err != nil {
		return nil, err
	}
	return ev.Result, nil
}

// EvaluateDetailed is Evaluate that also reports which rules matched
func (e *Evaluator) EvaluateDetailed(rules []Rule, cfg Config, m Matcher, outputs []OutputDefinition) (*Evaluation, error) {
	// a disabled or unknown policy fails before any rule is evaluated
	handler, ok := e.registry.Handler(cfg)
	if !ok {
		return nil, errUnsupportedHitPolicy(cfg)
	}

	outputsOf, _ := m.(OutputEvaluator)
	matched := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		ok, err := m.Match(rule)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if outputsOf != nil {
			entries, err := outputsOf.EvaluateOutputs(rule)
			if err != nil {
				return nil, err
			}
			rule.Outputs = entries
		}
		matched = append(matched, rule)
	}

	result, err := handler.Apply(matched, outputs)
	if err != nil {
		return nil, err
	}
	return &Evaluation{Config: cfg, Matched: matched, Result: result}, nil
}
