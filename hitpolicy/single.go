package hitpolicy

// uniqueHandler allows at most one matching rule
type uniqueHandler struct{}

func (uniqueHandler) Config() Config { return Config{HitPolicy: Unique} }

func (uniqueHandler) Apply(matched []Rule, _ []OutputDefinition) (Result, error) {
	if len(matched) > 1 {
		return nil, errUniqueViolation(matched)
	}
	return passThrough(matched), nil
}

// anyHandler allows several matching rules as long as all of them agree on every output
type anyHandler struct{}

func (anyHandler) Config() Config { return Config{HitPolicy: Any} }

func (anyHandler) Apply(matched []Rule, _ []OutputDefinition) (Result, error) {
	if len(matched) == 0 {
		return Result{}, nil
	}
	first := matched[0]
	for _, rule := range matched[1:] {
		if !sameOutputs(first, rule) {
			return nil, errAnyConflict(matched)
		}
	}
	return Result{resultOf(first)}, nil
}

// firstHandler returns the earliest declared matching rule
type firstHandler struct{}

func (firstHandler) Config() Config { return Config{HitPolicy: First} }

func (firstHandler) Apply(matched []Rule, _ []OutputDefinition) (Result, error) {
	if len(matched) == 0 {
		return Result{}, nil
	}
	return Result{resultOf(matched[0])}, nil
}

// ruleOrderHandler returns all matching rules in declaration order
type ruleOrderHandler struct{}

func (ruleOrderHandler) Config() Config { return Config{HitPolicy: RuleOrder} }

func (ruleOrderHandler) Apply(matched []Rule, _ []OutputDefinition) (Result, error) {
	return passThrough(matched), nil
}
