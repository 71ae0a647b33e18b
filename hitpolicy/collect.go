package hitpolicy

// collectHandler returns all matching rules, or a single aggregated row
type collectHandler struct {
	aggregator Aggregator
}

func (h collectHandler) Config() Config {
	return Config{HitPolicy: Collect, Aggregator: h.aggregator}
}

func (h collectHandler) Apply(matched []Rule, outputs []OutputDefinition) (Result, error) {
	if h.aggregator == NoAggregator {
		return passThrough(matched), nil
	}

	// table shape is checked before any match is looked at
	if len(outputs) > 1 {
		return nil, errAggregationOnCompoundOutput(h.aggregator, outputs)
	}
	var output OutputDefinition
	if len(outputs) == 1 {
		output = outputs[0]
	}

	if h.aggregator == Count {
		return Result{{{Name: output.Name, Value: int64(len(matched))}}}, nil
	}
	if len(matched) == 0 {
		return Result{}, nil
	}

	values := make([]any, len(matched))
	for i, rule := range matched {
		v, err := outputValue(rule, output, true)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	aggregated, err := aggregate(h.aggregator, values)
	if err != nil {
		return nil, err
	}
	return Result{{{Name: output.Name, Value: aggregated}}}, nil
}

// aggregate folds values inside their resolved numeric domain. The result is
// expressed in that domain: int64 or float64.
func aggregate(agg Aggregator, values []any) (any, error) {
	domain, err := ResolveDomain(agg, values)
	if err != nil {
		return nil, err
	}

	switch agg {
	case Sum:
		if domain == Floating {
			var total float64
			for _, v := range values {
				total += toFloat64(v)
			}
			return total, nil
		}
		var total int64
		for _, v := range values {
			total += toInt64(v)
		}
		return total, nil

	case Min, Max:
		best := values[0]
		for _, v := range values[1:] {
			c := compareIn(domain, v, best)
			if (agg == Min && c < 0) || (agg == Max && c > 0) {
				best = v
			}
		}
		return coerce(domain, best), nil
	}
	return nil, errUnsupportedHitPolicy(Config{HitPolicy: Collect, Aggregator: agg})
}
