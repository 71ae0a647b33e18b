package hitpolicy

// Options configures which hit policies a Registry exposes
type Options struct {
	// PreviewFeaturesEnabled unlocks PRIORITY and OUTPUT ORDER
	PreviewFeaturesEnabled bool
}

// Registry maps a hit policy configuration to its handler.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	handlers map[Config]Handler
}

// NewRegistry builds the handler table once. A nil opts behaves like
// preview features disabled.
func NewRegistry(opts *Options) *Registry {
	preview := opts != nil && opts.PreviewFeaturesEnabled

	handlers := make(map[Config]Handler)
	for _, cfg := range SupportedConfigs() {
		if cfg.HitPolicy.IsPreview() && !preview {
			continue
		}
		handlers[cfg] = handlerFor(cfg)
	}
	return &Registry{handlers: handlers}
}

// Handler returns the handler for cfg, or false when the configuration is
// unsupported or not enabled.
func (r *Registry) Handler(cfg Config) (Handler, bool) {
	h, ok := r.handlers[cfg]
	return h, ok
}

// SupportedConfigs lists every valid hit policy / aggregator combination
func SupportedConfigs() []Config {
	var configs []Config
	for _, hp := range HitPolicies {
		if hp != Collect {
			configs = append(configs, Config{HitPolicy: hp})
			continue
		}
		for _, agg := range Aggregators {
			configs = append(configs, Config{HitPolicy: Collect, Aggregator: agg})
		}
	}
	return configs
}

// handlerFor is the closed dispatch over hit policy variants.
// It returns nil for combinations that have no handler.
func handlerFor(cfg Config) Handler {
	if cfg.HitPolicy != Collect && cfg.Aggregator != NoAggregator {
		return nil
	}
	switch cfg.HitPolicy {
	case Unique:
		return uniqueHandler{}
	case Any:
		return anyHandler{}
	case First:
		return firstHandler{}
	case Priority:
		return priorityHandler{}
	case RuleOrder:
		return ruleOrderHandler{}
	case OutputOrder:
		return outputOrderHandler{}
	case Collect:
		switch cfg.Aggregator {
		case NoAggregator, Sum, Min, Max, Count:
			return collectHandler{aggregator: cfg.Aggregator}
		}
	}
	return nil
}
