package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/decisions/decision"
	"github.com/liamcoop/decisions/hitpolicy"
	"github.com/liamcoop/decisions/internal/logger"
)

// Evaluation outcomes used as the "outcome" label
const (
	OutcomeSuccess   = "success"
	OutcomeViolation = "hit_policy_violation"
	OutcomeError     = "error"
)

// Collector records decision table evaluations. It is a decision.EvaluationListener.
//
// Metrics:
//   - <ns>_evaluations_total: evaluations by hit policy and outcome
//   - <ns>_evaluation_duration_seconds: evaluation latency by hit policy
//   - <ns>_matched_rules: number of matched rules per successful evaluation
//   - <ns>_hit_policy_errors_total: hit policy violations by DMN code
//   - <ns>_log_errors_total, <ns>_log_warnings_total, <ns>_http_responses_total: logger counters
type Collector struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	matchedRules       *prometheus.HistogramVec
	hitPolicyErrors    *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, which also carries the
// Go runtime and process collectors.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of decision table evaluations",
			},
			[]string{"hit_policy", "outcome"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of decision table evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000005, 2, 16), // 5µs to ~160ms
			},
			[]string{"hit_policy"},
		),

		matchedRules: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "matched_rules",
				Help:      "Number of rules matched per successful evaluation",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
			},
			[]string{"hit_policy"},
		),

		hitPolicyErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hit_policy_errors_total",
				Help:      "Total number of hit policy violations by DMN error code",
			},
			[]string{"code"},
		),
	}

	c.registry.MustRegister(
		c.evaluationsTotal,
		c.evaluationDuration,
		c.matchedRules,
		c.hitPolicyErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.registerLoggerCounters(namespace)

	return c
}

func (c *Collector) registerLoggerCounters(namespace string) {
	c.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_errors_total",
			Help:      "Errors reported through the logger, including sampled-out records",
		}, func() float64 { return float64(logger.TotalErrors.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_warnings_total",
			Help:      "Warnings reported through the logger, including sampled-out records",
		}, func() float64 { return float64(logger.TotalWarnings.Load()) }),
	)

	for class, counter := range map[string]func() int64{
		"4xx": logger.Total4xxErrors.Load,
		"5xx": logger.Total5xxErrors.Load,
	} {
		c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_responses_total",
			Help:        "HTTP error responses by status class",
			ConstLabels: prometheus.Labels{"class": class},
		}, func() float64 { return float64(counter()) }))
	}
}

// OnEvaluation implements decision.EvaluationListener
func (c *Collector) OnEvaluation(event decision.EvaluationEvent) {
	hp := event.Config.String()
	outcome := OutcomeSuccess

	var hpErr *hitpolicy.Error
	switch {
	case event.Err == nil:
		c.matchedRules.WithLabelValues(hp).Observe(float64(len(event.Matched)))
	case errors.As(event.Err, &hpErr):
		outcome = OutcomeViolation
		c.hitPolicyErrors.WithLabelValues(string(hpErr.Code)).Inc()
	default:
		outcome = OutcomeError
	}

	c.evaluationsTotal.WithLabelValues(hp, outcome).Inc()
	c.evaluationDuration.WithLabelValues(hp).Observe(event.Duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
