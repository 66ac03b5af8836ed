package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
)

const metricsNamespace = "salonbot"

// Exporter publishes samples as Prometheus collectors.
type Exporter struct {
	// Labels: kind, name, outcome (success, failure)
	Latency *prometheus.HistogramVec

	// Labels: breaker. Value is 0 closed, 1 half-open, 2 open.
	BreakerState *prometheus.GaugeVec

	// Labels: breaker, from, to
	BreakerTransitions *prometheus.CounterVec

	// Labels: limiter, code
	RateLimited *prometheus.CounterVec

	// Labels: tier (memory, shared, cold)
	ContextLoads *prometheus.CounterVec
}

// NewExporter creates and registers all collectors on reg.
// Panics on duplicate registration, like promauto.
func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)
	return &Exporter{
		Latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "duration_seconds",
				Help:      "Latency of operations and commands in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind", "name", "outcome"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"breaker"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "breaker",
				Name:      "transitions_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"breaker", "from", "to"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "ratelimit",
				Name:      "rejections_total",
				Help:      "Requests rejected by a rate limiter",
			},
			[]string{"limiter", "code"},
		),
		ContextLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "context",
				Name:      "loads_total",
				Help:      "Conversation context loads by serving tier",
			},
			[]string{"tier"},
		),
	}
}

// Observe records one latency sample.
func (e *Exporter) Observe(kind, name string, latency time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	e.Latency.WithLabelValues(kind, name, outcome).Observe(latency.Seconds())
}

// BreakerListener returns a listener suitable for breaker.Registry.OnStateChange.
func (e *Exporter) BreakerListener() breaker.Listener {
	return func(from, to breaker.State, cb *breaker.CircuitBreaker) {
		e.BreakerState.WithLabelValues(cb.Name()).Set(breakerStateValue(to))
		e.BreakerTransitions.WithLabelValues(cb.Name(), from.String(), to.String()).Inc()
	}
}

// RecordRateLimited counts one rejection.
func (e *Exporter) RecordRateLimited(limiter, code string) {
	e.RateLimited.WithLabelValues(limiter, code).Inc()
}

// RecordContextLoad counts one context load served by tier.
func (e *Exporter) RecordContextLoad(tier string) {
	e.ContextLoads.WithLabelValues(tier).Inc()
}

func breakerStateValue(s breaker.State) float64 {
	switch s {
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return 0
	}
}
