package rules

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for rule lifecycle and evaluation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	errorsTotal        *prometheus.CounterVec
	activeRules        prometheus.Gauge
}

// NewMetrics creates and registers rule metrics.
// Returns nil metrics when reg is nil (nil input = nil feature).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segmentkeeper",
			Subsystem: "rule",
			Name:      "evaluations_total",
			Help:      "Total rule evaluations performed",
		}, []string{"rule_key", "result"}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "segmentkeeper",
			Subsystem: "rule",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating individual rule instances",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"rule_key"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segmentkeeper",
			Subsystem: "rule",
			Name:      "errors_total",
			Help:      "Total rule evaluation errors",
		}, []string{"rule_key"}),

		activeRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "segmentkeeper",
			Subsystem: "rule",
			Name:      "active",
			Help:      "Number of active rule variants",
		}),
	}

	var err error
	if m.evaluationsTotal, err = register(reg, m.evaluationsTotal); err != nil {
		return nil, err
	}
	if m.evaluationDuration, err = register(reg, m.evaluationDuration); err != nil {
		return nil, err
	}
	if m.errorsTotal, err = register(reg, m.errorsTotal); err != nil {
		return nil, err
	}
	if m.activeRules, err = register(reg, m.activeRules); err != nil {
		return nil, err
	}

	return m, nil
}

// register registers c, reusing the collector already registered under the
// same descriptor so that several registries can share one Registerer.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) recordEvaluation(ruleKey string, matched bool, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.WithLabelValues(ruleKey).Observe(elapsed.Seconds())
	if err != nil {
		m.errorsTotal.WithLabelValues(ruleKey).Inc()
		return
	}
	result := "miss"
	if matched {
		result = "match"
	}
	m.evaluationsTotal.WithLabelValues(ruleKey, result).Inc()
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.activeRules.Set(float64(n))
}
