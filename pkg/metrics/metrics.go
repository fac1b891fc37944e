// Package metrics exposes prometheus counters and histograms for the
// hash-chain engine and verifier, grounded on the teacher go.mod's
// github.com/prometheus/client_golang dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Verifier implements verifier.StepObserver, counting step outcomes by
// name and pass/fail.
type Verifier struct {
	steps *prometheus.CounterVec
}

// NewVerifier registers the verifier step counter on reg and returns a
// Verifier bound to it. Pass prometheus.DefaultRegisterer for the global
// default registry.
func NewVerifier(reg prometheus.Registerer) *Verifier {
	v := &Verifier{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ksi",
			Subsystem: "verifier",
			Name:      "step_total",
			Help:      "Count of verification steps by step name and outcome.",
		}, []string{"step", "outcome"}),
	}
	reg.MustRegister(v.steps)
	return v
}

// Observe records one completed step's outcome.
func (v *Verifier) Observe(step string, success bool) {
	outcome := "fail"
	if success {
		outcome = "pass"
	}
	v.steps.WithLabelValues(step, outcome).Inc()
}

// HashChain holds fold-duration and fold-count instrumentation for
// pkg/hashchain callers. It implements verifier.ChainObserver and is wired
// in by pkg/context.WithMetrics, which passes it to verifier.New; the
// Verifier calls ObserveFold around its own FoldAggregation/FoldCalendar
// call sites, keeping pkg/hashchain itself free of metrics dependencies.
type HashChain struct {
	foldDuration *prometheus.HistogramVec
	foldTotal    *prometheus.CounterVec
}

// NewHashChain registers the hash-chain fold instrumentation on reg.
func NewHashChain(reg prometheus.Registerer) *HashChain {
	h := &HashChain{
		foldDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ksi",
			Subsystem: "hashchain",
			Name:      "fold_duration_seconds",
			Help:      "Duration of aggregation/calendar chain folds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		foldTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ksi",
			Subsystem: "hashchain",
			Name:      "fold_total",
			Help:      "Count of chain folds by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(h.foldDuration, h.foldTotal)
	return h
}

// ObserveFold records one fold's duration (seconds) and outcome. kind is
// "aggregation" or "calendar".
func (h *HashChain) ObserveFold(kind string, seconds float64, success bool) {
	h.foldDuration.WithLabelValues(kind).Observe(seconds)
	outcome := "fail"
	if success {
		outcome = "pass"
	}
	h.foldTotal.WithLabelValues(kind, outcome).Inc()
}
