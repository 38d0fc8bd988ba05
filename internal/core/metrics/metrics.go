// internal/core/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rulematch_records_evaluated_total",
		Help: "Total number of records evaluated against a rule.",
	})

	RecordsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rulematch_records_matched_total",
		Help: "Total number of records that satisfied the rule they were matched against.",
	})

	EvaluationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rulematch_evaluation_errors_total",
		Help: "Total number of records whose evaluation failed with a coercion error.",
	})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rulematch_match_duration_ms",
		Help:    "End-to-end latency of one match pass in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	// RulesRejected is labelled by stage: "store", "rulefile" or "api".
	RulesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rulematch_rules_rejected_total",
		Help: "Total number of rules that failed validation, labelled by where they were submitted.",
	}, []string{"stage"})
)
