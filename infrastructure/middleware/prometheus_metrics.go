// Package middleware provides cross-cutting observability for the
// consensus engine: Prometheus metrics and OpenTelemetry tracing around
// recomputation runs.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It provides real-time monitoring of stance intake,
// recomputation performance, publish outcomes, and external lookup health.
type PrometheusMetrics struct {
	operationLatency  *prometheus.HistogramVec
	stanceSubmissions *prometheus.CounterVec
	recomputeRuns     *prometheus.CounterVec
	withheldResults   *prometheus.CounterVec
	degradedLookups   *prometheus.CounterVec
	reputationLookups *prometheus.CounterVec
	operationCounter  *prometheus.CounterVec
	systemGauges      *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and registers
// all required metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		operationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensus_operation_duration_seconds",
				Help:    "Execution time of engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "topic"},
		),
		stanceSubmissions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_stance_submissions_total",
				Help: "Total number of accepted stance submissions.",
			},
			[]string{"topic", "modality"},
		),
		recomputeRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_recompute_runs_total",
				Help: "Total number of aggregation runs by outcome.",
			},
			[]string{"topic", "trigger", "status"},
		),
		withheldResults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_withheld_results_total",
				Help: "Total number of results withheld by the threshold gate.",
			},
			[]string{"topic", "cohort", "reason"},
		),
		degradedLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_degraded_lookups_total",
				Help: "Total number of runs that proceeded on degraded external state.",
			},
			[]string{"topic", "flag"},
		),
		reputationLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reputation_lookups_total",
				Help: "Total number of reputation profile lookups by status.",
			},
			[]string{"domain", "status"},
		),
		operationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensus_operations_total",
				Help: "Total number of engine operations performed.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "consensus_system_state",
				Help: "Current engine state values such as pending recomputations.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.operationLatency.WithLabelValues(operation, labels["topic"]).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters. Known metrics route to their dedicated vectors;
// everything else lands on the general operation counter.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "consensus_stance_submissions_total":
		pm.stanceSubmissions.WithLabelValues(labels["topic"], labels["modality"]).Add(value)
	case "consensus_recompute_runs_total":
		pm.recomputeRuns.WithLabelValues(labels["topic"], labels["trigger"], labels["status"]).Add(value)
	case "consensus_withheld_results_total":
		pm.withheldResults.WithLabelValues(labels["topic"], labels["cohort"], labels["reason"]).Add(value)
	case "consensus_degraded_lookups_total":
		pm.degradedLookups.WithLabelValues(labels["topic"], labels["flag"]).Add(value)
	case "reputation_lookups_total":
		pm.reputationLookups.WithLabelValues(labels["domain"], labels["status"]).Add(value)
	default:
		status, ok := labels["status"]
		if !ok {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
