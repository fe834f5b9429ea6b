package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"batchcore/internal/runner"
)

// PrometheusMetricsRecorder exports service operation metrics through a
// prometheus registry, fulfilling MetricsRecorder for scrape-based
// deployments.
type PrometheusMetricsRecorder struct {
	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder constructs a recorder with its own registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	registry := prometheus.NewRegistry()
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "batchcore",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Duration of service operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "batchcore",
		Subsystem: "service",
		Name:      "operation_results_total",
		Help:      "Service operation outcomes by status.",
	}, []string{"operation", "status"})
	registry.MustRegister(durations, results)
	return &PrometheusMetricsRecorder{registry: registry, durations: durations, results: results}
}

// Registry exposes the backing registry for HTTP exposition.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry { return r.registry }

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// RunMetrics exports execution telemetry for the runner through prometheus.
type RunMetrics struct {
	registry   *prometheus.Registry
	batches    *prometheus.CounterVec
	days       prometheus.Counter
	partitions *prometheus.CounterVec
}

var _ runner.Metrics = (*RunMetrics)(nil)

// NewRunMetrics constructs runner telemetry counters on the given registry.
// A nil registry gets a private one.
func NewRunMetrics(registry *prometheus.Registry) *RunMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "batchcore",
		Subsystem: "run",
		Name:      "batches_total",
		Help:      "Executed batches by terminal status.",
	}, []string{"status"})
	days := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "batchcore",
		Subsystem: "run",
		Name:      "simulated_days_total",
		Help:      "Total simulated batch-days.",
	})
	partitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "batchcore",
		Subsystem: "run",
		Name:      "partitions_total",
		Help:      "Finished partitions by completeness.",
	}, []string{"complete"})
	registry.MustRegister(batches, days, partitions)
	return &RunMetrics{registry: registry, batches: batches, days: days, partitions: partitions}
}

// Registry exposes the backing registry for HTTP exposition.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// BatchCompleted implements runner.Metrics.
func (m *RunMetrics) BatchCompleted(status runner.BatchStatus, days int) {
	m.batches.WithLabelValues(string(status)).Inc()
	m.days.Add(float64(days))
}

// PartitionCompleted implements runner.Metrics.
func (m *RunMetrics) PartitionCompleted(_ int, complete bool) {
	label := "false"
	if complete {
		label = "true"
	}
	m.partitions.WithLabelValues(label).Inc()
}
