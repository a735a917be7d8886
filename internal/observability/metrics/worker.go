// Package metrics provides custom Prometheus metrics for the SmartPlant backend.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics contains all Prometheus metrics related to the inference
// worker process and supervisor.
type WorkerMetrics struct {
	ProcessStarts     prometheus.Counter
	ProcessExits      *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
	InferenceTotal    *prometheus.CounterVec
	Timeouts          prometheus.Counter
	StaleDrained      prometheus.Counter
	NoiseLinesSkipped prometheus.Counter

	registry *prometheus.Registry
}

// NewWorkerMetrics creates a new instance of WorkerMetrics and registers it
// with the provided registry.
func NewWorkerMetrics(registry *prometheus.Registry) (*WorkerMetrics, error) {
	m := &WorkerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register worker metrics: %w", err)
	}
	return m, nil
}

func (m *WorkerMetrics) initMetrics() {
	m.ProcessStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_worker_process_starts_total",
			Help: "Total number of inference worker subprocess launches.",
		},
	)
	m.ProcessExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartplant_worker_process_exits_total",
			Help: "Total number of inference worker subprocess exits partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartplant_worker_inference_duration_seconds",
			Help:    "Time taken for one inference round-trip against the worker.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
		},
	)
	m.InferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartplant_worker_inferences_total",
			Help: "Total number of inference requests partitioned by result.",
		},
		[]string{"result"},
	)
	m.Timeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_worker_inference_timeouts_total",
			Help: "Total number of inference requests abandoned on timeout.",
		},
	)
	m.StaleDrained = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_worker_stale_responses_drained_total",
			Help: "Total number of stale worker responses discarded before a new request.",
		},
	)
	m.NoiseLinesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_worker_noise_lines_skipped_total",
			Help: "Total number of non-JSON lines skipped on the worker stdout stream.",
		},
	)
}

// Describe implements prometheus.Collector.
func (m *WorkerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ProcessStarts.Describe(ch)
	m.ProcessExits.Describe(ch)
	m.InferenceDuration.Describe(ch)
	m.InferenceTotal.Describe(ch)
	m.Timeouts.Describe(ch)
	m.StaleDrained.Describe(ch)
	m.NoiseLinesSkipped.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *WorkerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ProcessStarts.Collect(ch)
	m.ProcessExits.Collect(ch)
	m.InferenceDuration.Collect(ch)
	m.InferenceTotal.Collect(ch)
	m.Timeouts.Collect(ch)
	m.StaleDrained.Collect(ch)
	m.NoiseLinesSkipped.Collect(ch)
}
