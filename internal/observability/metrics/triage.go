package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// TriageMetrics contains all Prometheus metrics related to the observation
// triage pipeline and review transitions.
type TriageMetrics struct {
	IngestionsTotal      *prometheus.CounterVec
	PredictionsPersisted prometheus.Counter
	AutoFlaggedTotal     prometheus.Counter
	ReviewTransitions    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewTriageMetrics creates a new instance of TriageMetrics and registers it
// with the provided registry.
func NewTriageMetrics(registry *prometheus.Registry) (*TriageMetrics, error) {
	m := &TriageMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register triage metrics: %w", err)
	}
	return m, nil
}

func (m *TriageMetrics) initMetrics() {
	m.IngestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartplant_triage_ingestions_total",
			Help: "Total number of observation ingestions partitioned by inference outcome.",
		},
		[]string{"outcome"},
	)
	m.PredictionsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_triage_predictions_persisted_total",
			Help: "Total number of ranked predictions written to the database.",
		},
	)
	m.AutoFlaggedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_triage_auto_flagged_total",
			Help: "Total number of observations flagged for priority review.",
		},
	)
	m.ReviewTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartplant_triage_review_transitions_total",
			Help: "Total number of administrator review transitions partitioned by kind.",
		},
		[]string{"transition"},
	)
}

// Describe implements prometheus.Collector.
func (m *TriageMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.IngestionsTotal.Describe(ch)
	m.PredictionsPersisted.Describe(ch)
	m.AutoFlaggedTotal.Describe(ch)
	m.ReviewTransitions.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *TriageMetrics) Collect(ch chan<- prometheus.Metric) {
	m.IngestionsTotal.Collect(ch)
	m.PredictionsPersisted.Collect(ch)
	m.AutoFlaggedTotal.Collect(ch)
	m.ReviewTransitions.Collect(ch)
}
