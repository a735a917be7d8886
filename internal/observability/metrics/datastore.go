package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for database operations.
type DatastoreMetrics struct {
	SpeciesCreated     prometheus.Counter
	SpeciesCacheHits   prometheus.Counter
	SpeciesRaceRetries prometheus.Counter

	registry *prometheus.Registry
}

// NewDatastoreMetrics creates a new instance of DatastoreMetrics and
// registers it with the provided registry.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.SpeciesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_datastore_species_created_total",
			Help: "Total number of species rows minted by resolve-or-create.",
		},
	)
	m.SpeciesCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_datastore_species_cache_hits_total",
			Help: "Total number of species id resolutions served from cache.",
		},
	)
	m.SpeciesRaceRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartplant_datastore_species_race_retries_total",
			Help: "Total number of duplicate-key races recovered during resolve-or-create.",
		},
	)
}

// Describe implements prometheus.Collector.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SpeciesCreated.Describe(ch)
	m.SpeciesCacheHits.Describe(ch)
	m.SpeciesRaceRetries.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SpeciesCreated.Collect(ch)
	m.SpeciesCacheHits.Collect(ch)
	m.SpeciesRaceRetries.Collect(ch)
}
