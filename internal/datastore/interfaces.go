// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/adilrumy05/SmartPlant-Backend/internal/conf"
	"github.com/adilrumy05/SmartPlant-Backend/internal/observability/metrics"
)

// Interface abstracts the underlying database implementation and defines the
// operations the triage pipeline and review workflow need.
type Interface interface {
	Open() error
	Close() error

	// Species
	ResolveOrCreateSpecies(scientificName string) (uint, error)
	InsertSpecies(sp *Species) error
	GetSpecies(speciesID uint) (Species, error)
	SetSpeciesImageURLIfUnset(speciesID uint, imageURL string) error

	// Observations
	InsertObservation(obs *Observation) error
	GetObservation(observationID uint) (Observation, error)
	GetObservationWithResults(observationID uint) (Observation, []ResultWithSpecies, error)
	InsertResults(observationID uint, results []AIResult) error
	SetObservationReview(observationID uint, status string, speciesID *uint) error
	UpdateObservation(update ObservationUpdate) error
	ListObservations(query ObservationQuery) ([]ObservationSummary, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance

	resolveMu    *sync.Mutex // serializes species get-or-create misses
	speciesCache *cache.Cache
	metrics      *metrics.DatastoreMetrics
}

// speciesCacheTTL bounds how long a resolved species id is reused without a
// database round-trip. Species rows are never deleted, so entries only ever
// go stale on cache memory pressure.
const speciesCacheTTL = 15 * time.Minute

// New creates a new store instance based on the provided configuration. The
// metrics collector may be nil.
func New(settings *conf.Settings, dbMetrics *metrics.DatastoreMetrics) Interface {
	base := DataStore{
		resolveMu:    &sync.Mutex{},
		speciesCache: cache.New(speciesCacheTTL, 2*speciesCacheTTL),
		metrics:      dbMetrics,
	}
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: base,
			Settings:  settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: base,
			Settings:  settings,
		}
	default:
		return nil
	}
}

// newTestStore builds a DataStore around an already-open GORM handle, used
// by package tests.
func newTestStore(db *gorm.DB, dbMetrics *metrics.DatastoreMetrics) *DataStore {
	return &DataStore{
		DB:           db,
		resolveMu:    &sync.Mutex{},
		speciesCache: cache.New(speciesCacheTTL, 2*speciesCacheTTL),
		metrics:      dbMetrics,
	}
}

// gormConfig returns the GORM configuration shared by both backends.
// TranslateError is required so duplicate-key races surface as
// gorm.ErrDuplicatedKey regardless of driver.
func gormConfig(debug bool) *gorm.Config {
	logLevel := gormlogger.Silent
	if debug {
		logLevel = gormlogger.Info
	}
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
	}
}

// performAutoMigration migrates the schema for all models.
func performAutoMigration(db *gorm.DB) error {
	return db.AutoMigrate(&Species{}, &Observation{}, &AIResult{})
}
