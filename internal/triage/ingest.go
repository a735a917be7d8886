// Package triage turns raw uploads into reviewed observation records. It
// drives the inference worker, resolves predicted labels to species rows,
// computes the auto-flag decision and exposes the administrator review
// transitions.
package triage

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/adilrumy05/SmartPlant-Backend/internal/conf"
	"github.com/adilrumy05/SmartPlant-Backend/internal/datastore"
	"github.com/adilrumy05/SmartPlant-Backend/internal/logging"
	"github.com/adilrumy05/SmartPlant-Backend/internal/observability/metrics"
	"github.com/adilrumy05/SmartPlant-Backend/internal/worker"
)

// Inferencer is the slice of the worker supervisor the pipeline consumes.
type Inferencer interface {
	Infer(ctx context.Context, imagePath string, topK int) ([]worker.Prediction, error)
}

// Store is the slice of the datastore the pipeline and review workflow use.
type Store interface {
	ResolveOrCreateSpecies(scientificName string) (uint, error)
	InsertSpecies(sp *datastore.Species) error
	GetSpecies(speciesID uint) (datastore.Species, error)
	SetSpeciesImageURLIfUnset(speciesID uint, imageURL string) error

	InsertObservation(obs *datastore.Observation) error
	GetObservation(observationID uint) (datastore.Observation, error)
	GetObservationWithResults(observationID uint) (datastore.Observation, []datastore.ResultWithSpecies, error)
	InsertResults(observationID uint, results []datastore.AIResult) error
	SetObservationReview(observationID uint, status string, speciesID *uint) error
	UpdateObservation(update datastore.ObservationUpdate) error
	ListObservations(query datastore.ObservationQuery) ([]datastore.ObservationSummary, error)
}

// LocationCipher seals coordinates into an opaque bundle for storage.
type LocationCipher interface {
	EncryptLocation(latitude, longitude float64) (string, error)
}

// UploadMeta carries the submission context alongside the photo itself.
type UploadMeta struct {
	UserID       *uint
	PhotoURL     string // public path of the stored upload
	Latitude     *float64
	Longitude    *float64
	LocationName string
	Source       string // capture channel, defaults to camera
	Masked       bool
}

// Candidate is one ranked prediction as returned to the submitting client.
type Candidate struct {
	Rank           int     `json:"rank"`
	SpeciesID      uint    `json:"species_id"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
}

// TriageResult is the ingestion outcome returned to the submitting client.
type TriageResult struct {
	ObservationID uint        `json:"observation_id"`
	Status        string      `json:"status"`
	Threshold     float64     `json:"threshold"`
	AutoFlagged   bool        `json:"auto_flagged"`
	Primary       *Candidate  `json:"primary,omitempty"`
	Candidates    []Candidate `json:"candidates"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Ingestor runs the upload-to-predictions pipeline.
type Ingestor struct {
	store     Store
	inference Inferencer
	cipher    LocationCipher // optional
	settings  conf.TriageSettings
	topK      int
	log       *slog.Logger
	metrics   *metrics.TriageMetrics
}

// NewIngestor wires the pipeline. cipher and triageMetrics may be nil.
func NewIngestor(store Store, inference Inferencer, cipher LocationCipher, settings *conf.Settings, triageMetrics *metrics.TriageMetrics) *Ingestor {
	return &Ingestor{
		store:     store,
		inference: inference,
		cipher:    cipher,
		settings:  settings.Triage,
		topK:      settings.Worker.TopK,
		log:       logging.ForService("triage"),
		metrics:   triageMetrics,
	}
}

// clampConfidence normalizes a raw worker confidence into the persisted
// form: clamped to [0,1] and rounded to four decimal places.
func clampConfidence(c float64) float64 {
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	if c > 1 {
		return 1
	}
	return math.Round(c*10000) / 10000
}

// Ingest persists a new observation, classifies its photo and records the
// ranked predictions. Inference failure is absorbed: the observation stays
// pending with an empty candidate list and the caller still gets a result.
// Only the initial observation insert is fatal.
func (ing *Ingestor) Ingest(ctx context.Context, meta UploadMeta, imagePath string) (TriageResult, error) {
	obs := ing.buildObservation(meta)
	if err := ing.store.InsertObservation(obs); err != nil {
		ing.countIngestion("error")
		return TriageResult{}, err
	}

	candidates := ing.classify(ctx, obs.ObservationID, imagePath)

	confidence := 0.0
	var primary *Candidate
	if len(candidates) > 0 {
		primary = &candidates[0]
		confidence = primary.Confidence
	}
	autoFlagged := confidence < ing.settings.Threshold

	if autoFlagged && ing.metrics != nil {
		ing.metrics.AutoFlaggedTotal.Inc()
	}
	ing.countIngestion("ok")

	ing.log.Info("observation ingested",
		"observation_id", obs.ObservationID,
		"candidates", len(candidates),
		"top_confidence", confidence,
		"auto_flagged", autoFlagged)

	return TriageResult{
		ObservationID: obs.ObservationID,
		Status:        obs.Status,
		Threshold:     ing.settings.Threshold,
		AutoFlagged:   autoFlagged,
		Primary:       primary,
		Candidates:    candidates,
		CreatedAt:     obs.CreatedAt,
	}, nil
}

// buildObservation maps upload metadata onto a pending observation row.
// Missing coordinates become 0.0 rather than null; there is no sentinel for
// "no location".
func (ing *Ingestor) buildObservation(meta UploadMeta) *datastore.Observation {
	lat, lon := 0.0, 0.0
	if meta.Latitude != nil {
		lat = *meta.Latitude
	}
	if meta.Longitude != nil {
		lon = *meta.Longitude
	}

	obs := &datastore.Observation{
		UserID:       meta.UserID,
		PhotoURL:     meta.PhotoURL,
		Latitude:     lat,
		Longitude:    lon,
		LocationName: meta.LocationName,
		Source:       meta.Source,
		Status:       datastore.StatusPending,
		Masked:       meta.Masked,
	}

	if ing.cipher != nil && (lat != 0 || lon != 0) {
		bundle, err := ing.cipher.EncryptLocation(lat, lon)
		if err != nil {
			ing.log.Warn("location encryption failed, storing coordinates unencrypted",
				"error", err)
		} else {
			obs.LocationEnc = bundle
		}
	}
	return obs
}

// classify runs inference and persists the usable predictions. Every failure
// past the observation insert is absorbed here.
func (ing *Ingestor) classify(ctx context.Context, observationID uint, imagePath string) []Candidate {
	predictions, err := ing.inference.Infer(ctx, imagePath, ing.topK)
	if err != nil {
		ing.log.Warn("inference failed, observation kept with no predictions",
			"observation_id", observationID,
			"error", err)
		return nil
	}

	var (
		results    []datastore.AIResult
		candidates []Candidate
	)
	rank := 0
	for _, p := range predictions {
		if rank >= ing.topK {
			break
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		speciesID, err := ing.store.ResolveOrCreateSpecies(name)
		if err != nil {
			ing.log.Warn("dropping prediction, species resolution failed",
				"observation_id", observationID,
				"label", name,
				"error", err)
			continue
		}
		rank++
		confidence := clampConfidence(p.Confidence)
		results = append(results, datastore.AIResult{
			SpeciesID:       speciesID,
			ConfidenceScore: confidence,
			Rank:            rank,
		})
		candidates = append(candidates, Candidate{
			Rank:           rank,
			SpeciesID:      speciesID,
			ScientificName: name,
			Confidence:     confidence,
		})
	}

	if len(results) == 0 {
		return nil
	}
	if err := ing.store.InsertResults(observationID, results); err != nil {
		ing.log.Error("persisting predictions failed",
			"observation_id", observationID,
			"error", err)
		return nil
	}
	if ing.metrics != nil {
		ing.metrics.PredictionsPersisted.Add(float64(len(results)))
	}
	return candidates
}

func (ing *Ingestor) countIngestion(outcome string) {
	if ing.metrics != nil {
		ing.metrics.IngestionsTotal.WithLabelValues(outcome).Inc()
	}
}

// ensure the concrete store satisfies the pipeline's dependency
var _ Store = (*datastore.DataStore)(nil)
