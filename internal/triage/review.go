package triage

import (
	"log/slog"
	"strings"

	"github.com/adilrumy05/SmartPlant-Backend/internal/datastore"
	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
	"github.com/adilrumy05/SmartPlant-Backend/internal/logging"
	"github.com/adilrumy05/SmartPlant-Backend/internal/observability/metrics"
)

// Archiver copies a confirmed observation photo into the per-species
// reference folder and returns the public URL of the archived copy.
type Archiver interface {
	ArchiveObservationPhoto(scientificName, srcPath string) (string, error)
}

// ConfirmTarget names the species an administrator is confirming an
// observation as. Exactly one of SpeciesID or ScientificName must be set; a
// name is resolved with get-or-create.
type ConfirmTarget struct {
	SpeciesID      *uint
	ScientificName string
}

// NewSpecies is the payload for confirming an observation as a species not
// yet in the database. It always inserts a fresh row.
type NewSpecies struct {
	ScientificName string
	CommonName     string
	IsEndangered   bool
	Description    string
}

// Reviewer applies administrator transitions to observations. Verified and
// rejected are terminal states; re-applying a transition to an
// already-reviewed observation simply repeats the same write.
type Reviewer struct {
	store    Store
	archiver Archiver // optional
	log      *slog.Logger
	metrics  *metrics.TriageMetrics
}

// NewReviewer wires the review workflow. archiver and triageMetrics may be
// nil; without an archiver, confirmations skip image archival.
func NewReviewer(store Store, archiver Archiver, triageMetrics *metrics.TriageMetrics) *Reviewer {
	return &Reviewer{
		store:    store,
		archiver: archiver,
		log:      logging.ForService("review"),
		metrics:  triageMetrics,
	}
}

// Verify accepts the pipeline's top-ranked prediction. If the observation
// has predictions, its species becomes the rank-1 species; with none, only
// the status changes.
func (r *Reviewer) Verify(observationID uint) error {
	_, results, err := r.store.GetObservationWithResults(observationID)
	if err != nil {
		return err
	}

	var speciesID *uint
	if len(results) > 0 {
		speciesID = &results[0].SpeciesID
	}
	if err := r.store.SetObservationReview(observationID, datastore.StatusVerified, speciesID); err != nil {
		return err
	}
	r.countTransition("verify")
	r.log.Info("observation verified",
		"observation_id", observationID,
		"species_assigned", speciesID != nil)
	return nil
}

// Reject marks the observation as rejected. The species assignment, if any,
// is left untouched.
func (r *Reviewer) Reject(observationID uint) error {
	if err := r.store.SetObservationReview(observationID, datastore.StatusRejected, nil); err != nil {
		return err
	}
	r.countTransition("reject")
	r.log.Info("observation rejected", "observation_id", observationID)
	return nil
}

// FlagUnsure returns the observation to the pending queue, optionally
// recording reviewer notes. A pending observation stays pending.
func (r *Reviewer) FlagUnsure(observationID uint, notes string) error {
	update := datastore.ObservationUpdate{
		ObservationID: observationID,
		Status:        strPtr(datastore.StatusPending),
	}
	if notes != "" {
		update.Notes = &notes
	}
	if err := r.store.UpdateObservation(update); err != nil {
		return err
	}
	r.countTransition("flag_unsure")
	r.log.Info("observation flagged for re-review", "observation_id", observationID)
	return nil
}

// ConfirmExisting assigns a known species to the observation and verifies
// it. The observation photo becomes the species reference image when the
// species does not have one yet. Image archival is best-effort for the
// status change but its failure is still reported to the caller.
func (r *Reviewer) ConfirmExisting(observationID uint, target ConfirmTarget) error {
	obs, err := r.store.GetObservation(observationID)
	if err != nil {
		return err
	}

	var species datastore.Species
	switch {
	case target.SpeciesID != nil:
		species, err = r.store.GetSpecies(*target.SpeciesID)
		if err != nil {
			return err
		}
	case strings.TrimSpace(target.ScientificName) != "":
		id, resolveErr := r.store.ResolveOrCreateSpecies(target.ScientificName)
		if resolveErr != nil {
			return resolveErr
		}
		species, err = r.store.GetSpecies(id)
		if err != nil {
			return err
		}
	default:
		return errors.Newf("confirm requires a species id or a scientific name").
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	}

	archiveErr := r.archivePhoto(&species, obs.PhotoURL)

	if err := r.store.SetObservationReview(observationID, datastore.StatusVerified, &species.SpeciesID); err != nil {
		return err
	}
	r.countTransition("confirm_existing")
	r.log.Info("observation confirmed as existing species",
		"observation_id", observationID,
		"species_id", species.SpeciesID)
	return archiveErr
}

// ConfirmNew records the observation as a species absent from the database.
// Unlike ConfirmExisting this never reuses a row, even when the scientific
// name already exists.
func (r *Reviewer) ConfirmNew(observationID uint, payload NewSpecies) error {
	obs, err := r.store.GetObservation(observationID)
	if err != nil {
		return err
	}

	species := &datastore.Species{
		ScientificName: strings.TrimSpace(payload.ScientificName),
		CommonName:     payload.CommonName,
		IsEndangered:   payload.IsEndangered,
		Description:    payload.Description,
	}
	if err := r.store.InsertSpecies(species); err != nil {
		return err
	}

	archiveErr := r.archivePhoto(species, obs.PhotoURL)

	if err := r.store.SetObservationReview(observationID, datastore.StatusVerified, &species.SpeciesID); err != nil {
		return err
	}
	r.countTransition("confirm_new")
	r.log.Info("observation confirmed as new species",
		"observation_id", observationID,
		"species_id", species.SpeciesID,
		"scientific_name", species.ScientificName)
	return archiveErr
}

// Update applies an arbitrary administrator edit (status, notes, species by
// name) as one transaction.
func (r *Reviewer) Update(update datastore.ObservationUpdate) error {
	if err := r.store.UpdateObservation(update); err != nil {
		return err
	}
	r.countTransition("update")
	return nil
}

// ListReviewQueue returns a page of observations for the review UI.
func (r *Reviewer) ListReviewQueue(query datastore.ObservationQuery) ([]datastore.ObservationSummary, error) {
	return r.store.ListObservations(query)
}

// Detail returns one observation with its ranked predictions.
func (r *Reviewer) Detail(observationID uint) (datastore.Observation, []datastore.ResultWithSpecies, error) {
	return r.store.GetObservationWithResults(observationID)
}

// archivePhoto copies the photo into the species folder and fills in the
// species reference image if it is still unset. The returned error reports
// a failed copy without having blocked the review transition.
func (r *Reviewer) archivePhoto(species *datastore.Species, photoURL string) error {
	if r.archiver == nil || photoURL == "" {
		return nil
	}

	url, err := r.archiver.ArchiveObservationPhoto(species.ScientificName, photoURL)
	if err != nil {
		r.log.Warn("photo archival failed",
			"species_id", species.SpeciesID,
			"photo", photoURL,
			"error", err)
		return err
	}
	if err := r.store.SetSpeciesImageURLIfUnset(species.SpeciesID, url); err != nil {
		r.log.Warn("species image fill-in failed",
			"species_id", species.SpeciesID,
			"error", err)
		return err
	}
	return nil
}

func (r *Reviewer) countTransition(transition string) {
	if r.metrics != nil {
		r.metrics.ReviewTransitions.WithLabelValues(transition).Inc()
	}
}

func strPtr(s string) *string { return &s }
