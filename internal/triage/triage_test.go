package triage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adilrumy05/SmartPlant-Backend/internal/datastore"
	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
	"github.com/adilrumy05/SmartPlant-Backend/internal/worker"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	mu           sync.Mutex
	species      []datastore.Species
	observations map[uint]*datastore.Observation
	results      map[uint][]datastore.AIResult

	nextSpeciesID     uint
	nextObservationID uint

	failInsertObservation bool
	failResolve           map[string]bool
	failInsertResults     bool
	failSetImageURL       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		observations:  map[uint]*datastore.Observation{},
		results:       map[uint][]datastore.AIResult{},
		failResolve:   map[string]bool{},
		nextSpeciesID: 1, nextObservationID: 1,
	}
}

func (f *fakeStore) ResolveOrCreateSpecies(name string) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.Newf("species: blank name").Category(errors.CategoryValidation).Build()
	}
	if f.failResolve[name] {
		return 0, errors.Newf("species: resolve failed").Category(errors.CategoryDatabase).Build()
	}
	for _, sp := range f.species {
		if sp.ScientificName == name {
			return sp.SpeciesID, nil
		}
	}
	sp := datastore.Species{SpeciesID: f.nextSpeciesID, ScientificName: name}
	f.nextSpeciesID++
	f.species = append(f.species, sp)
	return sp.SpeciesID, nil
}

func (f *fakeStore) InsertSpecies(sp *datastore.Species) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(sp.ScientificName) == "" {
		return errors.Newf("species: blank name").Category(errors.CategoryValidation).Build()
	}
	sp.SpeciesID = f.nextSpeciesID
	f.nextSpeciesID++
	f.species = append(f.species, *sp)
	return nil
}

func (f *fakeStore) GetSpecies(id uint) (datastore.Species, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sp := range f.species {
		if sp.SpeciesID == id {
			return sp, nil
		}
	}
	return datastore.Species{}, errors.Newf("species %d not found", id).Category(errors.CategoryNotFound).Build()
}

func (f *fakeStore) SetSpeciesImageURLIfUnset(id uint, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSetImageURL {
		return errors.Newf("species: image update failed").Category(errors.CategoryDatabase).Build()
	}
	for i := range f.species {
		if f.species[i].SpeciesID == id && f.species[i].ImageURL == "" {
			f.species[i].ImageURL = url
		}
	}
	return nil
}

func (f *fakeStore) InsertObservation(obs *datastore.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertObservation {
		return errors.Newf("observation: insert failed").Category(errors.CategoryDatabase).Build()
	}
	if obs.Status == "" {
		obs.Status = datastore.StatusPending
	}
	if obs.Source == "" {
		obs.Source = "camera"
	}
	obs.ObservationID = f.nextObservationID
	obs.CreatedAt = time.Now()
	f.nextObservationID++
	stored := *obs
	f.observations[obs.ObservationID] = &stored
	return nil
}

func (f *fakeStore) GetObservation(id uint) (datastore.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obs, ok := f.observations[id]
	if !ok {
		return datastore.Observation{}, errors.Newf("observation %d not found", id).Category(errors.CategoryNotFound).Build()
	}
	return *obs, nil
}

func (f *fakeStore) GetObservationWithResults(id uint) (datastore.Observation, []datastore.ResultWithSpecies, error) {
	obs, err := f.GetObservation(id)
	if err != nil {
		return datastore.Observation{}, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var joined []datastore.ResultWithSpecies
	for _, r := range f.results[id] {
		row := datastore.ResultWithSpecies{
			ObservationID:   id,
			SpeciesID:       r.SpeciesID,
			ConfidenceScore: r.ConfidenceScore,
			Rank:            r.Rank,
		}
		for _, sp := range f.species {
			if sp.SpeciesID == r.SpeciesID {
				row.ScientificName = sp.ScientificName
			}
		}
		joined = append(joined, row)
	}
	return obs, joined, nil
}

func (f *fakeStore) InsertResults(id uint, results []datastore.AIResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertResults {
		return errors.Newf("results: insert failed").Category(errors.CategoryDatabase).Build()
	}
	f.results[id] = append(f.results[id], results...)
	return nil
}

func (f *fakeStore) SetObservationReview(id uint, status string, speciesID *uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	obs, ok := f.observations[id]
	if !ok {
		return errors.Newf("observation %d not found", id).Category(errors.CategoryNotFound).Build()
	}
	obs.Status = status
	if speciesID != nil {
		obs.SpeciesID = speciesID
	}
	return nil
}

func (f *fakeStore) UpdateObservation(update datastore.ObservationUpdate) error {
	if update.SpeciesName != nil && strings.TrimSpace(*update.SpeciesName) != "" {
		id, err := f.ResolveOrCreateSpecies(*update.SpeciesName)
		if err != nil {
			return err
		}
		f.mu.Lock()
		if obs, ok := f.observations[update.ObservationID]; ok {
			obs.SpeciesID = &id
		}
		f.mu.Unlock()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obs, ok := f.observations[update.ObservationID]
	if !ok {
		return errors.Newf("observation %d not found", update.ObservationID).Category(errors.CategoryNotFound).Build()
	}
	if update.Status != nil {
		if !datastore.ValidStatus(*update.Status) {
			return errors.Newf("invalid status %q", *update.Status).Category(errors.CategoryValidation).Build()
		}
		obs.Status = *update.Status
	}
	if update.Notes != nil {
		obs.Notes = update.Notes
	}
	return nil
}

func (f *fakeStore) ListObservations(query datastore.ObservationQuery) ([]datastore.ObservationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	statuses := query.Statuses
	if len(statuses) == 0 {
		statuses = []string{datastore.StatusPending}
	}
	var rows []datastore.ObservationSummary
	for id, obs := range f.observations {
		matched := false
		for _, s := range statuses {
			if obs.Status == s {
				matched = true
			}
		}
		if !matched {
			continue
		}
		top := 0.0
		for _, r := range f.results[id] {
			if r.ConfidenceScore > top {
				top = r.ConfidenceScore
			}
		}
		if query.AutoFlaggedOnly && top >= query.Threshold {
			continue
		}
		rows = append(rows, datastore.ObservationSummary{
			ObservationID: id,
			Status:        obs.Status,
			TopConfidence: top,
		})
	}
	return rows, nil
}

// fakeInferencer returns canned predictions or a canned error.
type fakeInferencer struct {
	mu          sync.Mutex
	predictions []worker.Prediction
	err         error
	calls       int
	lastTopK    int
	lastImage   string
}

func (f *fakeInferencer) Infer(_ context.Context, imagePath string, topK int) ([]worker.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTopK = topK
	f.lastImage = imagePath
	return f.predictions, f.err
}

// fakeArchiver records archival calls.
type fakeArchiver struct {
	err   error
	calls []string // "name|src"
}

func (f *fakeArchiver) ArchiveObservationPhoto(name, src string) (string, error) {
	f.calls = append(f.calls, name+"|"+src)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("/species_images/%s/%s", strings.ToLower(strings.ReplaceAll(name, " ", "_")), "photo.jpg"), nil
}
