package datastore

import (
	"strings"

	"gorm.io/gorm"

	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
)

// ResolveOrCreateSpecies maps a scientific name to a durable species id,
// minting a placeholder row on first sighting. Concurrent callers racing on
// the same new name are serialized on resolveMu so exactly one row is
// created; where a deployment carries a unique constraint on
// scientific_name, a losing insert additionally falls back to re-reading
// the winning row, so callers never see a duplicate-key error.
func (ds *DataStore) ResolveOrCreateSpecies(scientificName string) (uint, error) {
	name := strings.TrimSpace(scientificName)
	if name == "" {
		return 0, errors.Newf("species: scientific name must not be blank").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	if cached, found := ds.speciesCache.Get(name); found {
		if ds.metrics != nil {
			ds.metrics.SpeciesCacheHits.Inc()
		}
		return cached.(uint), nil
	}

	ds.resolveMu.Lock()
	defer ds.resolveMu.Unlock()

	var onRace func()
	if ds.metrics != nil {
		onRace = ds.metrics.SpeciesRaceRetries.Inc
	}
	id, created, err := resolveOrCreateSpeciesTx(ds.DB, name, onRace)
	if err != nil {
		return 0, err
	}
	if created && ds.metrics != nil {
		ds.metrics.SpeciesCreated.Inc()
	}

	ds.speciesCache.SetDefault(name, id)
	return id, nil
}

// resolveOrCreateSpeciesTx is the uncached get-or-create used both directly
// and inside multi-row transactions. Where several rows share a name (a
// confirm-new insert alongside a resolver row), the oldest is authoritative.
// It reports whether a new row was minted.
func resolveOrCreateSpeciesTx(tx *gorm.DB, name string, onRace func()) (id uint, created bool, err error) {
	var sp Species
	lookupErr := tx.Where("scientific_name = ?", name).Order("species_id ASC").First(&sp).Error
	if lookupErr == nil {
		return sp.SpeciesID, false, nil
	}
	if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return 0, false, errors.Newf("species: looking up %q: %w", name, lookupErr).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	sp = Species{ScientificName: name}
	if createErr := tx.Create(&sp).Error; createErr != nil {
		if !isDuplicateKey(createErr) {
			return 0, false, errors.Newf("species: creating %q: %w", name, createErr).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Build()
		}
		// Lost the insert race; the winning row is authoritative.
		if onRace != nil {
			onRace()
		}
		if rereadErr := tx.Where("scientific_name = ?", name).Order("species_id ASC").First(&sp).Error; rereadErr != nil {
			return 0, false, errors.Newf("species: re-reading %q after duplicate key: %w", name, rereadErr).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Build()
		}
		return sp.SpeciesID, false, nil
	}
	return sp.SpeciesID, true, nil
}

// isDuplicateKey detects a unique-constraint collision across drivers.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

// InsertSpecies always inserts a brand-new species row. Used by the
// confirm-new review transition, which intentionally never reuses an
// existing row.
func (ds *DataStore) InsertSpecies(sp *Species) error {
	if strings.TrimSpace(sp.ScientificName) == "" {
		return errors.Newf("species: scientific name must not be blank").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := ds.DB.Create(sp).Error; err != nil {
		return errors.Newf("species: inserting %q: %w", sp.ScientificName, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetSpecies retrieves a species row by id.
func (ds *DataStore) GetSpecies(speciesID uint) (Species, error) {
	var sp Species
	if err := ds.DB.First(&sp, speciesID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Species{}, errors.Newf("species %d not found", speciesID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Species{}, errors.Newf("species: getting %d: %w", speciesID, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return sp, nil
}

// SetSpeciesImageURLIfUnset fills in the species reference image, first
// writer wins. An already-set image_url is left untouched.
func (ds *DataStore) SetSpeciesImageURLIfUnset(speciesID uint, imageURL string) error {
	result := ds.DB.Model(&Species{}).
		Where("species_id = ? AND (image_url IS NULL OR image_url = '')", speciesID).
		Update("image_url", imageURL)
	if result.Error != nil {
		return errors.Newf("species: setting image for %d: %w", speciesID, result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}
