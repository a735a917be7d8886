package datastore

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
)

// ObservationQuery filters the review-queue listing.
type ObservationQuery struct {
	Statuses        []string
	Page            int // 1-based
	PageSize        int
	AutoFlaggedOnly bool
	Threshold       float64 // best-confidence cutoff when AutoFlaggedOnly is set
}

// ObservationSummary is one row of the review-queue listing.
type ObservationSummary struct {
	ObservationID  uint      `gorm:"column:observation_id"`
	PhotoURL       string    `gorm:"column:photo_url"`
	Status         string    `gorm:"column:status"`
	TopConfidence  float64   `gorm:"column:top_confidence"`
	TopSpeciesName string    `gorm:"column:top_species_name"`
	LocationName   string    `gorm:"column:location_name"`
	Latitude       float64   `gorm:"column:location_latitude"`
	Longitude      float64   `gorm:"column:location_longitude"`
	UserID         *uint     `gorm:"column:user_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// ResultWithSpecies is one prediction joined with its species identity, for
// the observation detail view.
type ResultWithSpecies struct {
	AIResultID      uint    `gorm:"column:ai_result_id"`
	ObservationID   uint    `gorm:"column:observation_id"`
	ConfidenceScore float64 `gorm:"column:confidence_score"`
	Rank            int     `gorm:"column:rank"`
	SpeciesID       uint    `gorm:"column:species_id"`
	ScientificName  string  `gorm:"column:scientific_name"`
	CommonName      string  `gorm:"column:common_name"`
	Description     string  `gorm:"column:description"`
	ImageURL        string  `gorm:"column:image_url"`
}

// ObservationUpdate is the generic transactional update: any combination of
// status, notes and species assignment, applied atomically. A non-empty
// SpeciesName is resolved-or-created inside the same transaction.
type ObservationUpdate struct {
	ObservationID uint
	Status        *string
	Notes         *string
	SpeciesName   *string
}

// InsertObservation persists a new observation row. The caller-provided
// struct is updated with the assigned id and creation timestamp.
func (ds *DataStore) InsertObservation(obs *Observation) error {
	if obs.Status == "" {
		obs.Status = StatusPending
	}
	if obs.Source == "" {
		obs.Source = "camera"
	}
	if err := ds.DB.Create(obs).Error; err != nil {
		return errors.Newf("observation: inserting: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetObservation retrieves an observation by id.
func (ds *DataStore) GetObservation(observationID uint) (Observation, error) {
	var obs Observation
	if err := ds.DB.First(&obs, observationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Observation{}, notFoundErr(observationID)
		}
		return Observation{}, errors.Newf("observation: getting %d: %w", observationID, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return obs, nil
}

// GetObservationWithResults retrieves an observation together with its
// ranked predictions joined with species data.
func (ds *DataStore) GetObservationWithResults(observationID uint) (Observation, []ResultWithSpecies, error) {
	obs, err := ds.GetObservation(observationID)
	if err != nil {
		return Observation{}, nil, err
	}

	var results []ResultWithSpecies
	err = ds.DB.Table("ai_results ar").
		Select(`ar.ai_result_id, ar.observation_id, ar.confidence_score, ar.rank,
			s.species_id, s.scientific_name, s.common_name, s.description, s.image_url`).
		Joins("LEFT JOIN species s ON s.species_id = ar.species_id").
		Where("ar.observation_id = ?", observationID).
		Order("ar.rank ASC").
		Scan(&results).Error
	if err != nil {
		return Observation{}, nil, errors.Newf("observation: loading results for %d: %w", observationID, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return obs, results, nil
}

// InsertResults persists ranked predictions for an observation in one
// transaction.
func (ds *DataStore) InsertResults(observationID uint, results []AIResult) error {
	if len(results) == 0 {
		return nil
	}
	for i := range results {
		results[i].ObservationID = observationID
	}
	if err := ds.DB.Create(&results).Error; err != nil {
		return errors.Newf("observation: inserting %d results for %d: %w", len(results), observationID, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// SetObservationReview applies a review outcome: the status, and optionally
// the resolved species, in one update. Re-applying the same outcome to an
// already-reviewed observation is accepted.
func (ds *DataStore) SetObservationReview(observationID uint, status string, speciesID *uint) error {
	updates := map[string]any{"status": status}
	if speciesID != nil {
		updates["species_id"] = *speciesID
	}

	result := ds.DB.Model(&Observation{}).
		Where("observation_id = ?", observationID).
		Updates(updates)
	if result.Error != nil {
		return errors.Newf("observation: reviewing %d: %w", observationID, result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if result.RowsAffected == 0 {
		return notFoundErr(observationID)
	}
	return nil
}

// UpdateObservation applies the generic update as one all-or-nothing unit:
// species resolution and the observation write either both happen or
// neither does.
func (ds *DataStore) UpdateObservation(update ObservationUpdate) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{}

		if update.SpeciesName != nil && strings.TrimSpace(*update.SpeciesName) != "" {
			speciesID, _, err := resolveOrCreateSpeciesTx(tx, strings.TrimSpace(*update.SpeciesName), nil)
			if err != nil {
				return err
			}
			updates["species_id"] = speciesID
		}
		if update.Status != nil {
			if !ValidStatus(*update.Status) {
				return errors.Newf("observation: invalid status %q", *update.Status).
					Component("datastore").
					Category(errors.CategoryValidation).
					Build()
			}
			updates["status"] = *update.Status
		}
		if update.Notes != nil {
			updates["notes"] = *update.Notes
		}

		if len(updates) == 0 {
			// Nothing to apply; still verify the target exists.
			var count int64
			if err := tx.Model(&Observation{}).Where("observation_id = ?", update.ObservationID).Count(&count).Error; err != nil {
				return errors.Newf("observation: checking %d: %w", update.ObservationID, err).
					Component("datastore").
					Category(errors.CategoryDatabase).
					Build()
			}
			if count == 0 {
				return notFoundErr(update.ObservationID)
			}
			return nil
		}

		result := tx.Model(&Observation{}).
			Where("observation_id = ?", update.ObservationID).
			Updates(updates)
		if result.Error != nil {
			return errors.Newf("observation: updating %d: %w", update.ObservationID, result.Error).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Build()
		}
		if result.RowsAffected == 0 {
			return notFoundErr(update.ObservationID)
		}
		return nil
	})
}

// ListObservations returns a page of review-queue summaries. The
// auto-flagged view keeps only observations whose best confidence is below
// the threshold; observations with no predictions count as zero confidence.
func (ds *DataStore) ListObservations(query ObservationQuery) ([]ObservationSummary, error) {
	statuses := query.Statuses
	if len(statuses) == 0 {
		statuses = []string{StatusPending}
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize < 1 {
		pageSize = 100
	}
	if pageSize > 1000 {
		pageSize = 1000
	}

	const topConfidence = "COALESCE(MAX(ar.confidence_score), 0)"

	q := ds.DB.Table("plant_observations po").
		Select(`po.observation_id, po.photo_url, po.status, `+topConfidence+` AS top_confidence,
			po.created_at, po.location_name, po.location_latitude, po.location_longitude, po.user_id,
			(SELECT s.scientific_name
			 FROM ai_results ar2
			 LEFT JOIN species s ON s.species_id = ar2.species_id
			 WHERE ar2.observation_id = po.observation_id
			 ORDER BY ar2.rank ASC, ar2.confidence_score DESC
			 LIMIT 1) AS top_species_name`).
		Joins("LEFT JOIN ai_results ar ON ar.observation_id = po.observation_id").
		Where("po.status IN ?", statuses).
		Group(`po.observation_id, po.photo_url, po.status, po.created_at,
			po.location_name, po.location_latitude, po.location_longitude, po.user_id`)

	if query.AutoFlaggedOnly {
		q = q.Having(topConfidence+" < ?", query.Threshold)
	}

	var rows []ObservationSummary
	err := q.Order("po.created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Newf("observation: listing: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return rows, nil
}

func notFoundErr(observationID uint) error {
	return errors.Newf("observation %d not found", observationID).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Build()
}
