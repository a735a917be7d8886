// model.go this code defines the data model for the application
package datastore

import "time"

// Observation review statuses.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusRejected = "rejected"
)

// ValidStatus reports whether s is a known review status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	default:
		return false
	}
}

// Species is the canonical identity for a scientific name, independent of
// any single observation. Rows are minted implicitly by resolve-or-create on
// first sighting, or explicitly when an administrator confirms a new
// species. Never deleted. The scientific name is indexed but deliberately
// not unique: the confirm-new review transition always inserts, even when a
// row with the same name exists. Resolve-or-create treats the oldest row as
// authoritative.
type Species struct {
	SpeciesID      uint   `gorm:"column:species_id;primaryKey"`
	ScientificName string `gorm:"index:idx_species_sciname;not null"` // case-sensitive match key
	CommonName     string
	IsEndangered   bool
	Description    string
	ImageURL       string // first-writer-wins, never overwritten once set
	CreatedAt      time.Time
}

// TableName overrides the default table name.
func (Species) TableName() string { return "species" }

// Observation represents one submitted photo plus its location metadata and
// review status.
type Observation struct {
	ObservationID uint    `gorm:"column:observation_id;primaryKey"`
	UserID        *uint   `gorm:"index"` // nullable, anonymous submissions allowed
	SpeciesID     *uint   `gorm:"index"` // nullable until resolved by review
	PhotoURL      string  // immutable once set
	Latitude      float64 `gorm:"column:location_latitude"` // 0.0 when not supplied, by design
	Longitude     float64 `gorm:"column:location_longitude"`
	LocationEnc   string  `gorm:"type:text"` // opaque encrypted location bundle
	LocationName  string
	Source        string `gorm:"default:camera"`
	Status        string `gorm:"type:varchar(20);index;default:pending"`
	Notes         *string
	Masked        bool // hide exact location in public views
	CreatedAt     time.Time

	Results []AIResult `gorm:"foreignKey:ObservationID;references:ObservationID"`
}

// TableName overrides the default table name.
func (Observation) TableName() string { return "plant_observations" }

// AIResult is one ranked (species, confidence) prediction attached to an
// observation. Immutable once written; a re-scan produces a new observation.
type AIResult struct {
	AIResultID      uint    `gorm:"column:ai_result_id;primaryKey"`
	ObservationID   uint    `gorm:"uniqueIndex:idx_ai_results_obs_rank;not null"`
	SpeciesID       uint    `gorm:"index;not null"`
	ConfidenceScore float64 // clamped to [0,1], 4-decimal precision
	Rank            int     `gorm:"column:rank;uniqueIndex:idx_ai_results_obs_rank"` // 1 = most confident
}

// TableName overrides the default table name.
func (AIResult) TableName() string { return "ai_results" }
