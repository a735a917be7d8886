package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adilrumy05/SmartPlant-Backend/internal/datastore"
	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
)

func seedPending(t *testing.T, store *fakeStore, predictions ...datastore.AIResult) uint {
	t.Helper()
	obs := &datastore.Observation{PhotoURL: "/uploads/photo.jpg"}
	require.NoError(t, store.InsertObservation(obs))
	if len(predictions) > 0 {
		require.NoError(t, store.InsertResults(obs.ObservationID, predictions))
	}
	return obs.ObservationID
}

func TestVerifyAssignsTopRankedSpecies(t *testing.T) {
	store := newFakeStore()
	first, err := store.ResolveOrCreateSpecies("Nepenthes rajah")
	require.NoError(t, err)
	second, err := store.ResolveOrCreateSpecies("Nepenthes lowii")
	require.NoError(t, err)
	id := seedPending(t, store,
		datastore.AIResult{SpeciesID: first, ConfidenceScore: 0.9, Rank: 1},
		datastore.AIResult{SpeciesID: second, ConfidenceScore: 0.1, Rank: 2},
	)

	r := NewReviewer(store, nil, nil)
	require.NoError(t, r.Verify(id))

	obs, err := store.GetObservation(id)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusVerified, obs.Status)
	require.NotNil(t, obs.SpeciesID)
	assert.Equal(t, first, *obs.SpeciesID)
}

func TestVerifyWithoutPredictionsLeavesSpeciesUnset(t *testing.T) {
	store := newFakeStore()
	id := seedPending(t, store)

	r := NewReviewer(store, nil, nil)
	require.NoError(t, r.Verify(id))

	obs, err := store.GetObservation(id)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusVerified, obs.Status)
	assert.Nil(t, obs.SpeciesID)

	// Re-verifying a verified observation repeats the same write.
	require.NoError(t, r.Verify(id))
}

func TestRejectAndNotFound(t *testing.T) {
	store := newFakeStore()
	id := seedPending(t, store)

	r := NewReviewer(store, nil, nil)
	require.NoError(t, r.Reject(id))
	obs, err := store.GetObservation(id)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusRejected, obs.Status)

	err = r.Reject(999)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestFlagUnsureRecordsNotes(t *testing.T) {
	store := newFakeStore()
	id := seedPending(t, store)

	r := NewReviewer(store, nil, nil)
	require.NoError(t, r.FlagUnsure(id, "leaf shape is ambiguous"))

	obs, err := store.GetObservation(id)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusPending, obs.Status)
	require.NotNil(t, obs.Notes)
	assert.Equal(t, "leaf shape is ambiguous", *obs.Notes)
}

func TestConfirmExistingByName(t *testing.T) {
	store := newFakeStore()
	id := seedPending(t, store)
	archiver := &fakeArchiver{}

	r := NewReviewer(store, archiver, nil)
	require.NoError(t, r.ConfirmExisting(id, ConfirmTarget{ScientificName: "Shorea macrophylla"}))

	obs, err := store.GetObservation(id)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusVerified, obs.Status)
	require.NotNil(t, obs.SpeciesID)

	sp, err := store.GetSpecies(*obs.SpeciesID)
	require.NoError(t, err)
	assert.Equal(t, "Shorea macrophylla", sp.ScientificName)
	assert.Equal(t, "/species_images/shorea_macrophylla/photo.jpg", sp.ImageURL)

	require.Len(t, archiver.calls, 1)
	assert.Equal(t, "Shorea macrophylla|/uploads/photo.jpg", archiver.calls[0])
}

func TestConfirmExistingArchiveFailureStillVerifies(t *testing.T) {
	store := newFakeStore()
	id := seedPending(t, store)
	archiver := &fakeArchiver{err: errors.NewStd("disk full")}

	r := NewReviewer(store, archiver, nil)
	err := r.ConfirmExisting(id, ConfirmTarget{ScientificName: "Shorea macrophylla"})
	require.Error(t, err, "a failed copy is reported")

	obs, getErr := store.GetObservation(id)
	require.NoError(t, getErr)
	assert.Equal(t, datastore.StatusVerified, obs.Status, "status change proceeds despite archive failure")
	require.NotNil(t, obs.SpeciesID)
}

func TestConfirmExistingRequiresTarget(t *testing.T) {
	store := newFakeStore()
	id := seedPending(t, store)

	r := NewReviewer(store, nil, nil)
	err := r.ConfirmExisting(id, ConfirmTarget{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	obs, getErr := store.GetObservation(id)
	require.NoError(t, getErr)
	assert.Equal(t, datastore.StatusPending, obs.Status, "no partial writes")
}

func TestConfirmExistingFirstImageWins(t *testing.T) {
	store := newFakeStore()
	archiver := &fakeArchiver{}
	r := NewReviewer(store, archiver, nil)

	first := seedPending(t, store)
	require.NoError(t, r.ConfirmExisting(first, ConfirmTarget{ScientificName: "Nepenthes rajah"}))

	obs, err := store.GetObservation(first)
	require.NoError(t, err)
	sp, err := store.GetSpecies(*obs.SpeciesID)
	require.NoError(t, err)
	originalURL := sp.ImageURL
	require.NotEmpty(t, originalURL)

	second := seedPending(t, store)
	require.NoError(t, r.ConfirmExisting(second, ConfirmTarget{SpeciesID: &sp.SpeciesID}))

	sp, err = store.GetSpecies(sp.SpeciesID)
	require.NoError(t, err)
	assert.Equal(t, originalURL, sp.ImageURL, "reference image is never overwritten")
}

func TestConfirmNewAlwaysInserts(t *testing.T) {
	store := newFakeStore()
	existing, err := store.ResolveOrCreateSpecies("Nepenthes rajah")
	require.NoError(t, err)
	id := seedPending(t, store)

	r := NewReviewer(store, nil, nil)
	require.NoError(t, r.ConfirmNew(id, NewSpecies{
		ScientificName: "Nepenthes rajah",
		CommonName:     "Rajah pitcher-plant",
		IsEndangered:   true,
	}))

	obs, err := store.GetObservation(id)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusVerified, obs.Status)
	require.NotNil(t, obs.SpeciesID)
	assert.NotEqual(t, existing, *obs.SpeciesID, "confirm-new never reuses an existing row")

	sp, err := store.GetSpecies(*obs.SpeciesID)
	require.NoError(t, err)
	assert.True(t, sp.IsEndangered)
}

func TestListReviewQueuePassesThrough(t *testing.T) {
	store := newFakeStore()
	pending := seedPending(t, store)
	verified := seedPending(t, store)
	r := NewReviewer(store, nil, nil)
	require.NoError(t, r.Verify(verified))

	rows, err := r.ListReviewQueue(datastore.ObservationQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending, rows[0].ObservationID)
}
