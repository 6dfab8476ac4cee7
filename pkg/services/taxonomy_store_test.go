package services

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/events"
)

func TestTaxonomyStore_Add_UniqueSlugs(t *testing.T) {
	td := newTestDirectory(t)
	ctx := context.Background()
	store := td.Taxonomies.GetTaxonomy("levels_of_care")

	first, err := store.Add(ctx, "Outpatient Care", "")
	require.NoError(t, err)
	second, err := store.Add(ctx, "Outpatient Care", "")
	require.NoError(t, err)

	a, err := store.GetByID(ctx, first)
	require.NoError(t, err)
	b, err := store.GetByID(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "outpatient-care", a.Slug)
	assert.Equal(t, "outpatient-care-1", b.Slug)

	// The same name in another type does not collide.
	otherID, err := td.Taxonomies.GetTaxonomy("features").Add(ctx, "Outpatient Care", "")
	require.NoError(t, err)
	other, err := td.Taxonomies.GetTaxonomy("features").GetByID(ctx, otherID)
	require.NoError(t, err)
	assert.Equal(t, "outpatient-care", other.Slug)
}

func TestTaxonomyStore_Add_Validation(t *testing.T) {
	td := newTestDirectory(t)

	_, err := td.Taxonomies.GetTaxonomy("features").Add(context.Background(), "  ", "desc")
	var ve *apperrors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Field)
}

func TestTaxonomyStore_Add_RetriesSlugRace(t *testing.T) {
	td := newTestDirectory(t)
	td.taxonomyRepo.conflictsOnCreate = maxSlugAttempts - 1

	id, err := td.Taxonomies.GetTaxonomy("features").Add(context.Background(), "Pool", "")
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestTaxonomyStore_Add_GivesUpAfterRepeatedRaces(t *testing.T) {
	td := newTestDirectory(t)
	td.taxonomyRepo.conflictsOnCreate = maxSlugAttempts

	_, err := td.Taxonomies.GetTaxonomy("features").Add(context.Background(), "Pool", "")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestTaxonomyStore_Update_SlugStability(t *testing.T) {
	td := newTestDirectory(t)
	ctx := context.Background()
	store := td.Taxonomies.GetTaxonomy("features")

	id := td.addItem(t, "features", "Pool")
	td.addItem(t, "features", "Gym")

	// Description-only change keeps the slug.
	require.NoError(t, store.Update(ctx, id, "Pool", "Heated"))
	item, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pool", item.Slug)
	assert.Equal(t, "Heated", item.Description)

	// Renaming regenerates it, avoiding other items' slugs.
	require.NoError(t, store.Update(ctx, id, "Gym", ""))
	item, err = store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "gym-1", item.Slug)

	// The item's own slug does not count as a collision.
	require.NoError(t, store.Update(ctx, id, "GYM", ""))
	item, err = store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "gym-1", item.Slug)
}

func TestTaxonomyStore_Update_NotFound(t *testing.T) {
	td := newTestDirectory(t)

	err := td.Taxonomies.GetTaxonomy("features").Update(context.Background(), 404, "Pool", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTaxonomyStore_Delete_DoesNotCascade(t *testing.T) {
	td := newTestDirectory(t)
	ctx := context.Background()

	itemID := td.addItem(t, "features", "Pool")
	in := validInput("Harbor House")
	in.Taxonomies = map[string][]string{"features": {strconv.FormatInt(itemID, 10)}}
	facilityID, err := td.Facilities.AddFacility(ctx, in)
	require.NoError(t, err)

	deleted, err := td.Taxonomies.GetTaxonomy("features").Delete(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = td.Taxonomies.GetTaxonomy("features").Delete(ctx, itemID)
	require.NoError(t, err)
	assert.False(t, deleted)

	// The orphaned reference stays, but is no longer resolved.
	f, err := td.Facilities.GetFacility(ctx, facilityID)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []int64{itemID}, f.Taxonomies["features"].IDs)
	assert.Empty(t, f.Taxonomies["features"].Names)
}

func TestTaxonomyStore_GetUsageCount_CachedUntilFacilityWrite(t *testing.T) {
	td := newTestDirectory(t)
	ctx := context.Background()
	store := td.Taxonomies.GetTaxonomy("features")
	itemID := td.addItem(t, "features", "Pool")

	count, err := store.GetUsageCount(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	in := validInput("Harbor House")
	in.Taxonomies = map[string][]string{"features": {strconv.FormatInt(itemID, 10)}}
	_, err = td.Facilities.AddFacility(ctx, in)
	require.NoError(t, err)

	count, err = store.GetUsageCount(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTaxonomyStore_EmitsEvents(t *testing.T) {
	td := newTestDirectory(t)
	ctx := context.Background()

	var got []events.Event
	td.bus.Subscribe("recorder", func(ctx context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})

	store := td.Taxonomies.GetTaxonomy("therapies")
	id, err := store.Add(ctx, "CBT", "")
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, id, "Cognitive Behavioral Therapy", ""))
	_, err = store.Delete(ctx, id)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, events.TaxonomyItemCreated, got[0].Kind)
	assert.Equal(t, events.TaxonomyItemUpdated, got[1].Kind)
	assert.Equal(t, events.TaxonomyItemDeleted, got[2].Kind)
	for _, e := range got {
		assert.Equal(t, "therapies", e.TaxonomyType)
		assert.Equal(t, id, e.TaxonomyID)
	}
}
