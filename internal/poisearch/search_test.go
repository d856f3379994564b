package poisearch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"travelorch/internal/models"
)

func ratedPOI(source string, id string, rating float64) models.POI {
	return models.POI{DataSource: models.DataSource(source), SourceID: id, Rating: &rating}
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	a := models.POI{DataSource: models.SourceOpenStreetMap, SourceID: "1", Name: "first"}
	b := models.POI{DataSource: models.SourceOpenStreetMap, SourceID: "1", Name: "second"}
	c := models.POI{DataSource: models.SourceGooglePlaces, SourceID: "1", Name: "third"}

	out := dedupe([]models.POI{a, b, c})
	assert.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Name)
	assert.Equal(t, "third", out[1].Name)
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	low := ratedPOI("openstreetmap", "1", 2.0)
	high := ratedPOI("openstreetmap", "2", 4.8)
	mid := ratedPOI("openstreetmap", "3", 3.5)

	out := rank([]models.POI{low, high, mid})
	assert.Equal(t, "2", out[0].SourceID)
	assert.Equal(t, "3", out[1].SourceID)
	assert.Equal(t, "1", out[2].SourceID)
}

func TestRankDoesNotMutateInput(t *testing.T) {
	in := []models.POI{ratedPOI("openstreetmap", "1", 1), ratedPOI("openstreetmap", "2", 5)}
	_ = rank(in)
	assert.Equal(t, "1", in[0].SourceID)
}

func TestNormalizeCityNameTitleCases(t *testing.T) {
	assert.Equal(t, "New Delhi", NormalizeCityName("new delhi"))
	assert.Equal(t, "Jaipur", NormalizeCityName("JAIPUR"))
}

func TestScoreRewardsRichnessAndHours(t *testing.T) {
	bare := models.POI{}
	rich := models.POI{Description: "a well known fort", OpeningHours: "9-5"}
	assert.Greater(t, score(rich), score(bare))
}
