package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"travelorch/internal/models"
)

func activity(name string, duration, travel int, sourceID string) models.Activity {
	return models.Activity{Name: name, DurationMin: duration, TravelTimeFromPrevious: travel, SourceID: sourceID}
}

func TestEvaluateFeasibilityPassesWithinBudget(t *testing.T) {
	it := models.Itinerary{
		Pace: models.PaceModerate,
		Days: []models.DayItinerary{
			{Morning: models.TimeBlock{Activities: []models.Activity{
				activity("a", 60, 10, "way:1"), activity("b", 60, 10, "way:2"), activity("c", 60, 10, "way:3"),
			}}},
		},
	}
	result := EvaluateFeasibility(it)
	assert.True(t, result.Pass)
	assert.Empty(t, result.Violations)
	assert.Equal(t, 1.0, result.Score)
}

func TestEvaluateFeasibilityFlagsOverbookedDay(t *testing.T) {
	it := models.Itinerary{
		Pace: models.PaceModerate,
		Days: []models.DayItinerary{
			{Morning: models.TimeBlock{Activities: []models.Activity{
				activity("a", 400, 0, "way:1"), activity("b", 400, 0, "way:2"),
			}}},
		},
	}
	result := EvaluateFeasibility(it)
	assert.False(t, result.Pass)
	assert.NotEmpty(t, result.Violations)
	assert.Less(t, result.Score, 1.0)
}

func TestEvaluateFeasibilityFlagsLongTransportAsViolation(t *testing.T) {
	it := models.Itinerary{
		Pace: models.PaceModerate,
		Days: []models.DayItinerary{
			{Morning: models.TimeBlock{Activities: []models.Activity{
				activity("a", 30, 0, "way:1"), activity("b", 30, 90, "way:2"), activity("c", 30, 10, "way:3"),
			}}},
		},
	}
	result := EvaluateFeasibility(it)
	assert.False(t, result.Pass)
}

func TestEvaluateFeasibilityFlagsOffPaceActivityCountAsWarning(t *testing.T) {
	it := models.Itinerary{
		Pace: models.PaceRelaxed, // band [2,3]
		Days: []models.DayItinerary{
			{Morning: models.TimeBlock{Activities: []models.Activity{
				activity("a", 30, 0, "way:1"), activity("b", 30, 10, "way:2"),
				activity("c", 30, 10, "way:3"), activity("d", 30, 10, "way:4"), activity("e", 30, 10, "way:5"),
			}}},
		},
	}
	result := EvaluateFeasibility(it)
	assert.True(t, result.Pass) // a warning, not a violation
	assert.NotEmpty(t, result.Warnings)
}

func TestEvaluateGroundingAllValidSourceIDs(t *testing.T) {
	it := models.Itinerary{Days: []models.DayItinerary{
		{Morning: models.TimeBlock{Activities: []models.Activity{
			{Name: "Fort", SourceID: "way:123"},
			{Name: "Market", SourceID: "place_id:abc123"},
		}}},
	}}
	result := EvaluateGrounding(it)
	assert.True(t, result.Pass)
	assert.Equal(t, 1.0, result.Score)
}

func TestEvaluateGroundingFlagsMissingSourceID(t *testing.T) {
	it := models.Itinerary{Days: []models.DayItinerary{
		{Morning: models.TimeBlock{Activities: []models.Activity{
			{Name: "Fort", SourceID: "way:123"},
			{Name: "Invented Place", SourceID: ""},
		}}},
	}}
	result := EvaluateGrounding(it)
	assert.False(t, result.Pass)
	assert.Len(t, result.Violations, 1)
	assert.Less(t, result.Score, 1.0)
}

func TestEvaluateGroundingEmptyItineraryPasses(t *testing.T) {
	result := EvaluateGrounding(models.Itinerary{})
	assert.True(t, result.Pass)
	assert.Equal(t, 1.0, result.Score)
}

func TestExplanationNeedsSource(t *testing.T) {
	assert.True(t, ExplanationNeedsSource("This is a famous historic fort."))
	assert.False(t, ExplanationNeedsSource("This place is close to your hotel."))
}
