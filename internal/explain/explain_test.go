package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"travelorch/internal/models"
	"travelorch/internal/providers"
)

func TestClassifyRoutesQuestionTypes(t *testing.T) {
	cases := map[string]QuestionType{
		"why is the fort included?":        WhyPOI,
		"when do we visit the museum?":     Timing,
		"is this itinerary feasible?":      IsFeasible,
		"what if it rains on day 2?":       WhatIfWeather,
		"what if the museum is closed?":    WhatIfOther,
		"tell me about the city":          General,
	}
	for q, want := range cases {
		assert.Equal(t, want, classify(q), q)
	}
}

func itineraryWithFort() *models.Itinerary {
	return &models.Itinerary{
		City: "Jaipur",
		Days: []models.DayItinerary{
			{Morning: models.TimeBlock{Activities: []models.Activity{
				{Name: "Amber Fort", Category: models.CategoryHistorical, TimeSlot: "09:00", OpeningHours: "9am-5pm", SourceID: "way:1"},
			}}},
		},
	}
}

func TestExplainTimingFindsMatchingActivity(t *testing.T) {
	g := New(nil, nil, nil)
	it := itineraryWithFort()
	result := g.Explain(nil, "when is Amber Fort scheduled?", it, nil, nil)
	assert.Equal(t, Timing, result.QuestionType)
	assert.Contains(t, result.Explanation, "09:00")
	assert.Contains(t, result.Explanation, "9am-5pm")
}

func TestExplainTimingNoMatch(t *testing.T) {
	g := New(nil, nil, nil)
	it := itineraryWithFort()
	result := g.Explain(nil, "when is the beach visit?", it, nil, nil)
	assert.Equal(t, Timing, result.QuestionType)
	assert.Contains(t, result.Explanation, "couldn't find")
}

func TestExplainFeasibilityNoEvaluation(t *testing.T) {
	g := New(nil, nil, nil)
	result := g.Explain(nil, "is this feasible?", itineraryWithFort(), nil, nil)
	assert.Equal(t, IsFeasible, result.QuestionType)
	assert.Contains(t, result.Explanation, "not been evaluated")
}

func TestExplainFeasibilityReportsViolations(t *testing.T) {
	g := New(nil, nil, nil)
	evaluation := &models.Evaluation{
		Feasibility: models.EvaluationResult{Pass: false, Score: 0.4, Violations: []string{"day_1 exceeds available time"}},
	}
	result := g.Explain(nil, "is this realistic?", itineraryWithFort(), nil, evaluation)
	assert.Contains(t, result.Explanation, "not fully feasible")
	assert.Contains(t, result.Explanation, "day_1 exceeds available time")
}

func TestExplainWeatherNoRain(t *testing.T) {
	g := New(nil, nil, nil)
	result := g.Explain(nil, "will it rain?", itineraryWithFort(), []providers.DailyWeather{{IsRainy: false}}, nil)
	assert.Equal(t, WhatIfWeather, result.QuestionType)
	assert.Contains(t, result.Explanation, "No rain")
}

func TestExplainWeatherFlagsRainyDays(t *testing.T) {
	g := New(nil, nil, nil)
	result := g.Explain(nil, "what if it rains?", itineraryWithFort(), []providers.DailyWeather{{IsRainy: true}, {IsRainy: false}}, nil)
	assert.Contains(t, result.Explanation, "day_1")
	assert.NotContains(t, result.Explanation, "day_2")
}

func TestFuzzyMatchActivityRequiresWordOverlap(t *testing.T) {
	it := itineraryWithFort()
	_, ok := fuzzyMatchActivity("tell me about the weather", it)
	assert.False(t, ok)

	activity, ok := fuzzyMatchActivity("why visit amber fort", it)
	assert.True(t, ok)
	assert.Equal(t, "Amber Fort", activity.Name)
}
