package dialogue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"travelorch/internal/builder"
	"travelorch/internal/config"
	"travelorch/internal/edit"
	"travelorch/internal/explain"
	"travelorch/internal/models"
	"travelorch/internal/poisearch"
	"travelorch/internal/providers"
	"travelorch/internal/ratelimit"
	"travelorch/internal/session"
)

func testCfg() *config.Config {
	return &config.Config{
		MaxClarificationTurns: 6,
		SessionTTL:            time.Hour,
		LLMFastRPS:            100, LLMQualityRPS: 100, LLMCacheSize: 50, LLMCacheTTL: time.Minute,
		RouterRPS: 100, RouteCacheSize: 50, RouteCacheTTL: time.Minute,
	}
}

func testMachine(t *testing.T) *Machine {
	t.Helper()
	cfg := testCfg()
	log := zap.NewNop().Sugar()
	limiter := ratelimit.NewRegistry()
	llm := providers.NewLLM(context.Background(), cfg, limiter, log)
	router := providers.NewRouter(cfg, limiter, log)
	geocoder := providers.NewGeocoder(cfg, limiter, log) // empty NominatimBaseURL: fails fast, no network
	fallback := providers.NewPOIFallback(cfg, limiter, log)
	search := poisearch.New(geocoder, nil, fallback, log)
	b := builder.New(llm, router, log)
	editEngine := edit.NewEngine(b, search, router, log)
	explainGen := explain.New(llm, nil, log)
	store := session.New(cfg.SessionTTL)
	return New(store, search, b, router, nil, llm, editEngine, explainGen, cfg, log)
}

func TestExtractPreferencesParsesDurationAndMode(t *testing.T) {
	p := ExtractPreferences("I want a 5 day trip by road")
	require.NotNil(t, p.DurationDays)
	assert.Equal(t, 5, *p.DurationDays)
	assert.Equal(t, models.TravelRoad, p.TravelMode)
}

func TestExtractPreferencesParsesInterestsAndPace(t *testing.T) {
	p := ExtractPreferences("I like food and history, relaxed pace please")
	assert.ElementsMatch(t, []string{"food", "history"}, p.Interests)
	assert.Equal(t, models.PaceRelaxed, p.Pace)
}

func TestExtractPreferencesParsesCityFromPreposition(t *testing.T) {
	p := ExtractPreferences("I want to travel to Jaipur")
	assert.Equal(t, "Jaipur", p.City)
}

func TestExtractPreferencesTreatsBareReplyAsCity(t *testing.T) {
	p := ExtractPreferences("Jaipur")
	assert.Equal(t, "Jaipur", p.City)
}

func TestExtractPreferencesDoesNotTreatClarificationAnswerAsCity(t *testing.T) {
	p := ExtractPreferences("relaxed")
	assert.Empty(t, p.City)
	assert.Equal(t, models.PaceRelaxed, p.Pace)
}

func TestExtractPreferencesParsesExplicitDates(t *testing.T) {
	p := ExtractPreferences("I'm traveling 2026-08-01 to 2026-08-05")
	assert.Equal(t, []string{"2026-08-01", "2026-08-05"}, p.TravelDates)
}

func TestClarifyingQuestionForEachSlot(t *testing.T) {
	for _, slot := range models.PrioritySlots {
		assert.NotEmpty(t, clarifyingQuestionFor(slot))
	}
	assert.Equal(t, "Could you tell me more?", clarifyingQuestionFor("unknown_slot"))
}

func TestSummarizeIncludesDefaults(t *testing.T) {
	days := 3
	s := summarize(models.Preferences{City: "Jaipur", DurationDays: &days})
	assert.Contains(t, s, "3-day trip to Jaipur")
	assert.Contains(t, s, "moderate pace")
	assert.Contains(t, s, "unspecified")
}

func TestClassifyIntentPendingQuestionShortCircuitsToClarify(t *testing.T) {
	m := testMachine(t)
	intent := m.ClassifyIntent(context.Background(), "anything", false, true)
	assert.Equal(t, IntentClarify, intent)
}

func TestClassifyIntentFallsBackToRulesWhenLLMUnavailable(t *testing.T) {
	m := testMachine(t)
	intent := m.ClassifyIntent(context.Background(), "I want to plan a trip to Jaipur", false, false)
	assert.Equal(t, IntentPlanTrip, intent)
}

func TestClassifyIntentEditRequiresExistingItinerary(t *testing.T) {
	m := testMachine(t)
	withoutItinerary := m.ClassifyIntent(context.Background(), "swap day 1 and day 2", false, false)
	assert.NotEqual(t, IntentEdit, withoutItinerary)

	withItinerary := m.ClassifyIntent(context.Background(), "swap day 1 and day 2", true, false)
	assert.Equal(t, IntentEdit, withItinerary)
}

func TestTurnAsksClarifyingQuestionsInPriorityOrder(t *testing.T) {
	m := testMachine(t)
	result := m.Turn(context.Background(), "", "I want to travel to Jaipur")
	assert.Equal(t, StatusClarifying, result.Status)
	assert.Contains(t, result.Message, "How many days")
}

func TestTurnDoesNotRepeatAnAlreadyAskedClarification(t *testing.T) {
	m := testMachine(t)
	first := m.Turn(context.Background(), "", "I want to travel to Jaipur")
	require.Equal(t, StatusClarifying, first.Status)

	second := m.Turn(context.Background(), first.SessionID, "not a real duration answer")
	assert.Equal(t, StatusClarifying, second.Status)
	assert.NotEqual(t, first.Message, second.Message)
}

func TestTurnReachesConfirmationAfterMandatorySlotsFilled(t *testing.T) {
	m := testMachine(t)
	// ExtractPreferences only attempts city extraction when no other slot
	// matched in the same message, so the slots are filled one per turn,
	// in the machine's own priority order, to avoid racing that heuristic.
	turns := []string{
		"I want to travel to Jaipur",
		"3 days",
		"by road",
		"2026-08-01 to 2026-08-05",
		"food and history",
		"relaxed",
	}
	sessionID := ""
	var last TurnResult
	for _, text := range turns {
		last = m.Turn(context.Background(), sessionID, text)
		sessionID = last.SessionID
	}
	assert.Equal(t, StatusConfirmationRequired, last.Status)
}

func TestTurnWithoutMandatorySlotsErrorsAfterClarificationBudgetExhausted(t *testing.T) {
	cfg := testCfg()
	cfg.MaxClarificationTurns = 0 // force the mandatory-slot guard instead of another clarification
	m := testMachine(t)
	m.cfg = cfg
	result := m.Turn(context.Background(), "", "hello there")
	assert.Equal(t, StatusError, result.Status)
}

func TestHandleExplainUnknownSessionIsError(t *testing.T) {
	m := testMachine(t)
	result := m.HandleExplain(context.Background(), "does-not-exist", "why this place?")
	assert.Equal(t, StatusError, result.Status)
}

func TestTurnRoutesEditPhrasingWithoutItineraryToPlanTripInstead(t *testing.T) {
	// With no itinerary yet, ClassifyIntent refuses to route to the edit
	// handler even when the phrasing matches an edit pattern — it falls
	// back to plan-trip slot-filling instead.
	m := testMachine(t)
	sess := m.Store.Create()
	result := m.Turn(context.Background(), sess.ID, "swap day 1 and day 2")
	assert.NotEqual(t, StatusError, result.Status)
}
