package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"travelorch/internal/config"
	"travelorch/internal/dialogue"
)

func testConfig() *config.Config {
	return &config.Config{
		SessionTTL:            time.Hour,
		MaxClarificationTurns: 6,
		LLMFastRPS:            100, LLMQualityRPS: 100, LLMCacheSize: 50, LLMCacheTTL: time.Minute,
		RouterRPS: 100, RouteCacheSize: 50, RouteCacheTTL: time.Minute,
		POIProviderRPS: 100, POICacheSize: 50, POICacheTTL: time.Minute,
		GeocoderRPS: 100, GeocodeCacheSize: 50, GeocodeCacheTTL: time.Minute,
		WeatherRPS: 100,
		// GoogleCloudProjectID, GeminiAPIKey, GoogleMapsAPIKey all left empty
		// so construction degrades every optional dependency without
		// attempting a network call.
	}
}

func TestNewDegradesGracefullyWithoutOptionalDependencies(t *testing.T) {
	svc := New(context.Background(), testConfig(), zap.NewNop().Sugar())
	require.NotNil(t, svc)
	assert.NotNil(t, svc.Dialogue)
	assert.NotNil(t, svc.Sessions)
	assert.NotNil(t, svc.Analytics)
}

func TestTurnRecordsAnalyticsWithoutPanicking(t *testing.T) {
	svc := New(context.Background(), testConfig(), zap.NewNop().Sugar())
	result := svc.Turn(context.Background(), "", "I want to travel to Jaipur")
	assert.Equal(t, dialogue.StatusClarifying, result.Status)
	assert.NotEmpty(t, result.SessionID)
}

func TestEditUnknownSessionIsError(t *testing.T) {
	svc := New(context.Background(), testConfig(), zap.NewNop().Sugar())
	result := svc.Edit(context.Background(), "does-not-exist", "swap day 1 and day 2")
	assert.Equal(t, dialogue.StatusError, result.Status)
}

func TestEditWithNoItineraryIsError(t *testing.T) {
	svc := New(context.Background(), testConfig(), zap.NewNop().Sugar())
	sess := svc.Sessions.Create()
	result := svc.Edit(context.Background(), sess.ID, "swap day 1 and day 2")
	assert.Equal(t, dialogue.StatusError, result.Status)
	assert.Contains(t, result.Message, "no itinerary")
}

func TestExplainDelegatesToDialogueMachine(t *testing.T) {
	svc := New(context.Background(), testConfig(), zap.NewNop().Sugar())
	result := svc.Explain(context.Background(), "does-not-exist", "why this place?")
	assert.Equal(t, dialogue.StatusError, result.Status)
}
