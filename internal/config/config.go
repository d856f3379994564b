package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, loaded once from the
// environment. Every field has a sane default so the service boots
// without a .env file; provider API keys default to empty, which each
// provider client treats as "use mock/degraded mode".
type Config struct {
	// Server
	Environment string
	Port        string

	// Google Cloud (quality-tier LLM, analytics sink)
	GoogleCloudProjectID         string
	GoogleCloudRegion            string
	GoogleApplicationCredentials string
	BigQueryDataset              string

	// LLM
	GeminiAPIKey  string
	GeminiModel   string
	VertexModel   string
	LLMMaxRetries int

	// External provider APIs
	GoogleMapsAPIKey   string
	WeatherAPIKey      string
	OverpassBaseURL    string
	OSRMBaseURL        string
	NominatimBaseURL   string

	// Provider rate limits (requests per second, per provider key)
	GeocoderRPS     float64
	POIProviderRPS  float64
	RouterRPS       float64
	WeatherRPS      float64
	LLMFastRPS      float64
	LLMQualityRPS   float64

	// Cache sizes/TTLs
	GeocodeCacheSize int
	GeocodeCacheTTL  time.Duration
	POICacheSize     int
	POICacheTTL      time.Duration
	RouteCacheSize   int
	RouteCacheTTL    time.Duration
	LLMCacheSize     int
	LLMCacheTTL      time.Duration

	// Dialogue / session
	SessionTTL           time.Duration
	MaxClarificationTurns int

	// Open-question decision (see SPEC_FULL.md §9)
	PaceRebalanceStrategy string
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),

		GoogleCloudProjectID:         getEnv("GOOGLE_CLOUD_PROJECT_ID", ""),
		GoogleCloudRegion:            getEnv("GOOGLE_CLOUD_REGION", "us-central1"),
		GoogleApplicationCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		BigQueryDataset:              getEnv("BIGQUERY_DATASET", "travelorch_analytics"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-pro"),
		VertexModel:   getEnv("VERTEX_MODEL", "text-bison"),
		LLMMaxRetries: getEnvAsInt("LLM_MAX_RETRIES", 3),

		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		WeatherAPIKey:    getEnv("WEATHER_API_KEY", ""),
		OverpassBaseURL:  getEnv("OVERPASS_BASE_URL", "https://overpass-api.de/api/interpreter"),
		OSRMBaseURL:      getEnv("OSRM_BASE_URL", "https://router.project-osrm.org"),
		NominatimBaseURL: getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),

		GeocoderRPS:    getEnvAsFloat("GEOCODER_RPS", 1.0/1.1),
		POIProviderRPS: getEnvAsFloat("POI_PROVIDER_RPS", 5.0),
		RouterRPS:      getEnvAsFloat("ROUTER_RPS", 5.0),
		WeatherRPS:     getEnvAsFloat("WEATHER_RPS", 1.0),
		LLMFastRPS:     getEnvAsFloat("LLM_FAST_RPS", 3.0),
		LLMQualityRPS:  getEnvAsFloat("LLM_QUALITY_RPS", 1.0),

		GeocodeCacheSize: getEnvAsInt("GEOCODE_CACHE_SIZE", 500),
		GeocodeCacheTTL:  getEnvAsDuration("GEOCODE_CACHE_TTL", 24*time.Hour),
		POICacheSize:     getEnvAsInt("POI_CACHE_SIZE", 1000),
		POICacheTTL:      getEnvAsDuration("POI_CACHE_TTL", 24*time.Hour),
		RouteCacheSize:   getEnvAsInt("ROUTE_CACHE_SIZE", 1000),
		RouteCacheTTL:    getEnvAsDuration("ROUTE_CACHE_TTL", time.Hour),
		LLMCacheSize:     getEnvAsInt("LLM_CACHE_SIZE", 500),
		LLMCacheTTL:      getEnvAsDuration("LLM_CACHE_TTL", time.Hour),

		SessionTTL:            getEnvAsDuration("SESSION_TTL", 60*time.Minute),
		MaxClarificationTurns: getEnvAsInt("MAX_CLARIFICATION_TURNS", 6),

		PaceRebalanceStrategy: getEnv("PACE_REBALANCE_STRATEGY", "rebuild"),
	}
}

var config *Config

// GetConfig returns the process-wide configuration, loading it on first use.
func GetConfig() *Config {
	if config == nil {
		config = Load()
	}
	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
