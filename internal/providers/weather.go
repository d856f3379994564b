package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"travelorch/internal/cache"
	"travelorch/internal/config"
	"travelorch/internal/models"
	"travelorch/internal/ratelimit"
)

// DailyWeather is one day's forecast, after translating the provider's
// numeric WMO code into a human condition string.
type DailyWeather struct {
	Date         string
	Condition    string
	TempMaxC     float64
	TempMinC     float64
	PrecipProb   float64
	PrecipSumMM  float64
	IsRainy      bool
}

// wmoCodeTable maps WMO weather codes to condition strings, grounded on
// the original implementation's weather.py table.
var wmoCodeTable = map[int]string{
	0: "clear sky", 1: "mainly clear", 2: "partly cloudy", 3: "overcast",
	45: "fog", 48: "depositing rime fog",
	51: "light drizzle", 53: "moderate drizzle", 55: "dense drizzle",
	61: "slight rain", 63: "moderate rain", 65: "heavy rain",
	71: "slight snow", 73: "moderate snow", 75: "heavy snow",
	80: "rain showers", 81: "moderate rain showers", 82: "violent rain showers",
	95: "thunderstorm", 96: "thunderstorm with hail", 99: "severe thunderstorm with hail",
}

var rainyCodes = map[int]bool{
	51: true, 53: true, 55: true, 61: true, 63: true, 65: true,
	80: true, 81: true, 82: true, 95: true, 96: true, 99: true,
}

func conditionForCode(code int) (string, bool) {
	if c, ok := wmoCodeTable[code]; ok {
		return c, rainyCodes[code]
	}
	return "unknown", false
}

// WeatherProvider fetches per-day forecasts, grounded on the teacher's
// FetchWeather (OpenWeatherMap One Call wire shapes).
type WeatherProvider struct {
	httpClient *http.Client
	apiKey     string
	limiter    *ratelimit.Registry
	rps        float64
	cache      *cache.TTLCache[[]DailyWeather]
	log        *zap.SugaredLogger
}

func NewWeatherProvider(cfg *config.Config, limiter *ratelimit.Registry, log *zap.SugaredLogger) *WeatherProvider {
	return &WeatherProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     cfg.WeatherAPIKey,
		limiter:    limiter,
		rps:        cfg.WeatherRPS,
		cache:      cache.New[[]DailyWeather](200, time.Hour),
		log:        log,
	}
}

type owmResponse struct {
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Day float64 `json:"day"`
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Pop     float64 `json:"pop"`
		Rain    float64 `json:"rain"`
		Weather []struct {
			ID int `json:"id"`
		} `json:"weather"`
	} `json:"daily"`
}

// Forecast returns one DailyWeather entry per travel date.
func (w *WeatherProvider) Forecast(ctx context.Context, loc models.Location, dates []string) ([]DailyWeather, error) {
	key := fmt.Sprintf("weather|%.3f,%.3f|%d", loc.Lat, loc.Lon, len(dates))
	if cached, ok := w.cache.Get(key); ok && len(cached) >= len(dates) {
		return cached[:len(dates)], nil
	}
	if w.apiKey == "" {
		return w.mockForecast(dates), nil
	}
	if err := w.limiter.Wait(ctx, "weather", w.rps); err != nil {
		return w.mockForecast(dates), nil
	}

	u, _ := url.Parse("https://api.openweathermap.org/data/3.0/onecall")
	q := u.Query()
	q.Set("lat", fmt.Sprintf("%f", loc.Lat))
	q.Set("lon", fmt.Sprintf("%f", loc.Lon))
	q.Set("appid", w.apiKey)
	q.Set("units", "metric")
	q.Set("exclude", "current,minutely,hourly,alerts")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return w.mockForecast(dates), nil
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.Warnw("weather provider unavailable, using mock", "error", err)
		return w.mockForecast(dates), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return w.mockForecast(dates), nil
	}

	var parsed owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return w.mockForecast(dates), nil
	}

	out := make([]DailyWeather, 0, len(dates))
	for i, date := range dates {
		if i >= len(parsed.Daily) {
			out = append(out, DailyWeather{Date: date, Condition: "unknown"})
			continue
		}
		d := parsed.Daily[i]
		code := 0
		if len(d.Weather) > 0 {
			code = d.Weather[0].ID
		}
		cond, rainy := conditionForCode(code)
		out = append(out, DailyWeather{
			Date: date, Condition: cond, TempMaxC: d.Temp.Max, TempMinC: d.Temp.Min,
			PrecipProb: d.Pop, PrecipSumMM: d.Rain, IsRainy: rainy,
		})
	}
	w.cache.Put(key, out)
	return out, nil
}

func (w *WeatherProvider) mockForecast(dates []string) []DailyWeather {
	out := make([]DailyWeather, len(dates))
	for i, date := range dates {
		out[i] = DailyWeather{Date: date, Condition: "clear sky", TempMaxC: 28, TempMinC: 18}
	}
	return out
}
