// Package providers contains the uniform external-provider clients:
// geocoding, POI search (primary + fallback), routing (commercial + open +
// haversine), weather, and the LLM (fast + quality). Every client enforces
// rate limiting and LRU+TTL caching per its own semantic key. The geocoder,
// the primary POI provider and the LLM retry failed calls with bounded
// backoff, and the fallback POI provider retries on its alternate hosts;
// the router falls through its tiers and the weather provider falls back
// to a mock forecast, each without retrying a failed call.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"travelorch/internal/apperr"
	"travelorch/internal/cache"
	"travelorch/internal/config"
	"travelorch/internal/models"
	"travelorch/internal/ratelimit"
)

// GeocodeResult is one candidate match for a geocoding query.
type GeocodeResult struct {
	Location         models.Location
	AddressComponents map[string]string
}

// cityFixes is the built-in table of common city-name misspellings and
// ambiguous short names, mapped to a "City, State, Country" query that
// geocodes reliably. Grounded on the original implementation's
// indian_city_fixes table, generalized in shape (not content-limited to one
// country).
var cityFixes = map[string]string{
	"banglore":  "Bangalore, Karnataka, India",
	"bengaluru": "Bangalore, Karnataka, India",
	"bombay":    "Mumbai, Maharashtra, India",
	"calcutta":  "Kolkata, West Bengal, India",
	"madras":    "Chennai, Tamil Nadu, India",
	"jaipur":    "Jaipur, Rajasthan, India",
	"pondicherry": "Puducherry, India",
	"nyc":       "New York City, NY, USA",
}

// cityStateHints is a small table of well-known city→state mappings, used
// to qualify a bare city name the caller didn't already pair with a state,
// improving geocoder recall on short or ambiguous names.
var cityStateHints = map[string]string{
	"jaipur":    "Rajasthan",
	"bangalore": "Karnataka",
	"mumbai":    "Maharashtra",
	"chennai":   "Tamil Nadu",
	"kolkata":   "West Bengal",
	"hyderabad": "Telangana",
	"pune":      "Maharashtra",
	"delhi":     "Delhi",
	"goa":       "Goa",
}

// defaultCountryHint is appended, once, to a query that returned zero
// results and wasn't already country-qualified — most queries this
// service sees are India-focused per the original dataset's geographic
// scope.
const defaultCountryHint = "India"

// Geocoder resolves a free-text place name to coordinates.
type Geocoder struct {
	httpClient *http.Client
	baseURL    string
	limiter    *ratelimit.Registry
	rps        float64
	cache      *cache.TTLCache[[]GeocodeResult]
	log        *zap.SugaredLogger
}

// NewGeocoder constructs a Geocoder over a Nominatim-shaped endpoint.
func NewGeocoder(cfg *config.Config, limiter *ratelimit.Registry, log *zap.SugaredLogger) *Geocoder {
	return &Geocoder{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.NominatimBaseURL,
		limiter:    limiter,
		rps:        cfg.GeocoderRPS,
		cache:      cache.New[[]GeocodeResult](cfg.GeocodeCacheSize, cfg.GeocodeCacheTTL),
		log:        log,
	}
}

func titleCase(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
		}
	}
	return strings.Join(parts, " ")
}

func normalizeQuery(query string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	if fixed, ok := cityFixes[lower]; ok {
		return fixed
	}
	if !strings.Contains(query, ",") {
		if state, ok := cityStateHints[lower]; ok {
			return titleCase(query) + ", " + state
		}
	}
	return titleCase(query)
}

// hasCountryHint reports whether query already carries enough
// comma-separated qualifiers (city, state, country) to skip the
// country-hint retry.
func hasCountryHint(query string) bool {
	return strings.Count(query, ",") >= 2
}

// selectBestMatch reorders results so one whose address city/town/village
// contains the query's city token is first, falling back to the
// provider's own first result when nothing matches — grounded on the
// original implementation's get_city_coordinates best-match-then-first-
// result loop.
func selectBestMatch(results []GeocodeResult, query string) []GeocodeResult {
	cityPart := strings.ToLower(strings.TrimSpace(strings.SplitN(query, ",", 2)[0]))
	for i, r := range results {
		resultCity := strings.ToLower(r.AddressComponents["city"])
		if resultCity == "" {
			resultCity = strings.ToLower(r.AddressComponents["town"])
		}
		if resultCity == "" {
			resultCity = strings.ToLower(r.AddressComponents["village"])
		}
		if resultCity != "" && strings.Contains(resultCity, cityPart) {
			if i == 0 {
				return results
			}
			reordered := make([]GeocodeResult, 0, len(results))
			reordered = append(reordered, r)
			reordered = append(reordered, results[:i]...)
			reordered = append(reordered, results[i+1:]...)
			return reordered
		}
	}
	return results
}

// Resolve geocodes query, trying up to limit candidates, applying the
// misspelling table before calling out.
func (g *Geocoder) Resolve(ctx context.Context, query string, limit int) ([]GeocodeResult, error) {
	if limit <= 0 {
		limit = 5
	}
	normalized := normalizeQuery(query)
	key := fmt.Sprintf("geocode|%s|%d", strings.ToLower(normalized), limit)
	if cached, ok := g.cache.Get(key); ok {
		return cached, nil
	}

	var results []GeocodeResult
	op := func() ([]GeocodeResult, error) {
		if err := g.limiter.Wait(ctx, "geocoder", g.rps); err != nil {
			return nil, err
		}
		return g.fetch(ctx, normalized, limit)
	}
	results, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3))
	if err != nil {
		g.log.Warnw("geocoder exhausted retries", "query", query, "error", err)
		return nil, apperr.Wrap(err, apperr.CityNotFound, "could not resolve location")
	}
	if len(results) == 0 && !hasCountryHint(normalized) {
		hinted := normalized + ", " + defaultCountryHint
		if waitErr := g.limiter.Wait(ctx, "geocoder", g.rps); waitErr == nil {
			if hintedResults, hintErr := g.fetch(ctx, hinted, limit); hintErr == nil && len(hintedResults) > 0 {
				g.log.Debugw("geocoder zero results, retried with country hint", "query", normalized, "hint", defaultCountryHint)
				results = hintedResults
			}
		}
	}
	if len(results) == 0 {
		return nil, apperr.New(apperr.CityNotFound, "no geocoding results", map[string]any{"query": query})
	}
	results = selectBestMatch(results, normalized)
	g.cache.Put(key, results)
	return results, nil
}

func (g *Geocoder) fetch(ctx context.Context, query string, limit int) ([]GeocodeResult, error) {
	u, _ := url.Parse(g.baseURL + "/search")
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("limit", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "travelorch/1.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("geocoder transient status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("geocoder status %d", resp.StatusCode))
	}

	var raw []struct {
		Lat     string            `json:"lat"`
		Lon     string            `json:"lon"`
		Address map[string]string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, backoff.Permanent(err)
	}

	out := make([]GeocodeResult, 0, len(raw))
	for _, r := range raw {
		var lat, lon float64
		if _, err := fmt.Sscanf(r.Lat, "%f", &lat); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(r.Lon, "%f", &lon); err != nil {
			continue
		}
		loc := models.Location{Lat: lat, Lon: lon}
		if !loc.Valid() {
			continue
		}
		out = append(out, GeocodeResult{Location: loc, AddressComponents: r.Address})
	}
	return out, nil
}
