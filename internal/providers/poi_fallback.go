package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"travelorch/internal/cache"
	"travelorch/internal/config"
	"travelorch/internal/models"
	"travelorch/internal/ratelimit"
)

// interestToOSMTags maps an interest to Overpass tag=value filters, unioned
// across interests, max 8 values per filter key per the regex-union cap.
var interestToOSMTags = map[string]map[string][]string{
	"culture":   {"tourism": {"museum", "gallery", "attraction"}, "historic": {"monument", "memorial", "castle"}},
	"food":      {"amenity": {"restaurant", "cafe", "fast_food", "food_court"}},
	"history":   {"historic": {"monument", "memorial", "castle", "ruins", "archaeological_site"}},
	"nature":    {"leisure": {"park", "nature_reserve", "garden"}},
	"shopping":  {"shop": {"mall", "supermarket", "department_store"}},
	"nightlife": {"amenity": {"bar", "nightclub", "pub"}},
}

// osmHosts is the alternate Overpass host list tried in order on failure.
var osmHosts = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.openstreetmap.ru/api/interpreter",
}

// POIFallback is the open map-data (Overpass/OSM) provider used when the
// primary provider is uncredentialed or returns nothing. Grounded on the
// original implementation's openstreetmap.py tag-union/radius-shrink/
// alternate-host retry chain.
type POIFallback struct {
	httpClient *http.Client
	hosts      []string
	limiter    *ratelimit.Registry
	rps        float64
	cache      *cache.TTLCache[[]models.POI]
	log        *zap.SugaredLogger
}

// NewPOIFallback constructs the Overpass-based fallback provider.
func NewPOIFallback(cfg *config.Config, limiter *ratelimit.Registry, log *zap.SugaredLogger) *POIFallback {
	hosts := osmHosts
	if cfg.OverpassBaseURL != "" && cfg.OverpassBaseURL != hosts[0] {
		hosts = append([]string{cfg.OverpassBaseURL}, hosts...)
	}
	return &POIFallback{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		hosts:      hosts,
		limiter:    limiter,
		rps:        cfg.POIProviderRPS,
		cache:      cache.New[[]models.POI](cfg.POICacheSize, cfg.POICacheTTL),
		log:        log,
	}
}

func tagFiltersForInterests(interests []string) map[string][]string {
	merged := map[string]map[string]bool{}
	for _, interest := range interests {
		for key, values := range interestToOSMTags[strings.ToLower(interest)] {
			if merged[key] == nil {
				merged[key] = map[string]bool{}
			}
			for _, v := range values {
				merged[key][v] = true
			}
		}
	}
	if len(merged) == 0 {
		merged["tourism"] = map[string]bool{"attraction": true, "museum": true}
	}
	out := map[string][]string{}
	for key, set := range merged {
		var values []string
		for v := range set {
			values = append(values, v)
			if len(values) == 8 {
				break
			}
		}
		out[key] = values
	}
	return out
}

// buildQuery renders an Overpass QL query over a radius around center for
// the given tag filters using regex-union value matching.
func buildQuery(center models.Location, radiusM int, filters map[string][]string) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];(")
	for key, values := range filters {
		union := strings.Join(values, "|")
		for _, kind := range []string{"node", "way", "relation"} {
			fmt.Fprintf(&b, `%s["%s"~"^(%s)$"](around:%d,%f,%f);`, kind, key, union, radiusM, center.Lat, center.Lon)
		}
	}
	b.WriteString(");out center tags;")
	return b.String()
}

// buildExistenceQuery renders an Overpass QL query matching any element
// that carries one of keys, regardless of its value — the broader
// escalation step used once the interest-specific tag union returns
// nothing.
func buildExistenceQuery(center models.Location, radiusM int, keys []string) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:25];(")
	for _, key := range keys {
		for _, kind := range []string{"node", "way", "relation"} {
			fmt.Fprintf(&b, `%s["%s"](around:%d,%f,%f);`, kind, key, radiusM, center.Lat, center.Lon)
		}
	}
	b.WriteString(");out center tags;")
	return b.String()
}

// fallbackQuery is one step of the progressively-broader escalation chain:
// interest-specific tag union, then tourism+amenity+historic existence,
// then tourism-or-amenity existence only.
type fallbackQuery func(center models.Location, radiusM int) string

func escalationChain(filters map[string][]string) []fallbackQuery {
	return []fallbackQuery{
		func(center models.Location, radiusM int) string { return buildQuery(center, radiusM, filters) },
		func(center models.Location, radiusM int) string {
			return buildExistenceQuery(center, radiusM, []string{"tourism", "amenity", "historic"})
		},
		func(center models.Location, radiusM int) string {
			return buildExistenceQuery(center, radiusM, []string{"tourism", "amenity"})
		},
	}
}

// httpStatusError carries the HTTP status an Overpass host responded
// with, so callers can distinguish a gateway timeout from a plain
// zero-result answer.
type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string { return fmt.Sprintf("overpass status %d", e.status) }

// isGatewayTimeout reports whether err indicates the host itself timed
// out or was unavailable (502/503/504, or a network-level timeout) as
// opposed to a request that succeeded but matched nothing.
func isGatewayTimeout(err error) bool {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.status == http.StatusBadGateway || se.status == http.StatusServiceUnavailable || se.status == http.StatusGatewayTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// radiusShrinkSteps are applied in order, once per gateway timeout
// encountered: shrink by 30%, then shrink the result by a further 50%.
var radiusShrinkSteps = []float64{0.7, 0.5}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

var nameFields = []string{"name", "name:en", "int_name"}

// categoryPriority maps OSM tags to internal categories, highest priority
// first: historic beats tourism=attraction, shop beats generic tourism.
func categoryFromTags(tags map[string]string) (models.Category, bool) {
	if v, ok := tags["historic"]; ok && v != "" {
		return models.CategoryHistorical, true
	}
	if v, ok := tags["tourism"]; ok {
		switch v {
		case "museum":
			return models.CategoryMuseum, true
		case "attraction":
			return models.CategoryAttraction, true
		}
	}
	if v, ok := tags["amenity"]; ok {
		switch v {
		case "restaurant", "cafe", "fast_food", "food_court":
			return models.CategoryRestaurant, true
		case "bar", "nightclub", "pub":
			return models.CategoryNightlife, true
		}
	}
	if _, ok := tags["shop"]; ok {
		return models.CategoryShopping, true
	}
	if v, ok := tags["leisure"]; ok {
		switch v {
		case "park", "garden":
			return models.CategoryPark, true
		case "nature_reserve":
			return models.CategoryNature, true
		}
	}
	return "", false
}

func parseElement(e overpassElement) (models.POI, bool) {
	var name string
	for _, f := range nameFields {
		if v := e.Tags[f]; v != "" {
			name = v
			break
		}
	}
	if name == "" {
		return models.POI{}, false
	}
	lat, lon := e.Lat, e.Lon
	if e.Center != nil {
		lat, lon = e.Center.Lat, e.Center.Lon
	}
	loc := models.Location{Lat: lat, Lon: lon}
	if !loc.Valid() || (lat == 0 && lon == 0) {
		return models.POI{}, false
	}
	cat, ok := categoryFromTags(e.Tags)
	if !ok {
		return models.POI{}, false
	}
	return models.POI{
		DataSource:  models.SourceOpenStreetMap,
		SourceID:    fmt.Sprintf("%s:%d", e.Type, e.ID),
		Name:        name,
		Category:    cat,
		Location:    loc,
		DurationMin: estimateDuration(cat, nil, 0),
	}, true
}

// Search issues the progressively-broader fallback chain described in the
// spec: interest-specific tag union, then a broader existence-only tag
// match, then the broadest tourism-or-amenity existence match; within each
// level every known host is tried before escalating; the radius only
// shrinks (30%, then a further 50%) when a host itself answers with a
// gateway timeout, never on a plain zero-result answer.
func (f *POIFallback) Search(ctx context.Context, center models.Location, interests []string, limit int) ([]models.POI, error) {
	filters := tagFiltersForInterests(interests)
	key := fmt.Sprintf("poi_fallback|%.4f,%.4f|%v", center.Lat, center.Lon, filters)
	if cached, ok := f.cache.Get(key); ok {
		return truncate(cached, limit), nil
	}

	radius := 10000
	shrinksApplied := 0
	var last error
	for _, buildForLevel := range escalationChain(filters) {
		for _, host := range f.hosts {
			if err := f.limiter.Wait(ctx, "poi_fallback", f.rps); err != nil {
				return nil, err
			}
			pois, err := f.query(ctx, host, buildForLevel(center, radius))
			if err != nil {
				last = err
				if isGatewayTimeout(err) && shrinksApplied < len(radiusShrinkSteps) {
					radius = int(float64(radius) * radiusShrinkSteps[shrinksApplied])
					shrinksApplied++
				}
				continue
			}
			if len(pois) > 0 {
				f.cache.Put(key, pois)
				return truncate(pois, limit), nil
			}
			// this host answered but matched nothing; try the next host at
			// the same escalation level before broadening the query further
		}
	}
	if last != nil {
		f.log.Warnw("poi fallback exhausted", "error", last)
	}
	return nil, nil
}

func (f *POIFallback) query(ctx context.Context, host, query string) ([]models.POI, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	var out []models.POI
	seen := map[string]bool{}
	for _, el := range parsed.Elements {
		poi, ok := parseElement(el)
		if !ok || seen[poi.Key()] {
			continue
		}
		seen[poi.Key()] = true
		out = append(out, poi)
	}
	return out, nil
}
