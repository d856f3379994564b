package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	gmaps "googlemaps.github.io/maps"

	"travelorch/internal/cache"
	"travelorch/internal/config"
	"travelorch/internal/models"
	"travelorch/internal/ratelimit"
)

// interestCategoryMap maps a user interest to the commercial text-search
// query terms. The fallback provider uses its own interestToOSMTags table.
var interestCategoryMap = map[string][]string{
	"culture":    {"museum", "art gallery", "cultural center"},
	"food":       {"restaurant", "cafe", "street food"},
	"history":    {"historical monument", "heritage site"},
	"nature":     {"park", "garden", "nature reserve"},
	"shopping":   {"shopping mall", "market", "bazaar"},
	"nightlife":  {"bar", "nightclub", "lounge"},
	"relaxation": {"spa", "beach", "park"},
}

func queryTermsForInterests(interests []string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, interest := range interests {
		for _, t := range interestCategoryMap[strings.ToLower(interest)] {
			if !seen[t] {
				seen[t] = true
				terms = append(terms, t)
			}
		}
	}
	if len(terms) == 0 {
		terms = []string{"tourist attraction"}
	}
	return terms
}

// POIPrimary is the commercial places text-search provider. Grounded on the
// teacher's FetchAttractions/fetchAttractionsByType, rewired onto a typed
// Google Maps client instead of a hand-built query string.
type POIPrimary struct {
	client  *gmaps.Client
	limiter *ratelimit.Registry
	rps     float64
	cache   *cache.TTLCache[[]models.POI]
	log     *zap.SugaredLogger
}

// NewPOIPrimary constructs the commercial POI provider. Returns nil (and
// no error) when no API key is configured, signaling callers to skip
// straight to the fallback provider.
func NewPOIPrimary(cfg *config.Config, limiter *ratelimit.Registry, log *zap.SugaredLogger) (*POIPrimary, error) {
	if cfg.GoogleMapsAPIKey == "" {
		return nil, nil
	}
	client, err := gmaps.NewClient(gmaps.WithAPIKey(cfg.GoogleMapsAPIKey))
	if err != nil {
		return nil, err
	}
	return &POIPrimary{
		client:  client,
		limiter: limiter,
		rps:     cfg.POIProviderRPS,
		cache:   cache.New[[]models.POI](cfg.POICacheSize, cfg.POICacheTTL),
		log:     log,
	}, nil
}

// Search performs a text-search-per-interest-term call within radiusKM of
// center, deduplicating by (data_source, source_id) and capping at limit.
func (p *POIPrimary) Search(ctx context.Context, center models.Location, interests []string, radiusKM float64, limit int) ([]models.POI, error) {
	key := fmt.Sprintf("poi_primary|%.4f,%.4f|%s", center.Lat, center.Lon, strings.Join(sortedCopy(interests), ","))
	if cached, ok := p.cache.Get(key); ok {
		return truncate(cached, limit), nil
	}

	var out []models.POI
	seen := map[string]bool{}
	for _, term := range queryTermsForInterests(interests) {
		op := func() ([]models.POI, error) {
			if err := p.limiter.Wait(ctx, "poi_primary", p.rps); err != nil {
				return nil, err
			}
			return p.searchTerm(ctx, center, term, radiusKM)
		}
		results, err := backoff.Retry(ctx, op, backoff.WithMaxTries(2))
		if err != nil {
			p.log.Warnw("poi primary term failed", "term", term, "error", err)
			continue
		}
		for _, poi := range results {
			if !seen[poi.Key()] {
				seen[poi.Key()] = true
				out = append(out, poi)
			}
		}
	}
	if len(out) > 0 {
		p.cache.Put(key, out)
	}
	return truncate(out, limit), nil
}

func (p *POIPrimary) searchTerm(ctx context.Context, center models.Location, term string, radiusKM float64) ([]models.POI, error) {
	req := &gmaps.TextSearchRequest{
		Query:    term,
		Location: &gmaps.LatLng{Lat: center.Lat, Lng: center.Lon},
		Radius:   uint(radiusKM * 1000),
	}
	resp, err := p.client.TextSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]models.POI, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Name == "" || r.PlaceID == "" {
			continue
		}
		loc := models.Location{Lat: r.Geometry.Location.Lat, Lon: r.Geometry.Location.Lng}
		if !loc.Valid() {
			continue
		}
		var rating *float64
		if r.Rating > 0 {
			v := r.Rating
			rating = &v
		}
		out = append(out, models.POI{
			DataSource:  models.SourceGooglePlaces,
			SourceID:    "place_id:" + r.PlaceID,
			Name:        r.Name,
			Category:    categoryFromGoogleTypes(r.Types),
			Location:    loc,
			DurationMin: estimateDuration(categoryFromGoogleTypes(r.Types), rating, len(r.Types)),
			Rating:      rating,
			OpeningHours: openingHoursSummary(r.OpeningHours),
		})
	}
	return out, nil
}

func categoryFromGoogleTypes(types []string) models.Category {
	for _, t := range types {
		switch t {
		case "museum":
			return models.CategoryMuseum
		case "restaurant", "cafe", "food":
			return models.CategoryRestaurant
		case "shopping_mall", "store":
			return models.CategoryShopping
		case "park":
			return models.CategoryPark
		case "night_club", "bar":
			return models.CategoryNightlife
		case "tourist_attraction":
			return models.CategoryAttraction
		}
	}
	return models.CategoryAttraction
}

func openingHoursSummary(oh *gmaps.OpeningHours) string {
	if oh == nil {
		return ""
	}
	if oh.OpenNow != nil && *oh.OpenNow {
		return "open now"
	}
	return ""
}

// estimateDuration estimates a visit duration from category, adding 15
// minutes when the rating is at least 4.5 and signals exceeds 2. The
// primary provider passes the place's number of type tags as signals and
// the fallback passes 0; review counts are not consulted.
func estimateDuration(cat models.Category, rating *float64, signals int) int {
	base := map[models.Category]int{
		models.CategoryMuseum:     90,
		models.CategoryRestaurant: 60,
		models.CategoryPark:       45,
		models.CategoryShopping:   60,
		models.CategoryNightlife:  90,
		models.CategoryHistorical: 60,
		models.CategoryNature:     60,
		models.CategoryAttraction: 75,
	}[cat]
	if base == 0 {
		base = 60
	}
	if rating != nil && *rating >= 4.5 && signals > 2 {
		base += 15
	}
	return base
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func truncate(pois []models.POI, limit int) []models.POI {
	if limit <= 0 || len(pois) <= limit {
		return pois
	}
	return pois[:limit]
}
