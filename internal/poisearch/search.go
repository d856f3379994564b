// Package poisearch implements the POI search pipeline: geocode, then
// primary-then-fallback provider chain, then de-dup and rank.
package poisearch

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"travelorch/internal/apperr"
	"travelorch/internal/models"
	"travelorch/internal/providers"
)

const defaultRadiusKM = 10

// Pipeline is the POI search pipeline of spec §4.2.
type Pipeline struct {
	Geocoder *providers.Geocoder
	Primary  *providers.POIPrimary // may be nil when uncredentialed
	Fallback *providers.POIFallback
	log      *zap.SugaredLogger
}

func New(geocoder *providers.Geocoder, primary *providers.POIPrimary, fallback *providers.POIFallback, log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{Geocoder: geocoder, Primary: primary, Fallback: fallback, log: log}
}

// Constraints is accepted by Search but not applied: the returned POIs are
// not filtered by it, and no cache key includes it.
type Constraints struct {
	Budget *float64
}

// Search resolves city to coordinates then runs the fixed-order
// primary→fallback provider chain, returning up to limit POIs.
func (p *Pipeline) Search(ctx context.Context, city string, interests []string, constraints *Constraints, country, state string, limit int) ([]models.POI, models.Location, error) {
	query := city
	if state != "" {
		query += ", " + state
	}
	if country != "" {
		query += ", " + country
	}
	// Resolve with several candidates, not just one, so its best-match
	// selection (preferring a result whose address city matches the
	// query over the provider's raw first result) has something to
	// choose among.
	results, err := p.Geocoder.Resolve(ctx, query, 5)
	if err != nil {
		return nil, models.Location{}, apperr.Wrap(err, apperr.CityNotFound, "city could not be geocoded")
	}
	center := results[0].Location

	var pois []models.POI
	if p.Primary != nil {
		pois, err = p.Primary.Search(ctx, center, interests, defaultRadiusKM, limit)
		if err != nil {
			p.log.Warnw("primary poi provider failed, falling back", "error", err)
		}
	}
	if len(pois) == 0 {
		pois, err = p.Fallback.Search(ctx, center, interests, limit)
		if err != nil {
			return nil, center, apperr.Wrap(err, apperr.ExternalProviderUnavailable, "poi search failed on all providers")
		}
	}

	pois = dedupe(pois)
	pois = rank(pois)
	if limit > 0 && len(pois) > limit {
		pois = pois[:limit]
	}
	return pois, center, nil
}

// dedupe removes duplicates by (data_source, source_id), keeping first
// occurrence. Search passes it one provider's results only, so this drops
// repeats within that provider's list.
func dedupe(pois []models.POI) []models.POI {
	seen := map[string]bool{}
	out := make([]models.POI, 0, len(pois))
	for _, p := range pois {
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		out = append(out, p)
	}
	return out
}

// rankingWeights mirrors the teacher's DataValidator.RankingWeights
// (Rating 0.3, Price 0.25, Distance 0.2, Availability 0.15, UserMatch 0.1),
// collapsed onto the fields a POI actually carries: rating and a
// description/opening-hours richness proxy stand in for price/availability
// since POIs have no price data.
type weights struct {
	Rating      float64
	Richness    float64
	HasHours    float64
}

var defaultWeights = weights{Rating: 0.6, Richness: 0.25, HasHours: 0.15}

func score(p models.POI) float64 {
	var s float64
	if p.Rating != nil {
		s += defaultWeights.Rating * (*p.Rating / 5.0)
	}
	if p.Description != "" {
		s += defaultWeights.Richness
	}
	if p.OpeningHours != "" {
		s += defaultWeights.HasHours
	}
	return s
}

// rank sorts by score descending. Providers are never mixed (primary OR
// fallback, never both), so this re-orders one provider's results; the
// provider's own result order is kept only among POIs with equal scores.
func rank(pois []models.POI) []models.POI {
	out := append([]models.POI(nil), pois...)
	sort.SliceStable(out, func(i, j int) bool {
		return score(out[i]) > score(out[j])
	})
	return out
}

// NormalizeCityName applies the title-case convention used for both the
// geocoder cache key and the builder's display city name.
func NormalizeCityName(city string) string {
	parts := strings.Fields(city)
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
		}
	}
	return strings.Join(parts, " ")
}
