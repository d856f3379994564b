package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
	gmaps "googlemaps.github.io/maps"

	"travelorch/internal/cache"
	"travelorch/internal/config"
	"travelorch/internal/models"
	"travelorch/internal/ratelimit"
)

// TravelResult is a single origin→destination leg.
type TravelResult struct {
	DurationMinutes int
	DistanceKM      float64
	Source          string
}

// fallbackSpeedsKMH are the haversine-plus-speed defaults, with an urban
// buffer applied on top.
var fallbackSpeedsKMH = map[string]float64{
	"walking": 5,
	"driving": 30,
	"transit": 25,
	"cycling": 15,
}

const urbanBufferFactor = 1.25 // +25%, within the spec's 20-30% band

// Router chains a commercial directions API, an open-source routing
// engine, and a haversine-plus-speed fallback.
type Router struct {
	gmapsClient *gmaps.Client
	osrmBaseURL string
	httpClient  *http.Client
	limiter     *ratelimit.Registry
	rps         float64
	cache       *cache.TTLCache[TravelResult]
	log         *zap.SugaredLogger
}

// NewRouter constructs the router chain; gmapsClient is nil when no API
// key is configured, in which case the commercial tier is skipped.
func NewRouter(cfg *config.Config, limiter *ratelimit.Registry, log *zap.SugaredLogger) *Router {
	var gc *gmaps.Client
	if cfg.GoogleMapsAPIKey != "" {
		gc, _ = gmaps.NewClient(gmaps.WithAPIKey(cfg.GoogleMapsAPIKey))
	}
	return &Router{
		gmapsClient: gc,
		osrmBaseURL: cfg.OSRMBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     limiter,
		rps:         cfg.RouterRPS,
		cache:       cache.New[TravelResult](cfg.RouteCacheSize, cfg.RouteCacheTTL),
		log:         log,
	}
}

// externalMode collapses the caller's travel mode to a routing mode:
// anything except an explicit "walking" collapses to driving.
func externalMode(mode string) string {
	if mode == "walking" {
		return "walking"
	}
	return "driving"
}

func routeCacheKey(origin, dest models.Location, mode string) string {
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f|%s", origin.Lat, origin.Lon, dest.Lat, dest.Lon, mode)
}

// TravelTime computes one origin→destination leg, falling through
// commercial → open-source → haversine on failure.
func (r *Router) TravelTime(ctx context.Context, origin, dest models.Location, mode string) TravelResult {
	routingMode := externalMode(mode)
	key := routeCacheKey(origin, dest, routingMode)
	if cached, ok := r.cache.Get(key); ok {
		return cached
	}

	if r.gmapsClient != nil {
		if err := r.limiter.Wait(ctx, "router", r.rps); err == nil {
			if res, err := r.commercial(ctx, origin, dest, routingMode); err == nil {
				r.cache.Put(key, res)
				return res
			} else {
				r.log.Debugw("commercial router failed, trying open-source", "error", err)
			}
		}
	}

	if err := r.limiter.Wait(ctx, "router", r.rps); err == nil {
		if res, err := r.openSource(ctx, origin, dest, routingMode); err == nil {
			r.cache.Put(key, res)
			return res
		} else {
			r.log.Debugw("open-source router failed, using haversine", "error", err)
		}
	}

	res := r.haversine(origin, dest, routingMode)
	r.cache.Put(key, res)
	return res
}

func (r *Router) commercial(ctx context.Context, origin, dest models.Location, mode string) (TravelResult, error) {
	travelMode := gmaps.TravelModeDriving
	if mode == "walking" {
		travelMode = gmaps.TravelModeWalking
	}
	req := &gmaps.DistanceMatrixRequest{
		Origins:      []string{fmt.Sprintf("%f,%f", origin.Lat, origin.Lon)},
		Destinations: []string{fmt.Sprintf("%f,%f", dest.Lat, dest.Lon)},
		Mode:         travelMode,
	}
	resp, err := r.gmapsClient.DistanceMatrix(ctx, req)
	if err != nil {
		return TravelResult{}, err
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return TravelResult{}, fmt.Errorf("empty distance matrix response")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return TravelResult{}, fmt.Errorf("distance matrix element status %s", el.Status)
	}
	return TravelResult{
		DurationMinutes: int(el.Duration.Minutes()),
		DistanceKM:      float64(el.Distance.Meters) / 1000.0,
		Source:          "commercial",
	}, nil
}

type osrmResponse struct {
	Routes []struct {
		Duration float64 `json:"duration"` // seconds
		Distance float64 `json:"distance"` // meters
	} `json:"routes"`
}

func (r *Router) openSource(ctx context.Context, origin, dest models.Location, mode string) (TravelResult, error) {
	profile := "driving"
	if mode == "walking" {
		profile = "foot"
	}
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		r.osrmBaseURL, profile, origin.Lon, origin.Lat, dest.Lon, dest.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TravelResult{}, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return TravelResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return TravelResult{}, fmt.Errorf("osrm status %d", resp.StatusCode)
	}
	var parsed osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return TravelResult{}, err
	}
	if len(parsed.Routes) == 0 {
		return TravelResult{}, fmt.Errorf("osrm returned no routes")
	}
	return TravelResult{
		DurationMinutes: int(parsed.Routes[0].Duration / 60),
		DistanceKM:      parsed.Routes[0].Distance / 1000.0,
		Source:          "open_source",
	}, nil
}

func (r *Router) haversine(origin, dest models.Location, mode string) TravelResult {
	distKM := haversineKM(origin, dest)
	speed := fallbackSpeedsKMH[mode]
	if speed == 0 {
		speed = fallbackSpeedsKMH["driving"]
	}
	minutes := (distKM / speed) * 60 * urbanBufferFactor
	return TravelResult{
		DurationMinutes: int(math.Round(minutes)),
		DistanceKM:      distKM,
		Source:          "haversine",
	}
}

func haversineKM(a, b models.Location) float64 {
	const earthRadiusKM = 6371.0
	lat1, lon1 := degToRad(a.Lat), degToRad(a.Lon)
	lat2, lon2 := degToRad(b.Lat), degToRad(b.Lon)
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }

// commercialMatrixLimit is the commercial distance-matrix endpoint's
// element ceiling: at or below it, one request covers the whole matrix.
const commercialMatrixLimit = 25

// Matrix computes travel times between every ordered pair of points. When
// a commercial client is configured and |points| <= commercialMatrixLimit,
// it issues a single DistanceMatrixRequest with the full point set as
// both origins and destinations, populating every cell from one API call.
// Any cell the batch call doesn't resolve (request failure, or an
// individual element status other than OK) falls back to a pairwise
// TravelTime call, which carries its own commercial → open-source →
// haversine chain. The caller (internal/travel) only decides whether to
// call Matrix directly or fan pairwise calls out across a worker pool
// above that point-count ceiling; it no longer duplicates the
// batch-vs-pairwise choice Matrix makes internally.
func (r *Router) Matrix(ctx context.Context, points []models.Location, mode string) map[[2]int]TravelResult {
	routingMode := externalMode(mode)
	out := make(map[[2]int]TravelResult, len(points)*len(points))
	var missing [][2]int
	for i := range points {
		for j := range points {
			if i == j {
				continue
			}
			key := routeCacheKey(points[i], points[j], routingMode)
			if cached, ok := r.cache.Get(key); ok {
				out[[2]int{i, j}] = cached
				continue
			}
			missing = append(missing, [2]int{i, j})
		}
	}
	if len(missing) == 0 {
		return out
	}

	if r.gmapsClient != nil && len(points) <= commercialMatrixLimit {
		if err := r.limiter.Wait(ctx, "router", r.rps); err == nil {
			if results, err := r.commercialMatrix(ctx, points, routingMode); err == nil {
				for cell, res := range results {
					out[cell] = res
					r.cache.Put(routeCacheKey(points[cell[0]], points[cell[1]], routingMode), res)
				}
			} else {
				r.log.Debugw("commercial batch matrix failed, falling back to pairwise calls", "error", err)
			}
		}
	}

	for _, cell := range missing {
		if _, ok := out[cell]; ok {
			continue // already populated by the batch call above
		}
		out[cell] = r.TravelTime(ctx, points[cell[0]], points[cell[1]], mode)
	}
	return out
}

// commercialMatrix issues one DistanceMatrixRequest covering every ordered
// pair of points. An element whose status isn't OK is left out of the
// result so the caller's pairwise fallback can resolve it individually.
func (r *Router) commercialMatrix(ctx context.Context, points []models.Location, mode string) (map[[2]int]TravelResult, error) {
	travelMode := gmaps.TravelModeDriving
	if mode == "walking" {
		travelMode = gmaps.TravelModeWalking
	}
	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = fmt.Sprintf("%f,%f", p.Lat, p.Lon)
	}
	req := &gmaps.DistanceMatrixRequest{Origins: coords, Destinations: coords, Mode: travelMode}
	resp, err := r.gmapsClient.DistanceMatrix(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Rows) != len(points) {
		return nil, fmt.Errorf("distance matrix row count %d != point count %d", len(resp.Rows), len(points))
	}
	out := make(map[[2]int]TravelResult, len(points)*len(points))
	for i, row := range resp.Rows {
		if len(row.Elements) != len(points) {
			return nil, fmt.Errorf("distance matrix element count %d != point count %d", len(row.Elements), len(points))
		}
		for j, el := range row.Elements {
			if i == j || el.Status != "OK" {
				continue
			}
			out[[2]int{i, j}] = TravelResult{
				DurationMinutes: int(el.Duration.Minutes()),
				DistanceKM:      float64(el.Distance.Meters) / 1000.0,
				Source:          "commercial",
			}
		}
	}
	return out, nil
}
