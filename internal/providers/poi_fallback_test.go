package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"travelorch/internal/cache"
	"travelorch/internal/models"
	"travelorch/internal/ratelimit"
)

func testFallback(t *testing.T, hosts []string) *POIFallback {
	t.Helper()
	return &POIFallback{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		hosts:      hosts,
		limiter:    ratelimit.NewRegistry(),
		rps:        100,
		cache:      cache.New[[]models.POI](50, time.Minute),
		log:        zap.NewNop().Sugar(),
	}
}

func overpassResponseBody(name, category string) string {
	return `{"elements":[{"type":"node","id":1,"lat":26.9,"lon":75.8,"tags":{"name":"` + name + `","` + category + `":"museum"}}]}`
}

var radiusRe = regexp.MustCompile(`around:(\d+),`)

func TestSearchReturnsResultsFromInterestSpecificLevel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(overpassResponseBody("Amber Fort", "tourism")))
	}))
	defer server.Close()

	f := testFallback(t, []string{server.URL})
	pois, err := f.Search(context.Background(), models.Location{Lat: 26.9, Lon: 75.8}, []string{"culture"}, 10)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, "Amber Fort", pois[0].Name)
}

func TestSearchEscalatesToBroaderFiltersWhenInterestSpecificQueryIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		data := r.FormValue("data")
		if strings.Contains(data, `~"^(`) {
			// interest-specific union query: answer with nothing, forcing escalation
			w.Write([]byte(`{"elements":[]}`))
			return
		}
		// broader existence-only query: this is the escalation step that succeeds
		w.Write([]byte(overpassResponseBody("Some Plaza", "tourism")))
	}))
	defer server.Close()

	f := testFallback(t, []string{server.URL})
	pois, err := f.Search(context.Background(), models.Location{Lat: 26.9, Lon: 75.8}, []string{"culture"}, 10)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, "Some Plaza", pois[0].Name)
}

func TestSearchShrinksRadiusOnlyAfterGatewayTimeoutsNotZeroResults(t *testing.T) {
	var seenRadii []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if m := radiusRe.FindStringSubmatch(r.FormValue("data")); m != nil {
			seenRadii = append(seenRadii, m[1])
		}
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	f := testFallback(t, []string{server.URL})
	pois, err := f.Search(context.Background(), models.Location{Lat: 26.9, Lon: 75.8}, []string{"culture"}, 10)
	require.NoError(t, err)
	assert.Nil(t, pois)
	// one request per escalation level (single host): 10000 -> shrunk 30% ->
	// shrunk a further 50%, and no third shrink despite a third timeout.
	assert.Equal(t, []string{"10000", "7000", "3500"}, seenRadii)
}

func TestSearchDoesNotShrinkRadiusOnPlainZeroResultAcrossLevels(t *testing.T) {
	var seenRadii []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if m := radiusRe.FindStringSubmatch(r.FormValue("data")); m != nil {
			seenRadii = append(seenRadii, m[1])
		}
		w.Write([]byte(`{"elements":[]}`))
	}))
	defer server.Close()

	f := testFallback(t, []string{server.URL})
	pois, err := f.Search(context.Background(), models.Location{Lat: 26.9, Lon: 75.8}, []string{"culture"}, 10)
	require.NoError(t, err)
	assert.Nil(t, pois)
	for _, r := range seenRadii {
		assert.Equal(t, "10000", r)
	}
}

func TestSearchFallsBackToNextHostOnNonTimeoutError(t *testing.T) {
	unreachable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachableURL := unreachable.URL
	unreachable.Close() // closed: connection refused, not a gateway timeout

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(overpassResponseBody("Amber Fort", "tourism")))
	}))
	defer working.Close()

	f := testFallback(t, []string{unreachableURL, working.URL})
	pois, err := f.Search(context.Background(), models.Location{Lat: 26.9, Lon: 75.8}, []string{"culture"}, 10)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, "Amber Fort", pois[0].Name)
}

func TestTagFiltersForInterestsMergesAcrossInterests(t *testing.T) {
	filters := tagFiltersForInterests([]string{"food", "nature"})
	assert.Contains(t, filters["amenity"], "restaurant")
	assert.Contains(t, filters["leisure"], "park")
}

func TestTagFiltersForInterestsDefaultsWhenEmpty(t *testing.T) {
	filters := tagFiltersForInterests(nil)
	assert.Contains(t, filters["tourism"], "attraction")
}

func TestTagFiltersForInterestsCapsAt8Values(t *testing.T) {
	filters := tagFiltersForInterests([]string{"culture", "history"})
	assert.LessOrEqual(t, len(filters["historic"]), 8)
}

func TestBuildQueryIncludesAllElementKinds(t *testing.T) {
	q := buildQuery(models.Location{Lat: 1, Lon: 2}, 5000, map[string][]string{"tourism": {"museum"}})
	assert.True(t, strings.Contains(q, `node["tourism"`))
	assert.True(t, strings.Contains(q, `way["tourism"`))
	assert.True(t, strings.Contains(q, `relation["tourism"`))
}

func TestCategoryFromTagsPrioritizesHistoricOverTourism(t *testing.T) {
	cat, ok := categoryFromTags(map[string]string{"historic": "monument", "tourism": "attraction"})
	assert.True(t, ok)
	assert.Equal(t, models.CategoryHistorical, cat)
}

func TestCategoryFromTagsUnrecognizedReturnsFalse(t *testing.T) {
	_, ok := categoryFromTags(map[string]string{"building": "yes"})
	assert.False(t, ok)
}

func TestParseElementRequiresNameAndValidLocation(t *testing.T) {
	el := overpassElement{Type: "node", ID: 42, Lat: 26.9, Lon: 75.8, Tags: map[string]string{"name": "Amber Fort", "historic": "castle"}}
	poi, ok := parseElement(el)
	assert.True(t, ok)
	assert.Equal(t, "node:42", poi.SourceID)
	assert.Equal(t, "Amber Fort", poi.Name)
	assert.Equal(t, models.CategoryHistorical, poi.Category)
}

func TestParseElementRejectsMissingName(t *testing.T) {
	el := overpassElement{Type: "node", ID: 1, Lat: 1, Lon: 1, Tags: map[string]string{"historic": "castle"}}
	_, ok := parseElement(el)
	assert.False(t, ok)
}

func TestParseElementUsesCenterWhenPresent(t *testing.T) {
	el := overpassElement{
		Type: "way", ID: 7, Lat: 0, Lon: 0,
		Center: &struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		}{Lat: 10, Lon: 20},
		Tags: map[string]string{"name": "Big Park", "leisure": "park"},
	}
	poi, ok := parseElement(el)
	assert.True(t, ok)
	assert.Equal(t, 10.0, poi.Location.Lat)
	assert.Equal(t, 20.0, poi.Location.Lon)
}
