// Package builder implements the itinerary builder: an LLM-driven
// selection/ordering pass followed by a deterministic, authoritative
// enrichment pass and a travel-time pass.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"travelorch/internal/models"
	"travelorch/internal/providers"
	"travelorch/internal/travel"
)

// DayWindow is one day's planning window.
type DayWindow struct {
	Day   int
	Start string
	End   string
}

// Result is the builder's output.
type Result struct {
	Itinerary       models.Itinerary
	TotalTravelTime int
	Explanation     string
}

// Builder composes the LLM selection pass with deterministic enrichment.
type Builder struct {
	LLM    *providers.LLM
	Router *providers.Router
	log    *zap.SugaredLogger
}

func New(llm *providers.LLM, router *providers.Router, log *zap.SugaredLogger) *Builder {
	return &Builder{LLM: llm, Router: router, log: log}
}

// llmDayPlan is the day-keyed structure the selection prompt is asked to
// produce; parsing this is the single boundary where dynamic LLM JSON
// becomes typed Go data.
type llmDayPlan struct {
	Morning   []llmActivity `json:"morning"`
	Afternoon []llmActivity `json:"afternoon"`
	Evening   []llmActivity `json:"evening"`
}

type llmActivity struct {
	Name     string `json:"name"`
	SourceID string `json:"source_id"`
}

// Build runs the full selection → enrichment → travel-time pipeline.
func (b *Builder) Build(ctx context.Context, city string, pois []models.POI, windows []DayWindow, pace models.Pace, interests []string, startingPoint models.Location, travelMode models.TravelMode) Result {
	if len(pois) == 0 {
		return Result{
			Itinerary:   emptyItinerary(city, windows, pace, interests, travelMode, startingPoint),
			Explanation: "no points of interest were found for this destination",
		}
	}

	plans := b.selectionPass(ctx, pois, windows, pace, interests)
	days := make([]models.DayItinerary, len(windows))
	for i, w := range windows {
		plan := plans[w.Day]
		days[i] = models.DayItinerary{
			Morning:   enrichBlock(plan.Morning, pois),
			Afternoon: enrichBlock(plan.Afternoon, pois),
			Evening:   enrichBlock(plan.Evening, pois),
		}
	}

	it := models.Itinerary{
		City:          city,
		DurationDays:  len(windows),
		Pace:          pace,
		Interests:     interests,
		TravelMode:    travelMode,
		StartingPoint: startingPoint,
		Days:          days,
	}
	warmTravelTimeCache(ctx, b.Router, it)
	ApplyTravelTimes(ctx, b.Router, &it)

	return Result{Itinerary: it, TotalTravelTime: it.TotalTravelTime, Explanation: "itinerary built from available points of interest"}
}

func emptyItinerary(city string, windows []DayWindow, pace models.Pace, interests []string, mode models.TravelMode, start models.Location) models.Itinerary {
	days := make([]models.DayItinerary, len(windows))
	return models.Itinerary{City: city, DurationDays: len(windows), Pace: pace, Interests: interests, TravelMode: mode, StartingPoint: start, Days: days}
}

// selectionPass prompts the quality LLM for a day-keyed selection/ordering
// plan. On any failure (LLM unavailable or unparseable response) it
// returns the empty-shape fallback so downstream code surfaces zero
// activities rather than crashing.
func (b *Builder) selectionPass(ctx context.Context, pois []models.POI, windows []DayWindow, pace models.Pace, interests []string) map[int]llmDayPlan {
	empty := map[int]llmDayPlan{}
	for _, w := range windows {
		empty[w.Day] = llmDayPlan{}
	}

	prompt := buildSelectionPrompt(pois, windows, pace, interests)
	raw, err := b.LLM.Quality(ctx, providers.ChatRequest{Prompt: prompt, Temperature: 0.4, MaxTokens: 3000})
	if err != nil {
		b.log.Warnw("selection pass llm call failed, using empty day structure", "error", err)
		return empty
	}

	var parsed map[string]llmDayPlan
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		b.log.Warnw("selection pass response unparseable, using empty day structure", "error", err)
		return empty
	}

	out := map[int]llmDayPlan{}
	for _, w := range windows {
		key := fmt.Sprintf("day_%d", w.Day)
		if p, ok := parsed[key]; ok {
			out[w.Day] = p
		} else {
			out[w.Day] = llmDayPlan{}
		}
	}
	return out
}

func buildSelectionPrompt(pois []models.POI, windows []DayWindow, pace models.Pace, interests []string) string {
	min, max := models.PaceRange(pace)
	var b strings.Builder
	b.WriteString("You are building a day-by-day travel itinerary. Use ONLY the points of interest listed below: ")
	b.WriteString("use their exact name, coordinates, source_id, and duration_minutes. Do not invent places.\n\n")
	b.WriteString("Points of interest:\n")
	for _, p := range pois {
		fmt.Fprintf(&b, "- name=%q category=%s lat=%f lon=%f duration=%d source_id=%s opening_hours=%q\n",
			p.Name, p.Category, p.Location.Lat, p.Location.Lon, p.DurationMin, p.SourceID, p.OpeningHours)
	}
	b.WriteString("\nDays and time windows:\n")
	for _, w := range windows {
		fmt.Fprintf(&b, "- day_%d: %s to %s\n", w.Day, w.Start, w.End)
	}
	fmt.Fprintf(&b, "\nTarget %d-%d activities per day for a %s pace, distributed evenly across days. ", min, max, pace)
	b.WriteString("Group activities within roughly 2km of each other in the same day and block where possible. ")
	if contains(interests, "food") {
		b.WriteString("Food is a primary interest: restaurants and cafes should dominate and appear in morning, afternoon, and evening blocks. ")
	}
	b.WriteString("Respond with strict JSON only, shaped as {\"day_1\": {\"morning\": [{\"name\":...,\"source_id\":...}], \"afternoon\": [...], \"evening\": [...]}, ...}.")
	return b.String()
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// extractJSON trims any prose the LLM wrapped around the JSON object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return raw[start : end+1]
}

// enrichBlock applies the deterministic enrichment rule to every LLM
// activity in a block: match against the POI table, then overwrite every
// field from the matched POI. The POI is authoritative.
func enrichBlock(llmActivities []llmActivity, pois []models.POI) models.TimeBlock {
	out := make([]models.Activity, 0, len(llmActivities))
	for _, la := range llmActivities {
		if poi, ok := matchPOI(la, pois); ok {
			out = append(out, models.Activity{
				Name: poi.Name, Category: poi.Category, Location: poi.Location,
				DataSource: poi.DataSource, SourceID: poi.SourceID, DurationMin: poi.DurationMin,
				Rating: poi.Rating, Description: poi.Description, OpeningHours: poi.OpeningHours,
			})
		} else {
			out = append(out, models.Activity{
				Name:        la.Name,
				Category:    models.CategoryAttraction,
				DurationMin: 60,
			})
		}
	}
	return models.TimeBlock{Activities: out}
}

// matchPOI implements the enrichment pass's four-step match: source_id
// equality, case-insensitive exact name, substring containment either
// way, then >=2 significant-word overlap. First hit wins.
func matchPOI(la llmActivity, pois []models.POI) (models.POI, bool) {
	if la.SourceID != "" {
		for _, p := range pois {
			if p.SourceID == la.SourceID {
				return p, true
			}
		}
	}
	lowerName := strings.ToLower(strings.TrimSpace(la.Name))
	for _, p := range pois {
		if strings.ToLower(p.Name) == lowerName {
			return p, true
		}
	}
	for _, p := range pois {
		pLower := strings.ToLower(p.Name)
		if strings.Contains(pLower, lowerName) || strings.Contains(lowerName, pLower) {
			return p, true
		}
	}
	words := significantWords(lowerName)
	for _, p := range pois {
		overlap := 0
		pWords := significantWords(strings.ToLower(p.Name))
		for _, w := range words {
			for _, pw := range pWords {
				if w == pw {
					overlap++
				}
			}
		}
		if overlap >= 2 {
			return p, true
		}
	}
	return models.POI{}, false
}

var stopWords = map[string]bool{"the": true, "a": true, "an": true, "of": true, "and": true}

func significantWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if len(w) > 2 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

// warmTravelTimeCache computes travel.Matrix over every pair of locations
// in the itinerary before the sequential travel-time pass runs, so that
// pass's consecutive-activity lookups land on an already-warm cache. Above
// 25 locations the pairs are fanned out concurrently; at 25 or fewer the
// router's batch path is used, which is a single request only when the
// commercial client is configured and otherwise times the pairs one after
// another.
func warmTravelTimeCache(ctx context.Context, router *providers.Router, it models.Itinerary) {
	locations := []models.Location{it.StartingPoint}
	for _, day := range it.Days {
		for _, a := range day.AllActivities() {
			locations = append(locations, a.Location)
		}
	}
	if len(locations) < 2 {
		return
	}
	mode := "driving"
	if contains(it.Interests, "walking") {
		mode = "walking"
	}
	travel.Matrix(ctx, router, locations, mode)
}

// ApplyTravelTimes runs the travel-time pass: activities are treated as a
// single chronological sequence flattened across days and blocks. The
// first activity of day 1 is timed from the starting point; every other
// activity's travel_time_from_previous is the router result between the
// prior activity's location and this one's.
func ApplyTravelTimes(ctx context.Context, router *providers.Router, it *models.Itinerary) {
	mode := "driving"
	if contains(it.Interests, "walking") {
		mode = "walking"
	}

	prevLocation := it.StartingPoint
	havePrev := it.StartingPoint != (models.Location{})
	first := true

	for di := range it.Days {
		day := &it.Days[di]
		for _, blockPtr := range []*models.TimeBlock{&day.Morning, &day.Afternoon, &day.Evening} {
			for ai := range blockPtr.Activities {
				act := &blockPtr.Activities[ai]
				if first {
					if havePrev {
						res := router.TravelTime(ctx, prevLocation, act.Location, mode)
						act.TravelTimeFromPrevious = res.DurationMinutes
					} else {
						act.TravelTimeFromPrevious = 10 // spec default when no known starting point
					}
					first = false
				} else {
					res := router.TravelTime(ctx, prevLocation, act.Location, mode)
					act.TravelTimeFromPrevious = res.DurationMinutes
				}
				prevLocation = act.Location
			}
		}
	}
	it.RecomputeTotalTravelTime()
}
