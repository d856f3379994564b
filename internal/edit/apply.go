package edit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"travelorch/internal/builder"
	"travelorch/internal/models"
	"travelorch/internal/poisearch"
	"travelorch/internal/providers"
)

// AffectedSections returns the set of section keys (`day_K` or
// `day_K.block`) an edit intent is permitted to touch, per spec §4.5's
// mapping table.
func AffectedSections(intent models.EditIntent, totalDays int) []string {
	switch intent.EditType {
	case models.EditChangePace:
		out := make([]string, totalDays)
		for i := 1; i <= totalDays; i++ {
			out[i-1] = models.DayKey(i)
		}
		return out
	case models.EditSwapDays:
		return []string{models.DayKey(deref(intent.SourceDay)), models.DayKey(deref(intent.TargetDay))}
	case models.EditMoveTimeBlock:
		sections := []string{sectionKey(deref(intent.TargetDay), intent.TargetTimeBlock)}
		if intent.RegenerateVacated {
			sections = append(sections, sectionKey(deref(intent.SourceDay), intent.SourceTimeBlock))
		}
		return sections
	case models.EditAddActivity, models.EditSwapActivity:
		return []string{sectionKey(deref(intent.TargetDay), intent.TargetTimeBlock)}
	case models.EditAddDay:
		return []string{models.DayKey(totalDays + 1)}
	case models.EditRemoveActivity:
		return []string{models.DayKey(deref(intent.TargetDay))}
	case models.EditReduceTravel:
		return nil // no-op if unimplemented, per spec
	default:
		return nil
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func sectionKey(day int, block *models.BlockName) string {
	if block == nil {
		return models.DayKey(day)
	}
	return fmt.Sprintf("%s.%s", models.DayKey(day), *block)
}

// Engine applies an EditIntent to an itinerary, mutating only the
// sections the intent's type permits, then re-running the travel-time
// pass across the whole itinerary.
type Engine struct {
	Builder  *builder.Builder
	Search   *poisearch.Pipeline
	Router   *providers.Router
	log      *zap.SugaredLogger
}

func NewEngine(b *builder.Builder, search *poisearch.Pipeline, router *providers.Router, log *zap.SugaredLogger) *Engine {
	return &Engine{Builder: b, Search: search, Router: router, log: log}
}

// Apply deep-copies the itinerary, mutates it per intent, re-runs the
// travel-time pass, and returns the new itinerary.
func (e *Engine) Apply(ctx context.Context, it models.Itinerary, intent models.EditIntent, interests []string) (models.Itinerary, error) {
	next := deepCopy(it)

	switch intent.EditType {
	case models.EditSwapDays:
		i, j := deref(intent.SourceDay)-1, deref(intent.TargetDay)-1
		if i < 0 || j < 0 || i >= len(next.Days) || j >= len(next.Days) {
			return it, fmt.Errorf("swap day out of range")
		}
		next.Days[i], next.Days[j] = next.Days[j], next.Days[i]

	case models.EditMoveTimeBlock:
		srcDay, tgtDay := deref(intent.SourceDay)-1, deref(intent.TargetDay)-1
		if srcDay < 0 || tgtDay < 0 || srcDay >= len(next.Days) || tgtDay >= len(next.Days) {
			return it, fmt.Errorf("move time block day out of range")
		}
		srcBlockCopy := *next.Days[srcDay].BlockPtr(*intent.SourceTimeBlock)
		tgtBlockCopy := *next.Days[tgtDay].BlockPtr(*intent.TargetTimeBlock)
		*next.Days[tgtDay].BlockPtr(*intent.TargetTimeBlock) = deepCopyBlock(srcBlockCopy)
		if intent.RegenerateVacated {
			excluded := usedKeys(next)
			pois, _, err := e.Search.Search(ctx, next.City, interests, nil, "", "", 10)
			if err == nil {
				fresh := excludeUsed(pois, excluded)
				windows := []builder.DayWindow{{Day: srcDay + 1, Start: "09:00", End: "21:00"}}
				result := e.Builder.Build(ctx, next.City, fresh, windows, next.Pace, interests, next.StartingPoint, next.TravelMode)
				if len(result.Itinerary.Days) > 0 {
					*next.Days[srcDay].BlockPtr(*intent.SourceTimeBlock) = result.Itinerary.Days[0].Block(*intent.SourceTimeBlock)
				}
			}
		} else {
			*next.Days[srcDay].BlockPtr(*intent.SourceTimeBlock) = tgtBlockCopy
		}

	case models.EditAddDay:
		prefix := intent.PlaceName
		pois, _, err := e.Search.Search(ctx, next.City, interests, nil, "", "", 10)
		if err != nil {
			return it, err
		}
		_ = prefix
		newDayNum := len(next.Days) + 1
		windows := []builder.DayWindow{{Day: newDayNum, Start: "09:00", End: "21:00"}}
		result := e.Builder.Build(ctx, next.City, pois, windows, next.Pace, interests, next.StartingPoint, next.TravelMode)
		if len(result.Itinerary.Days) > 0 {
			next.Days = append(next.Days, result.Itinerary.Days[0])
		} else {
			next.Days = append(next.Days, models.DayItinerary{})
		}
		next.DurationDays++
		if len(next.TravelDates) > 0 {
			next.TravelDates = append(next.TravelDates, nextDate(next.TravelDates[len(next.TravelDates)-1]))
		}

	case models.EditAddActivity:
		day, block := deref(intent.TargetDay)-1, intent.TargetTimeBlock
		if day < 0 || day >= len(next.Days) || block == nil {
			return it, fmt.Errorf("add activity target out of range")
		}
		blockPtr := next.Days[day].BlockPtr(*block)
		blockPtr.Activities = append(blockPtr.Activities, models.Activity{
			Name: intent.NewActivityName, Category: models.CategoryAttraction, DurationMin: 60,
		})

	case models.EditRemoveActivity:
		day := deref(intent.TargetDay) - 1
		if day < 0 || day >= len(next.Days) {
			return it, fmt.Errorf("remove activity day out of range")
		}
		for _, blockPtr := range []*models.TimeBlock{&next.Days[day].Morning, &next.Days[day].Afternoon, &next.Days[day].Evening} {
			blockPtr.Activities = removeByName(blockPtr.Activities, intent.TargetActivity)
		}

	case models.EditChangePace:
		// Open question decision: rebuild strategy. Re-running the builder
		// over every day (rather than only patching the pace field) is the
		// only way activity counts actually move toward the new pace's
		// target band. See SPEC_FULL.md §9.
		next.Pace = intent.NewPace
		pois := poisFromItinerary(next)
		if extra, _, err := e.Search.Search(ctx, next.City, interests, nil, "", "", 30); err == nil {
			pois = dedupePOIs(append(pois, extra...))
		}
		windows := make([]builder.DayWindow, len(next.Days))
		for i := range windows {
			windows[i] = builder.DayWindow{Day: i + 1, Start: "09:00", End: "21:00"}
		}
		if len(pois) > 0 {
			result := e.Builder.Build(ctx, next.City, pois, windows, next.Pace, interests, next.StartingPoint, next.TravelMode)
			if len(result.Itinerary.Days) == len(next.Days) {
				next.Days = result.Itinerary.Days
			}
		}

	case models.EditReduceTravel:
		// No-op, per spec's explicit "no-op if unimplemented".
	}

	builder.ApplyTravelTimes(ctx, e.Router, &next)
	return next, nil
}

func removeByName(activities []models.Activity, name string) []models.Activity {
	lower := strings.ToLower(name)
	out := activities[:0:0]
	for _, a := range activities {
		if strings.Contains(strings.ToLower(a.Name), lower) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func usedKeys(it models.Itinerary) map[string]bool {
	used := map[string]bool{}
	for _, day := range it.Days {
		for _, a := range day.AllActivities() {
			if a.SourceID != "" {
				used[a.SourceID] = true
			}
		}
	}
	return used
}

// poisFromItinerary reconstructs the POI records backing an itinerary's
// current activities, so a rebuild can prefer already-grounded choices
// before reaching for a fresh search.
func poisFromItinerary(it models.Itinerary) []models.POI {
	var pois []models.POI
	for _, day := range it.Days {
		for _, a := range day.AllActivities() {
			if a.SourceID == "" {
				continue
			}
			pois = append(pois, models.POI{
				DataSource: a.DataSource, SourceID: a.SourceID, Name: a.Name, Category: a.Category,
				Location: a.Location, DurationMin: a.DurationMin, Rating: a.Rating,
				Description: a.Description, OpeningHours: a.OpeningHours,
			})
		}
	}
	return pois
}

func dedupePOIs(pois []models.POI) []models.POI {
	seen := make(map[string]bool, len(pois))
	out := make([]models.POI, 0, len(pois))
	for _, p := range pois {
		key := p.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func excludeUsed(pois []models.POI, used map[string]bool) []models.POI {
	out := make([]models.POI, 0, len(pois))
	for _, p := range pois {
		if !used[p.SourceID] {
			out = append(out, p)
		}
	}
	return out
}

func nextDate(last string) string {
	// Minimal date-plus-one-day for the YYYY-MM-DD format the dialogue
	// layer produces; avoids pulling in a date library for one increment.
	var y, m, d int
	if _, err := fmt.Sscanf(last, "%d-%d-%d", &y, &m, &d); err != nil {
		return last
	}
	daysInMonth := []int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	if m == 2 && (y%4 == 0 && (y%100 != 0 || y%400 == 0)) {
		daysInMonth[1] = 29
	}
	d++
	if d > daysInMonth[m-1] {
		d = 1
		m++
		if m > 12 {
			m = 1
			y++
		}
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

func deepCopy(it models.Itinerary) models.Itinerary {
	raw, _ := json.Marshal(it)
	var out models.Itinerary
	_ = json.Unmarshal(raw, &out)
	return out
}

func deepCopyBlock(b models.TimeBlock) models.TimeBlock {
	raw, _ := json.Marshal(b)
	var out models.TimeBlock
	_ = json.Unmarshal(raw, &out)
	return out
}

// ChangedSections returns the set of day-level section keys whose
// serialized form differs between old and new, for the edit-correctness
// evaluator.
func ChangedSections(oldIt, newIt models.Itinerary) []string {
	var changed []string
	n := len(oldIt.Days)
	if len(newIt.Days) > n {
		n = len(newIt.Days)
	}
	for i := 0; i < n; i++ {
		var oldDay, newDay models.DayItinerary
		if i < len(oldIt.Days) {
			oldDay = oldIt.Days[i]
		}
		if i < len(newIt.Days) {
			newDay = newIt.Days[i]
		}
		oldRaw, _ := json.Marshal(oldDay)
		newRaw, _ := json.Marshal(newDay)
		if string(oldRaw) != string(newRaw) {
			changed = append(changed, models.DayKey(i+1))
		}
	}
	return changed
}
