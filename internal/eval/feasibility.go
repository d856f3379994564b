// Package eval implements the three evaluators: feasibility, grounding,
// and edit-correctness. Each returns a {pass, score, violations, warnings}
// shape and never fails the calling operation.
package eval

import (
	"fmt"
	"regexp"
	"strings"

	"travelorch/internal/models"
)

const (
	defaultAvailableMinutes = 780 // 13h window, hour-resolution default day
	maxWalkingTimeMin       = 30  // soft threshold (warning)
	maxTransportTimeMin     = 60  // hard threshold (violation)
	hardViolationPenalty    = 0.2
	softViolationPenalty    = 0.1
)

// EvaluateFeasibility checks per-day duration totals, per-transition
// travel times, and per-day activity counts against the itinerary's pace.
func EvaluateFeasibility(it models.Itinerary) models.EvaluationResult {
	score := 1.0
	var violations, warnings []string

	min, max := models.PaceRange(it.Pace)

	for i, day := range it.Days {
		dayKey := models.DayKey(i + 1)
		activities := day.AllActivities()

		totalDuration := 0
		for _, a := range activities {
			totalDuration += a.DurationMin + a.TravelTimeFromPrevious
		}
		if totalDuration > defaultAvailableMinutes {
			violations = append(violations, fmt.Sprintf("%s exceeds available time (%d > %d minutes)", dayKey, totalDuration, defaultAvailableMinutes))
			score -= hardViolationPenalty
		} else if float64(totalDuration) > float64(defaultAvailableMinutes)*0.95 {
			warnings = append(warnings, fmt.Sprintf("%s is within 5%% of the daily time limit", dayKey))
			score -= softViolationPenalty
		}

		for _, a := range activities {
			if a.TravelTimeFromPrevious > maxTransportTimeMin {
				violations = append(violations, fmt.Sprintf("%s: travel time to %q is %d minutes (>%d)", dayKey, a.Name, a.TravelTimeFromPrevious, maxTransportTimeMin))
				score -= hardViolationPenalty
			} else if a.TravelTimeFromPrevious > maxWalkingTimeMin {
				warnings = append(warnings, fmt.Sprintf("%s: travel time to %q is %d minutes (>%d)", dayKey, a.Name, a.TravelTimeFromPrevious, maxWalkingTimeMin))
				score -= softViolationPenalty
			}
		}

		count := len(activities)
		if count < min || count > max {
			warnings = append(warnings, fmt.Sprintf("%s has %d activities, outside the %s pace range [%d,%d]", dayKey, count, it.Pace, min, max))
			score -= softViolationPenalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return models.EvaluationResult{
		Pass:       len(violations) == 0,
		Score:      score,
		Violations: violations,
		Warnings:   warnings,
	}
}

var sourceIDPattern = regexp.MustCompile(`^(way|node|relation):\d+$|^place_id:.+$`)

const groundingPenaltyPerMissing = 0.1

// EvaluateGrounding checks that every activity carries a valid source_id.
func EvaluateGrounding(it models.Itinerary) models.EvaluationResult {
	var total, ok int
	var violations []string

	for i, day := range it.Days {
		dayKey := models.DayKey(i + 1)
		for _, a := range day.AllActivities() {
			total++
			if sourceIDPattern.MatchString(a.SourceID) {
				ok++
			} else {
				violations = append(violations, fmt.Sprintf("%s: activity %q has no valid source_id", dayKey, a.Name))
			}
		}
	}

	score := 1.0
	if total > 0 {
		score = float64(ok) / float64(total)
	}
	score -= float64(total-ok) * groundingPenaltyPerMissing
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return models.EvaluationResult{
		Pass:       ok == total,
		Score:      score,
		Violations: violations,
	}
}

// factualClaimTriggers are words that mark an explanation sentence as
// making a factual-sounding claim, which must then carry a source.
var factualClaimTriggers = []string{"famous", "popular", "known", "historic"}

// ExplanationNeedsSource reports whether an explanation's text contains a
// factual-claim trigger word and therefore requires at least one source.
func ExplanationNeedsSource(explanation string) bool {
	lower := strings.ToLower(explanation)
	for _, trigger := range factualClaimTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}
