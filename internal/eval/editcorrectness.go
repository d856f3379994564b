package eval

import (
	"fmt"
	"strings"

	"travelorch/internal/edit"
	"travelorch/internal/models"
)

// EditCorrectnessResult classifies the edit's actual section changes
// against what its intent type permitted.
type EditCorrectnessResult struct {
	IsCorrect        bool
	ModifiedSections []string
	UnchangedSections []string
	Violations       []string
}

// EvaluateEditCorrectness computes the set of day-level sections whose
// serialized form changed between old and new, and asserts that set
// equals (or, for most edit types, is a subset of) the intent's expected
// set.
func EvaluateEditCorrectness(oldIt, newIt models.Itinerary, intent models.EditIntent) EditCorrectnessResult {
	changed := edit.ChangedSections(oldIt, newIt)
	expected := edit.AffectedSections(intent, len(oldIt.Days))

	changedSet := toSet(changed)
	expectedSet := map[string]bool{}
	for _, k := range expected {
		// Block-level keys ("day_2.evening") are compared at day level,
		// the granularity ChangedSections reports.
		if dot := strings.Index(k, "."); dot >= 0 {
			k = k[:dot]
		}
		expectedSet[k] = true
	}

	var violations []string
	requireExact := intent.EditType == models.EditSwapDays || intent.EditType == models.EditAddDay

	for key := range changedSet {
		if !expectedSet[key] {
			violations = append(violations, fmt.Sprintf("unexpected change to %s", key))
		}
	}
	if requireExact {
		for key := range expectedSet {
			if !changedSet[key] {
				violations = append(violations, fmt.Sprintf("expected change to %s did not occur", key))
			}
		}
	}

	var unchanged []string
	totalDays := len(newIt.Days)
	for i := 1; i <= totalDays; i++ {
		key := models.DayKey(i)
		if !changedSet[key] {
			unchanged = append(unchanged, key)
		}
	}

	return EditCorrectnessResult{
		IsCorrect:         len(violations) == 0,
		ModifiedSections:  changed,
		UnchangedSections: unchanged,
		Violations:        violations,
	}
}

func toSet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}
