package edit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"travelorch/internal/models"
	"travelorch/internal/providers"
)

// Parser parses a natural-language edit command into an EditIntent,
// trying the fast LLM first with a strict JSON schema and falling back to
// regex patterns when the LLM is unavailable or returns unparseable JSON.
type Parser struct {
	LLM *providers.LLM
	log *zap.SugaredLogger
}

func NewParser(llm *providers.LLM, log *zap.SugaredLogger) *Parser {
	return &Parser{LLM: llm, log: log}
}

// Parse normalizes voice input, then tries the LLM, then regex fallback.
func (p *Parser) Parse(ctx context.Context, rawCommand string) (models.EditIntent, bool) {
	normalized := NormalizeVoiceInput(rawCommand)

	if intent, ok := p.parseViaLLM(ctx, normalized); ok {
		return intent, true
	}
	return parseViaRegex(normalized)
}

func (p *Parser) parseViaLLM(ctx context.Context, command string) (models.EditIntent, bool) {
	prompt := fmt.Sprintf(`Parse this itinerary edit command into strict JSON with fields:
edit_type (one of CHANGE_PACE, SWAP_ACTIVITY, SWAP_DAYS, MOVE_TIME_BLOCK, ADD_ACTIVITY, ADD_DAY, REMOVE_ACTIVITY, REDUCE_TRAVEL),
target_day, source_day (integers, optional), target_time_block, source_time_block (morning/afternoon/evening, optional),
target_activity, new_pace, new_activity_name, place_name (strings, optional), regenerate_vacated (bool).
Command: %q
Respond with JSON only.`, command)

	raw, err := p.LLM.Fast(ctx, providers.ChatRequest{Prompt: prompt, Temperature: 0.1, MaxTokens: 200})
	if err != nil {
		p.log.Debugw("edit parse llm call failed, trying regex fallback", "error", err)
		return models.EditIntent{}, false
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return models.EditIntent{}, false
	}

	var wire struct {
		EditType          string `json:"edit_type"`
		TargetDay         *int   `json:"target_day"`
		SourceDay         *int   `json:"source_day"`
		TargetTimeBlock   string `json:"target_time_block"`
		SourceTimeBlock   string `json:"source_time_block"`
		TargetActivity    string `json:"target_activity"`
		NewPace           string `json:"new_pace"`
		NewActivityName   string `json:"new_activity_name"`
		PlaceName         string `json:"place_name"`
		RegenerateVacated bool   `json:"regenerate_vacated"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return models.EditIntent{}, false
	}
	if wire.EditType == "" {
		return models.EditIntent{}, false
	}

	intent := models.EditIntent{
		EditType:          models.EditType(wire.EditType),
		TargetDay:         wire.TargetDay,
		SourceDay:         wire.SourceDay,
		TargetActivity:    wire.TargetActivity,
		NewPace:           models.Pace(wire.NewPace),
		NewActivityName:   wire.NewActivityName,
		PlaceName:         wire.PlaceName,
		RegenerateVacated: wire.RegenerateVacated,
	}
	if wire.TargetTimeBlock != "" {
		b := models.BlockName(wire.TargetTimeBlock)
		intent.TargetTimeBlock = &b
	}
	if wire.SourceTimeBlock != "" {
		b := models.BlockName(wire.SourceTimeBlock)
		intent.SourceTimeBlock = &b
	}
	return intent, true
}

var (
	swapDaysRe      = regexp.MustCompile(`(?i)swap\s+day\s*(\d+)\s+(?:and|with)\s+day\s*(\d+)`)
	moveBlockRe     = regexp.MustCompile(`(?i)swap\s+day\s*(\d+)\s+(morning|afternoon|evening)\s+with\s+day\s*(\d+)\s+(morning|afternoon|evening)`)
	changePaceRe    = regexp.MustCompile(`(?i)(relaxed|moderate|fast)\s+pace`)
	addDayRe        = regexp.MustCompile(`(?i)add\s+(?:a|one)?\s*(?:more\s+)?day`)
	removeActivity  = regexp.MustCompile(`(?i)remove\s+(.+?)(?:\s+from\s+day\s*(\d+))?$`)
	planSomethingRe = regexp.MustCompile(`(?i)plan\s+something\s+new`)
)

// parseViaRegex is the deterministic fallback used when the LLM is
// unavailable or returns unparseable JSON, grounded on edit_handler.py's
// swap_day_patterns/move_time_patterns.
func parseViaRegex(command string) (models.EditIntent, bool) {
	if m := moveBlockRe.FindStringSubmatch(command); m != nil {
		srcDay, _ := strconv.Atoi(m[1])
		tgtDay, _ := strconv.Atoi(m[3])
		srcBlock := models.BlockName(strings.ToLower(m[2]))
		tgtBlock := models.BlockName(strings.ToLower(m[4]))
		return models.EditIntent{
			EditType: models.EditMoveTimeBlock,
			SourceDay: &srcDay, TargetDay: &tgtDay,
			SourceTimeBlock: &srcBlock, TargetTimeBlock: &tgtBlock,
			RegenerateVacated: planSomethingRe.MatchString(command),
		}, true
	}
	if m := swapDaysRe.FindStringSubmatch(command); m != nil {
		d1, _ := strconv.Atoi(m[1])
		d2, _ := strconv.Atoi(m[2])
		return models.EditIntent{EditType: models.EditSwapDays, SourceDay: &d1, TargetDay: &d2}, true
	}
	if m := changePaceRe.FindStringSubmatch(command); m != nil {
		return models.EditIntent{EditType: models.EditChangePace, NewPace: models.Pace(strings.ToLower(m[1]))}, true
	}
	if addDayRe.MatchString(command) {
		return models.EditIntent{EditType: models.EditAddDay}, true
	}
	if m := removeActivity.FindStringSubmatch(command); m != nil {
		intent := models.EditIntent{EditType: models.EditRemoveActivity, TargetActivity: strings.TrimSpace(m[1])}
		if m[2] != "" {
			day, _ := strconv.Atoi(m[2])
			intent.TargetDay = &day
		}
		return intent, true
	}
	return models.EditIntent{}, false
}
