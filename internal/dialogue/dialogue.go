// Package dialogue implements the multi-turn dialogue state machine:
// intent routing, slot-filling with bounded clarifications, and the
// confirmation gate.
package dialogue

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"travelorch/internal/builder"
	"travelorch/internal/config"
	"travelorch/internal/edit"
	"travelorch/internal/eval"
	"travelorch/internal/explain"
	"travelorch/internal/models"
	"travelorch/internal/poisearch"
	"travelorch/internal/providers"
	"travelorch/internal/session"
)

// Intent enumerates the dialogue machine's routed intents.
type Intent string

const (
	IntentPlanTrip Intent = "PLAN_TRIP"
	IntentEdit     Intent = "EDIT_ITINERARY"
	IntentExplain  Intent = "EXPLAIN"
	IntentClarify  Intent = "CLARIFY"
	IntentOther    Intent = "OTHER"
)

// Status mirrors spec §6's turn() status values.
type Status string

const (
	StatusSuccess              Status = "success"
	StatusClarifying           Status = "clarifying"
	StatusConfirmationRequired Status = "confirmation_required"
	StatusError                Status = "error"
)

// TurnResult is turn()'s return shape.
type TurnResult struct {
	Status                   Status              `json:"status"`
	Message                  string              `json:"message"`
	Itinerary                *models.Itinerary   `json:"itinerary,omitempty"`
	Sources                  []models.Source     `json:"sources,omitempty"`
	Evaluation               *models.Evaluation  `json:"evaluation,omitempty"`
	SessionID                string              `json:"session_id"`
	ClarifyingQuestionsCount int                 `json:"clarifying_questions_count,omitempty"`
	Question                 string              `json:"question,omitempty"`
}

// Machine ties the session store to the provider pipeline and evaluators.
type Machine struct {
	Store    *session.Store
	Search   *poisearch.Pipeline
	Builder  *builder.Builder
	Router   *providers.Router
	Weather  *providers.WeatherProvider
	LLM      *providers.LLM
	EditEngine *edit.Engine
	Explain  *explain.Generator
	cfg      *config.Config
	log      *zap.SugaredLogger
}

func New(store *session.Store, search *poisearch.Pipeline, b *builder.Builder, router *providers.Router, weather *providers.WeatherProvider, llm *providers.LLM, editEngine *edit.Engine, explainGen *explain.Generator, cfg *config.Config, log *zap.SugaredLogger) *Machine {
	return &Machine{Store: store, Search: search, Builder: b, Router: router, Weather: weather, LLM: llm, EditEngine: editEngine, Explain: explainGen, cfg: cfg, log: log}
}

var confirmationWords = map[string]bool{"yes": true, "confirm": true, "proceed": true, "sure": true, "ok": true, "okay": true, "go ahead": true}

func isConfirmation(text string) bool {
	return confirmationWords[strings.ToLower(strings.TrimSpace(text))]
}

var ruleBasedIntents = []struct {
	pattern *regexp.Regexp
	intent  Intent
}{
	{regexp.MustCompile(`(?i)\b(swap|move|change|add|remove)\b.*\b(day|pace|activity)\b`), IntentEdit},
	{regexp.MustCompile(`(?i)\b(why|what if|how long|is this feasible|feasible)\b`), IntentExplain},
	{regexp.MustCompile(`(?i)\bplan|trip|visit|travel to\b`), IntentPlanTrip},
}

// ClassifyIntent uses the fast LLM with a rule-based fallback.
func (m *Machine) ClassifyIntent(ctx context.Context, text string, hasItinerary, hasPendingQuestion bool) Intent {
	if hasPendingQuestion {
		return IntentClarify
	}
	prompt := fmt.Sprintf("Classify this travel-planning message into exactly one of PLAN_TRIP, EDIT_ITINERARY, EXPLAIN, OTHER. Message: %q. Respond with the label only.", text)
	raw, err := m.LLM.Fast(ctx, providers.ChatRequest{Prompt: prompt, Temperature: 0, MaxTokens: 10})
	if err == nil {
		label := strings.ToUpper(strings.TrimSpace(raw))
		switch Intent(label) {
		case IntentPlanTrip, IntentEdit, IntentExplain, IntentOther:
			if Intent(label) == IntentEdit && !hasItinerary {
				return IntentPlanTrip
			}
			return Intent(label)
		}
	}
	for _, r := range ruleBasedIntents {
		if r.pattern.MatchString(text) {
			if r.intent == IntentEdit && !hasItinerary {
				continue
			}
			return r.intent
		}
	}
	return IntentOther
}

// Turn processes one inbound user turn.
func (m *Machine) Turn(ctx context.Context, sessionID, userText string) TurnResult {
	var sess *models.Session
	if sessionID != "" {
		sess = m.Store.Get(sessionID)
	}
	if sess == nil {
		sess = m.Store.Create()
	}
	unlock := m.Store.Lock(sess.ID)
	defer unlock()

	m.Store.AppendMessage(sess, "user", userText)

	hasPendingQuestion := len(sess.ClarifyingQuestionsAsked) > 0 && len(sess.Preferences.MissingSlots()) > 0
	intent := m.ClassifyIntent(ctx, userText, sess.Itinerary != nil, hasPendingQuestion)

	switch intent {
	case IntentEdit:
		return m.handleEdit(ctx, sess, userText)
	case IntentExplain:
		return m.handleExplain(ctx, sess, userText)
	case IntentClarify:
		return m.handlePlanTrip(ctx, sess, userText)
	default:
		return m.handlePlanTrip(ctx, sess, userText)
	}
}

func (m *Machine) handlePlanTrip(ctx context.Context, sess *models.Session, userText string) TurnResult {
	if sess.Confirmed && isConfirmation(userText) {
		return m.planAndBuild(ctx, sess)
	}

	update := ExtractPreferences(userText)
	m.Store.UpdatePreferences(sess, update)

	missing := sess.Preferences.MissingSlots()
	var toAsk string
	for _, slot := range missing {
		if !session.AlreadyAsked(sess, slot) {
			toAsk = slot
			break
		}
	}

	if toAsk != "" && sess.ClarificationCount < m.cfg.MaxClarificationTurns {
		m.Store.RecordClarifyingQuestion(sess, toAsk)
		question := clarifyingQuestionFor(toAsk)
		m.Store.AppendMessage(sess, "assistant", question)
		return TurnResult{
			Status: StatusClarifying, Message: question, SessionID: sess.ID,
			ClarifyingQuestionsCount: sess.ClarificationCount, Question: question,
		}
	}

	if !sess.Preferences.MandatorySlotsPresent() {
		return TurnResult{Status: StatusError, Message: "I need at least a destination city and trip duration to continue.", SessionID: sess.ID}
	}

	if !sess.Confirmed {
		summary := summarize(sess.Preferences)
		sess.Confirmed = true // awaiting confirmation; gate flips to "confirmed pending" here
		m.Store.AppendMessage(sess, "assistant", summary)
		return TurnResult{Status: StatusConfirmationRequired, Message: summary, SessionID: sess.ID}
	}

	return m.planAndBuild(ctx, sess)
}

func (m *Machine) planAndBuild(ctx context.Context, sess *models.Session) TurnResult {
	prefs := sess.Preferences
	pois, center, err := m.Search.Search(ctx, prefs.City, prefs.Interests, nil, "", "", 30)
	if err != nil {
		return TurnResult{Status: StatusError, Message: err.Error(), SessionID: sess.ID}
	}

	windows := make([]builder.DayWindow, *prefs.DurationDays)
	for i := range windows {
		windows[i] = builder.DayWindow{Day: i + 1, Start: "09:00", End: "21:00"}
	}
	startingPoint := center

	result := m.Builder.Build(ctx, poisearch.NormalizeCityName(prefs.City), pois, windows, prefs.Pace, prefs.Interests, startingPoint, prefs.TravelMode)
	result.Itinerary.TravelDates = prefs.TravelDates

	feasibility := eval.EvaluateFeasibility(result.Itinerary)
	grounding := eval.EvaluateGrounding(result.Itinerary)
	evaluation := &models.Evaluation{Feasibility: feasibility, Grounding: grounding}

	var sources []models.Source
	for _, p := range pois {
		sources = append(sources, models.SourceFromPOI(p))
	}

	m.Store.SetItinerary(sess, &result.Itinerary)
	m.Store.SetSources(sess, sources)
	m.Store.SetEvaluation(sess, evaluation)

	return TurnResult{
		Status: StatusSuccess, Message: "Here is your itinerary.", Itinerary: &result.Itinerary,
		Sources: sources, Evaluation: evaluation, SessionID: sess.ID,
	}
}

// HandleExplain answers a question directly, bypassing intent
// classification — used by the dedicated explain endpoint.
func (m *Machine) HandleExplain(ctx context.Context, sessionID, question string) TurnResult {
	sess := m.Store.Get(sessionID)
	if sess == nil {
		return TurnResult{Status: StatusError, Message: "unknown or expired session"}
	}
	unlock := m.Store.Lock(sess.ID)
	defer unlock()
	return m.handleExplain(ctx, sess, question)
}

func (m *Machine) handleEdit(ctx context.Context, sess *models.Session, userText string) TurnResult {
	if sess.Itinerary == nil {
		return TurnResult{Status: StatusError, Message: "There is no itinerary yet to edit.", SessionID: sess.ID}
	}
	parser := edit.NewParser(m.LLM, m.log)
	intent, ok := parser.Parse(ctx, userText)
	if !ok {
		return TurnResult{Status: StatusError, Message: "I couldn't understand that edit request.", SessionID: sess.ID}
	}
	newIt, err := m.EditEngine.Apply(ctx, *sess.Itinerary, intent, sess.Preferences.Interests)
	if err != nil {
		return TurnResult{Status: StatusError, Message: err.Error(), SessionID: sess.ID}
	}
	feasibility := eval.EvaluateFeasibility(newIt)
	grounding := eval.EvaluateGrounding(newIt)
	evaluation := &models.Evaluation{Feasibility: feasibility, Grounding: grounding}

	m.Store.SetItinerary(sess, &newIt)
	m.Store.SetEvaluation(sess, evaluation)

	return TurnResult{Status: StatusSuccess, Message: "Itinerary updated.", Itinerary: &newIt, Evaluation: evaluation, SessionID: sess.ID}
}

func (m *Machine) handleExplain(ctx context.Context, sess *models.Session, userText string) TurnResult {
	if sess.Itinerary == nil {
		return TurnResult{Status: StatusError, Message: "There is no itinerary yet to explain.", SessionID: sess.ID}
	}
	var weather []providers.DailyWeather
	if m.Weather != nil {
		weather, _ = m.Weather.Forecast(ctx, sess.Itinerary.StartingPoint, sess.Itinerary.TravelDates)
	}
	result := m.Explain.Explain(ctx, userText, sess.Itinerary, weather, sess.Evaluation)
	return TurnResult{Status: StatusSuccess, Message: result.Explanation, Itinerary: sess.Itinerary, Sources: result.Sources, Evaluation: sess.Evaluation, SessionID: sess.ID}
}

func clarifyingQuestionFor(slot string) string {
	switch slot {
	case "city":
		return "Which city would you like to visit?"
	case "duration_days":
		return "How many days will your trip be?"
	case "travel_mode":
		return "How are you traveling — by road, air, or rail?"
	case "travel_dates":
		return "What dates are you traveling?"
	case "interests":
		return "What are you interested in — culture, food, nature, shopping, nightlife?"
	case "pace":
		return "What pace would you like — relaxed, moderate, or fast?"
	default:
		return "Could you tell me more?"
	}
}

func summarize(p models.Preferences) string {
	days := 0
	if p.DurationDays != nil {
		days = *p.DurationDays
	}
	return fmt.Sprintf("Planning a %d-day trip to %s, %s pace, interests: %s.\nTravel mode: %s.\nShall I proceed?",
		days, p.City, orDefault(string(p.Pace), "moderate"), strings.Join(p.Interests, ", "), orDefault(string(p.TravelMode), "unspecified"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

var numberRe = regexp.MustCompile(`\d+`)

// ExtractPreferences extracts slot-fillable preferences from free text.
// This is a lightweight heuristic extractor and the only slot extractor:
// no model call is made here, and the LLM-based classifier returns an
// intent label only, so phrasings these heuristics miss leave the slot
// empty.
func ExtractPreferences(text string) models.Preferences {
	var p models.Preferences
	lower := strings.ToLower(text)
	matchedOtherSlot := false

	if m := numberRe.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil && strings.Contains(lower, "day") {
			p.DurationDays = &n
			matchedOtherSlot = true
		}
	}

	switch {
	case strings.Contains(lower, "by road") || strings.Contains(lower, "driving"):
		p.TravelMode = models.TravelRoad
		matchedOtherSlot = true
	case strings.Contains(lower, "by air") || strings.Contains(lower, "flying") || strings.Contains(lower, "flight"):
		p.TravelMode = models.TravelAirplane
		matchedOtherSlot = true
	case strings.Contains(lower, "by rail") || strings.Contains(lower, "train"):
		p.TravelMode = models.TravelRailway
		matchedOtherSlot = true
	}

	switch {
	case strings.Contains(lower, "relaxed"):
		p.Pace = models.PaceRelaxed
		matchedOtherSlot = true
	case strings.Contains(lower, "fast") || strings.Contains(lower, "packed"):
		p.Pace = models.PaceFast
		matchedOtherSlot = true
	case strings.Contains(lower, "moderate"):
		p.Pace = models.PaceModerate
		matchedOtherSlot = true
	}

	for _, interest := range []string{"culture", "food", "history", "nature", "shopping", "nightlife", "relaxation"} {
		if strings.Contains(lower, interest) {
			p.Interests = append(p.Interests, interest)
			matchedOtherSlot = true
		}
	}

	if dates := dateRe.FindAllString(text, -1); len(dates) > 0 {
		p.TravelDates = dates
		matchedOtherSlot = true
	}

	if !matchedOtherSlot {
		if city, ok := extractCity(text); ok {
			p.City = poisearch.NormalizeCityName(city)
		}
	}

	return p
}

var dateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

var cityPrepositionRe = regexp.MustCompile(`\b[Tt]o\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)\b`)

func extractCity(text string) (string, bool) {
	if m := cityPrepositionRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	// A bare single-word or two-word reply (e.g. answering "Which city?")
	// is treated as the city name itself when it carries no digits.
	trimmed := strings.TrimSpace(text)
	words := strings.Fields(trimmed)
	if len(words) > 0 && len(words) <= 3 && !numberRe.MatchString(trimmed) {
		return trimmed, true
	}
	return "", false
}
