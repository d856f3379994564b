// Package orchestrator assembles every provider, engine, and evaluator
// into the three operations the API surface exposes: Turn, Edit, and
// Explain. It is the graceful-degradation composition root, adapted from
// the teacher's services.go construction pattern: optional external
// dependencies (Vertex AI, Google Places, BigQuery) degrade to a fallback
// rather than preventing startup.
package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"travelorch/internal/analytics"
	"travelorch/internal/builder"
	"travelorch/internal/config"
	"travelorch/internal/dialogue"
	"travelorch/internal/edit"
	"travelorch/internal/eval"
	"travelorch/internal/explain"
	"travelorch/internal/models"
	"travelorch/internal/poisearch"
	"travelorch/internal/providers"
	"travelorch/internal/ratelimit"
	"travelorch/internal/session"
)

// Services is the process-wide dependency graph.
type Services struct {
	Config   *config.Config
	Log      *zap.SugaredLogger
	Sessions *session.Store
	Dialogue *dialogue.Machine
	Edit     *edit.Engine
	Analytics *analytics.Sink
	LLM      *providers.LLM
}

// New constructs the full dependency graph. Provider construction never
// fails the process: an uncredentialed provider degrades to its fallback
// (or, for the primary POI provider, to nil — the search pipeline treats
// a nil primary as "skip straight to fallback").
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) *Services {
	limiter := ratelimit.NewRegistry()

	geocoder := providers.NewGeocoder(cfg, limiter, log)
	poiPrimary, err := providers.NewPOIPrimary(cfg, limiter, log)
	if err != nil {
		log.Warnw("primary poi provider unavailable, falling back to openstreetmap only", "error", err)
	}
	poiFallback := providers.NewPOIFallback(cfg, limiter, log)
	router := providers.NewRouter(cfg, limiter, log)
	weather := providers.NewWeatherProvider(cfg, limiter, log)
	llm := providers.NewLLM(ctx, cfg, limiter, log)

	search := poisearch.New(geocoder, poiPrimary, poiFallback, log)
	b := builder.New(llm, router, log)
	editEngine := edit.NewEngine(b, search, router, log)
	explainGen := explain.New(llm, nil, log)

	sessions := session.New(cfg.SessionTTL)
	sink := analytics.New(ctx, cfg, log)

	machine := dialogue.New(sessions, search, b, router, weather, llm, editEngine, explainGen, cfg, log)

	return &Services{
		Config: cfg, Log: log, Sessions: sessions, Dialogue: machine,
		Edit: editEngine, Analytics: sink, LLM: llm,
	}
}

// Turn processes one inbound user message and returns the dialogue
// machine's result, recording turn-level analytics as a side effect.
func (s *Services) Turn(ctx context.Context, sessionID, userText string) dialogue.TurnResult {
	result := s.Dialogue.Turn(ctx, sessionID, userText)

	event := analytics.TurnEvent{SessionID: result.SessionID, Status: string(result.Status)}
	if result.Itinerary != nil {
		event.City = result.Itinerary.City
	}
	if result.Evaluation != nil {
		event.FeasibilityScore = result.Evaluation.Feasibility.Score
		event.GroundingScore = result.Evaluation.Grounding.Score
	}
	event.ClarificationCount = result.ClarifyingQuestionsCount
	s.Analytics.RecordTurn(event)

	return result
}

// Edit applies a natural-language edit command to the session's current
// itinerary and evaluates the result's correctness.
func (s *Services) Edit(ctx context.Context, sessionID, command string) dialogue.TurnResult {
	sess := s.Sessions.Get(sessionID)
	if sess == nil {
		return dialogue.TurnResult{Status: dialogue.StatusError, Message: "unknown or expired session"}
	}
	unlock := s.Sessions.Lock(sess.ID)
	defer unlock()

	if sess.Itinerary == nil {
		return dialogue.TurnResult{Status: dialogue.StatusError, Message: "no itinerary to edit", SessionID: sess.ID}
	}

	parser := edit.NewParser(s.LLM, s.Log)
	intent, ok := parser.Parse(ctx, command)
	if !ok {
		return dialogue.TurnResult{Status: dialogue.StatusError, Message: "couldn't parse that edit", SessionID: sess.ID}
	}

	oldIt := *sess.Itinerary
	newIt, err := s.Edit.Apply(ctx, oldIt, intent, sess.Preferences.Interests)
	if err != nil {
		return dialogue.TurnResult{Status: dialogue.StatusError, Message: err.Error(), SessionID: sess.ID}
	}

	correctness := eval.EvaluateEditCorrectness(oldIt, newIt, intent)
	evaluation := &models.Evaluation{
		Feasibility: eval.EvaluateFeasibility(newIt),
		Grounding:   eval.EvaluateGrounding(newIt),
	}

	s.Sessions.SetItinerary(sess, &newIt)
	s.Sessions.SetEvaluation(sess, evaluation)

	s.Analytics.RecordEdit(analytics.EditEvent{SessionID: sess.ID, EditType: string(intent.EditType), IsCorrect: correctness.IsCorrect})

	return dialogue.TurnResult{Status: dialogue.StatusSuccess, Message: "Itinerary updated.", Itinerary: &newIt, Evaluation: evaluation, SessionID: sess.ID}
}

// Explain answers a natural-language question about the session's
// current itinerary, bypassing intent classification.
func (s *Services) Explain(ctx context.Context, sessionID, question string) dialogue.TurnResult {
	return s.Dialogue.HandleExplain(ctx, sessionID, question)
}
