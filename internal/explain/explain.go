// Package explain implements the explanation generator: question
// classification, grounded answer construction, and citation assembly.
package explain

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"travelorch/internal/models"
	"travelorch/internal/providers"
)

// QuestionType enumerates the question classes the explainer handles.
type QuestionType string

const (
	WhyPOI         QuestionType = "WHY_POI"
	Timing         QuestionType = "TIMING"
	IsFeasible     QuestionType = "IS_FEASIBLE"
	WhatIfWeather  QuestionType = "WHAT_IF_WEATHER"
	WhatIfOther    QuestionType = "WHAT_IF_OTHER"
	General        QuestionType = "GENERAL"
)

// TipChunk is one retrieved tip passage.
type TipChunk struct {
	Text string
	URL  string
	City string
}

// TipRetriever is the out-of-core tip store's consumed interface.
type TipRetriever interface {
	Retrieve(ctx context.Context, city, query string, k int) ([]TipChunk, error)
}

// Result is the explanation generator's output.
type Result struct {
	Explanation  string
	Sources      []models.Source
	QuestionType QuestionType
}

// Generator answers natural-language questions about an itinerary.
type Generator struct {
	LLM      *providers.LLM
	Tips     TipRetriever
	log      *zap.SugaredLogger
}

func New(llm *providers.LLM, tips TipRetriever, log *zap.SugaredLogger) *Generator {
	return &Generator{LLM: llm, Tips: tips, log: log}
}

func classify(question string) QuestionType {
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "rain") || strings.Contains(lower, "weather") || strings.Contains(lower, "snow"):
		return WhatIfWeather
	case strings.Contains(lower, "what if"):
		return WhatIfOther
	case strings.Contains(lower, "feasible") || strings.Contains(lower, "too much") || strings.Contains(lower, "realistic"):
		return IsFeasible
	case strings.Contains(lower, "when") || strings.Contains(lower, "what time") || strings.Contains(lower, "how long"):
		return Timing
	case strings.Contains(lower, "why"):
		return WhyPOI
	default:
		return General
	}
}

// Explain classifies the question and routes to the matching strategy.
func (g *Generator) Explain(ctx context.Context, question string, it *models.Itinerary, weather []providers.DailyWeather, evaluation *models.Evaluation) Result {
	qType := classify(question)
	switch qType {
	case WhyPOI:
		return g.explainWhyPOI(ctx, question, it, qType)
	case Timing:
		return g.explainTiming(question, it, qType)
	case IsFeasible:
		return g.explainFeasibility(evaluation, qType)
	case WhatIfWeather:
		return g.explainWeather(ctx, it, weather, qType)
	default:
		return g.explainGeneral(ctx, question, it, qType)
	}
}

// explainWhyPOI fuzzy-matches the question against every activity name in
// the itinerary, retrieves top-k tip chunks, and grounds the LLM's answer
// in them.
func (g *Generator) explainWhyPOI(ctx context.Context, question string, it *models.Itinerary, qType QuestionType) Result {
	activity, ok := fuzzyMatchActivity(question, it)
	if !ok {
		return g.explainGeneral(ctx, question, it, qType)
	}

	var tips []TipChunk
	if g.Tips != nil {
		tips, _ = g.Tips.Retrieve(ctx, it.City, activity.Name, 3)
	}

	prompt := fmt.Sprintf("Explain why %q is worth visiting, in one or two sentences. Context:\n", activity.Name)
	for _, t := range tips {
		prompt += "- " + t.Text + "\n"
	}
	answer, err := g.LLM.Quality(ctx, providers.ChatRequest{Prompt: prompt, Temperature: 0.5, MaxTokens: 400})
	if err != nil {
		answer = fmt.Sprintf("%s is included for its %s appeal.", activity.Name, activity.Category)
	}

	sources := []models.Source{}
	if activity.SourceID != "" {
		sources = append(sources, models.SourceFromPOI(models.POI{
			DataSource: activity.DataSource, SourceID: activity.SourceID, Name: activity.Name,
			Category: activity.Category, Location: activity.Location, DurationMin: activity.DurationMin,
		}))
	}
	for _, t := range tips {
		sources = append(sources, models.Source{Type: models.SourceTypeWikivoyage, URL: t.URL, Topic: activity.Name, Snippet: t.Text})
	}
	return Result{Explanation: answer, Sources: sources, QuestionType: qType}
}

func fuzzyMatchActivity(question string, it *models.Itinerary) (models.Activity, bool) {
	lowerQ := strings.ToLower(question)
	var best models.Activity
	bestScore := 0
	found := false
	for _, day := range it.Days {
		for _, a := range day.AllActivities() {
			words := strings.Fields(strings.ToLower(a.Name))
			score := 0
			for _, w := range words {
				if len(w) > 2 && strings.Contains(lowerQ, w) {
					score++
				}
			}
			if score > bestScore {
				bestScore = score
				best = a
				found = true
			}
		}
	}
	return best, found && bestScore > 0
}

func (g *Generator) explainTiming(question string, it *models.Itinerary, qType QuestionType) Result {
	activity, ok := fuzzyMatchActivity(question, it)
	if !ok {
		return Result{Explanation: "I couldn't find that activity in the current itinerary.", QuestionType: qType}
	}
	explanation := fmt.Sprintf("%s is scheduled at %s, opening hours: %s.", activity.Name, activity.TimeSlot, orUnknown(activity.OpeningHours))
	return Result{Explanation: explanation, QuestionType: qType}
}

func orUnknown(s string) string {
	if s == "" {
		return "not listed"
	}
	return s
}

func (g *Generator) explainFeasibility(evaluation *models.Evaluation, qType QuestionType) Result {
	if evaluation == nil {
		return Result{Explanation: "This itinerary has not been evaluated yet.", QuestionType: qType}
	}
	status := "feasible"
	if !evaluation.Feasibility.Pass {
		status = "not fully feasible"
	}
	explanation := fmt.Sprintf("This itinerary is %s (feasibility score %.2f).", status, evaluation.Feasibility.Score)
	if len(evaluation.Feasibility.Violations) > 0 {
		explanation += " Issues: " + strings.Join(evaluation.Feasibility.Violations, "; ")
	}
	return Result{Explanation: explanation, QuestionType: qType}
}

func (g *Generator) explainWeather(ctx context.Context, it *models.Itinerary, weather []providers.DailyWeather, qType QuestionType) Result {
	var rainyDays []string
	for i, w := range weather {
		if w.IsRainy {
			rainyDays = append(rainyDays, models.DayKey(i+1))
		}
	}
	if len(rainyDays) == 0 {
		return Result{Explanation: "No rain is expected on this trip.", QuestionType: qType, Sources: []models.Source{{Type: models.SourceTypeWeather}}}
	}

	var tips []TipChunk
	if g.Tips != nil {
		tips, _ = g.Tips.Retrieve(ctx, it.City, "indoor activities", 3)
	}
	explanation := fmt.Sprintf("%s may be affected by rain. Consider indoor alternatives.", strings.Join(rainyDays, ", "))
	sources := []models.Source{{Type: models.SourceTypeWeather}}
	for _, t := range tips {
		sources = append(sources, models.Source{Type: models.SourceTypeWikivoyage, URL: t.URL, Topic: "indoor alternatives", Snippet: t.Text})
	}
	return Result{Explanation: explanation, Sources: sources, QuestionType: qType}
}

func (g *Generator) explainGeneral(ctx context.Context, question string, it *models.Itinerary, qType QuestionType) Result {
	var tips []TipChunk
	if g.Tips != nil {
		tips, _ = g.Tips.Retrieve(ctx, it.City, question, 3)
	}
	prompt := fmt.Sprintf("Answer this question about a trip to %s: %q\nContext:\n", it.City, question)
	for _, t := range tips {
		prompt += "- " + t.Text + "\n"
	}
	answer, err := g.LLM.Quality(ctx, providers.ChatRequest{Prompt: prompt, Temperature: 0.5, MaxTokens: 600})
	if err != nil {
		answer = "I don't have enough information to answer that precisely."
	}
	var sources []models.Source
	for _, t := range tips {
		sources = append(sources, models.Source{Type: models.SourceTypeWikivoyage, URL: t.URL, Snippet: t.Text})
	}
	return Result{Explanation: answer, Sources: sources, QuestionType: qType}
}
