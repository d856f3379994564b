// Package analytics implements a best-effort BigQuery event sink for
// planning-turn and evaluation outcomes, adapted from the teacher's
// booking-analytics service.
package analytics

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"travelorch/internal/config"
)

// TurnEvent is one row of planning-turn telemetry.
type TurnEvent struct {
	SessionID       string    `bigquery:"session_id"`
	City            string    `bigquery:"city"`
	Intent          string    `bigquery:"intent"`
	Status          string    `bigquery:"status"`
	FeasibilityScore float64  `bigquery:"feasibility_score"`
	GroundingScore  float64   `bigquery:"grounding_score"`
	ClarificationCount int    `bigquery:"clarification_count"`
	CreatedAt       time.Time `bigquery:"created_at"`
}

// EditEvent is one row of edit-outcome telemetry.
type EditEvent struct {
	SessionID string    `bigquery:"session_id"`
	EditType  string    `bigquery:"edit_type"`
	IsCorrect bool      `bigquery:"is_correct"`
	CreatedAt time.Time `bigquery:"created_at"`
}

// Sink streams events to BigQuery. Construction never fails the caller:
// when no project id is configured, or the client cannot be built, the
// sink degrades to a no-op, matching the teacher's graceful-degradation
// pattern for optional cloud services.
type Sink struct {
	client  *bigquery.Client
	dataset string
	turns   chan TurnEvent
	edits   chan EditEvent
	log     *zap.SugaredLogger
}

// New constructs the sink. ctx is used only for the initial client dial.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) *Sink {
	s := &Sink{dataset: cfg.BigQueryDataset, log: log}
	if cfg.GoogleCloudProjectID == "" {
		log.Infow("analytics sink disabled: no google cloud project configured")
		return s
	}

	var opts []option.ClientOption
	if cfg.GoogleApplicationCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GoogleApplicationCredentials))
	}
	client, err := bigquery.NewClient(ctx, cfg.GoogleCloudProjectID, opts...)
	if err != nil {
		log.Warnw("bigquery client unavailable, analytics sink disabled", "error", err)
		return s
	}

	s.client = client
	s.turns = make(chan TurnEvent, 256)
	s.edits = make(chan EditEvent, 256)
	go s.runTurns()
	go s.runEdits()
	return s
}

// RecordTurn enqueues a turn event. Never blocks the caller: a full
// buffer drops the event rather than stalling the conversational path.
func (s *Sink) RecordTurn(e TurnEvent) {
	if s.client == nil {
		return
	}
	e.CreatedAt = time.Now()
	select {
	case s.turns <- e:
	default:
		s.log.Warnw("analytics turn buffer full, dropping event", "session_id", e.SessionID)
	}
}

// RecordEdit enqueues an edit-outcome event.
func (s *Sink) RecordEdit(e EditEvent) {
	if s.client == nil {
		return
	}
	e.CreatedAt = time.Now()
	select {
	case s.edits <- e:
	default:
		s.log.Warnw("analytics edit buffer full, dropping event", "session_id", e.SessionID)
	}
}

func (s *Sink) runTurns() {
	table := s.client.Dataset(s.dataset).Table("planning_turns")
	inserter := table.Inserter()
	ctx := context.Background()
	for e := range s.turns {
		if err := inserter.Put(ctx, e); err != nil {
			s.log.Warnw("failed to insert turn analytics row", "error", err)
		}
	}
}

func (s *Sink) runEdits() {
	table := s.client.Dataset(s.dataset).Table("edit_outcomes")
	inserter := table.Inserter()
	ctx := context.Background()
	for e := range s.edits {
		if err := inserter.Put(ctx, e); err != nil {
			s.log.Warnw("failed to insert edit analytics row", "error", err)
		}
	}
}

// Close stops accepting events and closes the underlying client.
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	close(s.turns)
	close(s.edits)
	return s.client.Close()
}
