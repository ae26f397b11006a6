package orchestrator

import (
	"context"
	"log/slog"
	"time"

	inats "github.com/finbrain/finbrain/internal/nats"
	"github.com/finbrain/finbrain/internal/workflow"
)

// EventPublisher publishes run events.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event inats.RunEvent) error
}

// RunEvents forwards workflow stage events to NATS. It serves runs started
// from both the HTTP and NATS surfaces.
type RunEvents struct {
	publisher EventPublisher
}

func NewRunEvents(publisher EventPublisher) *RunEvents {
	return &RunEvents{publisher: publisher}
}

// StageFinished implements workflow.EventSink. Publishing outlives the run's
// deadline so the failing stage of a timed-out run is still reported.
func (r *RunEvents) StageFinished(ctx context.Context, run workflow.RunInfo, e workflow.StageEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := inats.RunEvent{
		RunID:      run.RunID,
		SessionID:  run.SessionID,
		Stage:      e.Stage.String(),
		Status:     "ok",
		DurationMs: e.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if e.Err != nil {
		event.Status = "error"
		event.Error = e.Err.Error()
	}

	if err := r.publisher.PublishRunEvent(ctx, event); err != nil {
		slog.Warn("publishing run event", "error", err, "run_id", run.RunID, "stage", event.Stage)
	}
}
