package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MemoryProvider returns the memory of a session.
type MemoryProvider func(sessionID string) (Memory, error)

// RunInfo identifies a run in reported events.
type RunInfo struct {
	RunID     string
	SessionID string
}

// EventSink receives stage events of every run started by a Service.
type EventSink interface {
	StageFinished(ctx context.Context, run RunInfo, e StageEvent)
}

// Service starts runs on behalf of sessions. It is shared by the HTTP and
// NATS surfaces.
type Service struct {
	deps   Deps
	memory MemoryProvider
	opts   Options
	sink   EventSink
}

// NewService creates a Service. sink may be nil.
func NewService(deps Deps, memory MemoryProvider, opts Options, sink EventSink) *Service {
	return &Service{deps: deps, memory: memory, opts: opts, sink: sink}
}

// Run answers query within the session's memory.
func (s *Service) Run(ctx context.Context, sessionID, query string) (*Result, error) {
	mem, err := s.memory(sessionID)
	if err != nil {
		return nil, fmt.Errorf("opening session memory: %w", err)
	}

	opts := s.opts
	if s.sink != nil {
		info := RunInfo{RunID: uuid.NewString(), SessionID: sessionID}
		opts.Observer = func(e StageEvent) {
			s.sink.StageFinished(ctx, info, e)
		}
	}
	return New(s.deps, mem, opts).Run(ctx, query)
}
