package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// MaxDeliver caps redeliveries of a query that keeps failing.
const MaxDeliver = 3

// Stream names.
const (
	StreamQueries = "FINBRAIN_QUERIES"
	StreamAnswers = "FINBRAIN_ANSWERS"
	StreamEvents  = "FINBRAIN_EVENTS"
)

// Subject constants.
const (
	SubjectInboundQuery   = "finbrain.queries.inbound"
	SubjectOutboundAnswer = "finbrain.answers.outbound"
	SubjectRunEvent       = "finbrain.events.run"
)

// QueryMessage asks for a research run on behalf of the session that owns
// SessionToken (an access token from POST /api/v1/sessions).
type QueryMessage struct {
	ID           string    `json:"id" validate:"required"`
	SessionToken string    `json:"session_token" validate:"required"`
	Query        string    `json:"query" validate:"required,min=3,max=2000"`
	ReceivedAt   time.Time `json:"received_at"`
}

// AnswerMessage carries the outcome of a query. Exactly one of Result and
// Error is set.
type AnswerMessage struct {
	ID        string `json:"id"`
	InReplyTo string `json:"in_reply_to"`
	SessionID string `json:"session_id,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunEvent is published when a workflow stage finishes.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"` // ok, error
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
