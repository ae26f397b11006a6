package workflow

import (
	"errors"
	"time"

	"github.com/finbrain/finbrain/internal/analysis"
	"github.com/finbrain/finbrain/internal/subquery"
)

// ErrTimeout is returned when a run misses its deadline. Nothing is written
// to memory for a timed-out run.
var ErrTimeout = errors.New("research workflow timed out")

// Result is the terminal output of a run.
type Result struct {
	Answer          string                 `json:"answer"`
	SubQueries      []string               `json:"sub_queries"`
	OriginalQuery   string                 `json:"original_query"`
	Keywords        []string               `json:"keywords"`
	ContentAnalysis analysis.ContentReport `json:"content_analysis"`
}

// record is the state carried between stages. Stages receive it by value
// and return an extended copy; slices are replaced, never modified.
type record struct {
	query          string
	keywords       []string
	querySentiment analysis.Sentiment
	memory         string
	subQueries     []string
	pairs          []subquery.Pair
	report         analysis.ContentReport
	answer         string
	result         *Result
}

// event is a stage's typed output.
type event struct {
	kind   Kind
	record record
}

// StageEvent describes one finished stage, reported to an Observer. Kind is
// only meaningful when Err is nil.
type StageEvent struct {
	Stage    Stage
	Kind     Kind
	Duration time.Duration
	Err      error
}

// Observer is notified after every stage of a run.
type Observer func(StageEvent)
