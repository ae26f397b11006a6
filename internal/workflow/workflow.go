// Package workflow runs a research query through a fixed pipeline of stages
// driven by an explicit transition table.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finbrain/finbrain/internal/analysis"
	"github.com/finbrain/finbrain/internal/llm"
	"github.com/finbrain/finbrain/internal/metrics"
	"github.com/finbrain/finbrain/internal/subquery"
	"github.com/finbrain/finbrain/internal/summarize"
)

// DefaultTimeout bounds a whole run when Options.Timeout is zero.
const DefaultTimeout = 180 * time.Second

// Memory is the conversational memory of the session a run belongs to.
type Memory interface {
	ContextFor(ctx context.Context, query string) string
	Record(ctx context.Context, user, assistant string) error
}

// Deps are the components a run composes. They are safe for concurrent use
// and shared by every run.
type Deps struct {
	Engine     *subquery.Engine
	Analyzer   *analysis.Analyzer
	Summarizer *summarize.Summarizer
}

// NewDeps builds every stage component from one set of model capabilities.
func NewDeps(caps llm.Capabilities, retriever subquery.Retriever) Deps {
	return Deps{
		Engine:     subquery.NewEngine(caps.Completer, retriever, subquery.DefaultPrompts()),
		Analyzer:   analysis.NewAnalyzer(caps.Completer),
		Summarizer: summarize.New(caps.Completer),
	}
}

type Options struct {
	Timeout            time.Duration
	EnableDeepAnalysis bool
	Observer           Observer
}

// Workflow runs research queries against one session's memory.
type Workflow struct {
	deps        Deps
	memory      Memory
	opts        Options
	transitions transitions
	stages      map[Stage]func(context.Context, record) (event, error)
}

// New creates a Workflow. A nil memory runs without conversational context.
func New(deps Deps, memory Memory, opts Options) *Workflow {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if memory == nil {
		memory = noMemory{}
	}
	w := &Workflow{
		deps:        deps,
		memory:      memory,
		opts:        opts,
		transitions: newTransitions(opts.EnableDeepAnalysis),
	}
	w.stages = map[Stage]func(context.Context, record) (event, error){
		StageAnalyzeQuery:      w.analyzeQuery,
		StageDecomposeQuery:    w.decomposeQuery,
		StageRetrieveContexts:  w.retrieveContexts,
		StageAnalyzeContent:    w.analyzeContent,
		StageSummarizeContexts: w.summarizeContexts,
		StageSynthesizeAnswer:  w.synthesizeAnswer,
		StageStoreAndReturn:    w.storeAndReturn,
	}
	return w
}

// Run drives query through every stage until the terminal stage. If the
// deadline passes first it returns ErrTimeout and memory is left untouched.
func (w *Workflow) Run(ctx context.Context, query string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	slog.Info("research run started", "query", query, "deep_analysis", w.opts.EnableDeepAnalysis)
	start := time.Now()

	stage := StageAnalyzeQuery
	rec := record{query: query, report: analysis.PlaceholderReport()}
	for stage != StageTerminal {
		if err := ctx.Err(); err != nil {
			return nil, w.abort(stage, err)
		}

		run, ok := w.stages[stage]
		if !ok {
			return nil, w.abort(stage, fmt.Errorf("no handler for stage %s", stage))
		}

		began := time.Now()
		ev, err := run(ctx, rec)
		elapsed := time.Since(began)
		metrics.WorkflowStageDuration.WithLabelValues(stage.String()).Observe(elapsed.Seconds())
		w.observe(StageEvent{Stage: stage, Kind: ev.kind, Duration: elapsed, Err: err})
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return nil, w.abort(stage, err)
		}

		next, err := w.transitions.next(stage, ev.kind)
		if err != nil {
			return nil, w.abort(stage, err)
		}
		slog.Debug("stage complete", "stage", stage, "next", next, "duration", elapsed)
		rec, stage = ev.record, next
	}

	metrics.WorkflowRunsTotal.WithLabelValues("success").Inc()
	slog.Info("research run finished", "sub_queries", len(rec.result.SubQueries), "duration", time.Since(start).Round(time.Millisecond))
	return rec.result, nil
}

func (w *Workflow) abort(stage Stage, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.WorkflowRunsTotal.WithLabelValues("timeout").Inc()
		slog.Warn("research run timed out", "stage", stage, "timeout", w.opts.Timeout)
		return fmt.Errorf("%w after %s in %s", ErrTimeout, w.opts.Timeout, stage)
	}
	metrics.WorkflowRunsTotal.WithLabelValues("error").Inc()
	slog.Error("research run failed", "stage", stage, "error", err)
	return fmt.Errorf("%s: %w", stage, err)
}

func (w *Workflow) observe(e StageEvent) {
	if w.opts.Observer != nil {
		w.opts.Observer(e)
	}
}

// analyzeQuery extracts keywords and the query's sentiment and loads the
// session's memory context. Analysis failures degrade to defaults.
func (w *Workflow) analyzeQuery(ctx context.Context, rec record) (event, error) {
	keywords, err := w.deps.Analyzer.Keywords(ctx, rec.query, analysis.DefaultKeywords)
	if err != nil {
		if ctx.Err() != nil {
			return event{}, err
		}
		slog.Warn("keyword extraction failed", "error", err)
		keywords = []string{}
	}

	sentiment, err := w.deps.Analyzer.Sentiment(ctx, rec.query)
	if err != nil {
		if ctx.Err() != nil {
			return event{}, err
		}
		slog.Warn("query sentiment failed", "error", err)
		sentiment = analysis.NeutralSentiment()
	}
	slog.Info("query analyzed", "keywords", keywords, "sentiment", sentiment.Label)

	rec.keywords = keywords
	rec.querySentiment = sentiment
	rec.memory = w.memory.ContextFor(ctx, rec.query)
	return event{kind: KindQueryAnalyzed, record: rec}, nil
}

func (w *Workflow) decomposeQuery(ctx context.Context, rec record) (event, error) {
	subQueries, err := w.deps.Engine.Decompose(ctx, rec.query)
	if err != nil {
		return event{}, err
	}
	for i, sq := range subQueries {
		slog.Debug("sub-query", "n", i+1, "text", sq)
	}

	rec.subQueries = subQueries
	return event{kind: KindSubQueries, record: rec}, nil
}

func (w *Workflow) retrieveContexts(ctx context.Context, rec record) (event, error) {
	pairs, err := w.deps.Engine.RetrieveFor(ctx, rec.subQueries)
	if err != nil {
		return event{}, err
	}
	rec.pairs = pairs
	return event{kind: KindContexts, record: rec}, nil
}

// analyzeContent reports on the concatenated contexts. A failed analysis
// keeps the placeholder report.
func (w *Workflow) analyzeContent(ctx context.Context, rec record) (event, error) {
	texts := make([]string, 0, len(rec.pairs))
	for _, p := range rec.pairs {
		if strings.TrimSpace(p.Context) != "" {
			texts = append(texts, p.Context)
		}
	}
	if len(texts) == 0 {
		return event{kind: KindContentAnalysis, record: rec}, nil
	}

	report, err := w.deps.Analyzer.Content(ctx, strings.Join(texts, "\n\n"))
	if err != nil {
		if ctx.Err() != nil {
			return event{}, err
		}
		slog.Warn("content analysis failed, using placeholder", "error", err)
		report = analysis.PlaceholderReport()
	}
	slog.Info("content analyzed", "entities", report.Entities.Count(), "themes", len(report.Themes), "sentiment", report.Sentiment.Label)

	rec.report = report
	return event{kind: KindContentAnalysis, record: rec}, nil
}

// summarizeContexts compresses each context to a medium summary. A context
// that cannot be summarized, or whose summary is empty, is kept as retrieved.
func (w *Workflow) summarizeContexts(ctx context.Context, rec record) (event, error) {
	pairs := make([]subquery.Pair, len(rec.pairs))
	for i, p := range rec.pairs {
		pairs[i] = p
		if strings.TrimSpace(p.Context) == "" {
			continue
		}

		res, err := w.deps.Summarizer.AutoSummarize(ctx, p.Context, summarize.Medium)
		if err != nil {
			if ctx.Err() != nil {
				return event{}, err
			}
			slog.Warn("summarizing context failed, keeping original", "sub_query", p.SubQuery, "error", err)
			continue
		}
		if strings.TrimSpace(res.Summary) == "" {
			slog.Warn("context summary empty, keeping original", "sub_query", p.SubQuery, "strategy", res.Strategy)
			continue
		}
		slog.Info("context summarized", "strategy", res.Strategy, "from_words", res.OriginalLength, "to_words", res.SummaryLength)
		pairs[i].Context = res.Summary
	}

	rec.pairs = pairs
	return event{kind: KindSummaries, record: rec}, nil
}

func (w *Workflow) synthesizeAnswer(ctx context.Context, rec record) (event, error) {
	answer, err := w.deps.Engine.Synthesize(ctx, rec.query, rec.pairs, enrichment(rec))
	if err != nil {
		return event{}, err
	}
	rec.answer = answer
	return event{kind: KindAnswer, record: rec}, nil
}

// storeAndReturn builds the result and records the turn. A failed memory
// write is logged and the answer still returned, unless the run's deadline
// caused it.
func (w *Workflow) storeAndReturn(ctx context.Context, rec record) (event, error) {
	subQueries := make([]string, len(rec.pairs))
	for i, p := range rec.pairs {
		subQueries[i] = p.SubQuery
	}
	keywords := rec.keywords
	if keywords == nil {
		keywords = []string{}
	}

	rec.result = &Result{
		Answer:          rec.answer,
		SubQueries:      subQueries,
		OriginalQuery:   rec.query,
		Keywords:        keywords,
		ContentAnalysis: rec.report,
	}

	if err := w.memory.Record(ctx, rec.query, rec.answer); err != nil {
		if ctx.Err() != nil {
			return event{}, err
		}
		slog.Error("storing turn in memory", "error", err)
	}
	return event{kind: KindResult, record: rec}, nil
}

// enrichment combines the content report and the session's memory into
// the optional synthesis context.
func enrichment(rec record) string {
	var parts []string
	if s := analysis.Enrichment(rec.report); s != "" {
		parts = append(parts, s)
	}
	if rec.querySentiment.Label != "" && rec.querySentiment.Label != analysis.Neutral {
		parts = append(parts, fmt.Sprintf("Tone of the question: %s", rec.querySentiment.Label))
	}
	if m := strings.TrimSpace(rec.memory); m != "" {
		parts = append(parts, "Conversation memory:\n"+m)
	}
	return strings.Join(parts, "\n\n")
}

type noMemory struct{}

func (noMemory) ContextFor(context.Context, string) string   { return "" }
func (noMemory) Record(context.Context, string, string) error { return nil }
