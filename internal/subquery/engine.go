// Package subquery decomposes a research question into sub-questions,
// gathers context for each, and synthesizes one answer.
package subquery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/finbrain/finbrain/internal/llm"
	"github.com/finbrain/finbrain/internal/retrieval"
	"github.com/finbrain/finbrain/internal/textparse"
)

// maxContextChars bounds how much of each context is quoted in synthesis.
const maxContextChars = 800

// maxParallelRetrievals bounds concurrent index lookups per run.
const maxParallelRetrievals = 4

// Pair is a sub-question with the context retrieved for it.
type Pair struct {
	SubQuery string `json:"sub_query"`
	Context  string `json:"context"`
}

// Retriever is the retrieval capability used for each sub-question.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Chunk, error)
}

// Engine issues exactly one completion per Decompose and Synthesize call.
type Engine struct {
	completer llm.Completer
	retriever Retriever
	prompts   Prompts
}

func NewEngine(completer llm.Completer, retriever Retriever, prompts Prompts) *Engine {
	return &Engine{completer: completer, retriever: retriever, prompts: prompts}
}

// Decompose asks the model for 2-4 sub-questions. A response with no list
// yields an empty slice, not an error.
func (e *Engine) Decompose(ctx context.Context, query string) ([]string, error) {
	prompt, err := render(e.prompts.Decompose, struct{ Query string }{query})
	if err != nil {
		return nil, fmt.Errorf("rendering decompose prompt: %w", err)
	}

	resp, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("decomposing query: %w", err)
	}

	subs := textparse.NumberedItems(resp)
	if len(subs) == 0 {
		slog.Warn("decomposition produced no sub-questions", "query", query)
	}
	slog.Info("query decomposed", "sub_queries", len(subs))
	return subs, nil
}

// RetrieveFor gathers context for every sub-question concurrently. The
// result has the same length and order as subQueries.
func (e *Engine) RetrieveFor(ctx context.Context, subQueries []string) ([]Pair, error) {
	pairs := make([]Pair, len(subQueries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRetrievals)
	for i, q := range subQueries {
		g.Go(func() error {
			chunks, err := e.retriever.Retrieve(gctx, q)
			if err != nil {
				return fmt.Errorf("retrieving context for sub-question %d: %w", i+1, err)
			}
			pairs[i] = Pair{SubQuery: q, Context: retrieval.Text(chunks)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Synthesize produces the final answer from the pairs and optional
// enrichment. An empty pairs slice is valid; the model then answers from the
// question alone.
func (e *Engine) Synthesize(ctx context.Context, query string, pairs []Pair, enrichment string) (string, error) {
	prompt, err := render(e.prompts.Synthesize, struct {
		Query      string
		Pairs      string
		Enrichment string
	}{query, FormatPairs(pairs), strings.TrimSpace(enrichment)})
	if err != nil {
		return "", fmt.Errorf("rendering synthesis prompt: %w", err)
	}

	answer, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("synthesizing answer: %w", err)
	}
	return answer, nil
}

// FormatPairs enumerates pairs from 1, quoting at most 800 characters of
// each context.
func FormatPairs(pairs []Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		fmt.Fprintf(&b, "\n%d. Sub-question: %s\n   Answer: %s\n", i+1, p.SubQuery, truncate(p.Context, maxContextChars))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
