package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbrain/finbrain/internal/analysis"
	"github.com/finbrain/finbrain/internal/llm"
	"github.com/finbrain/finbrain/internal/llm/llmtest"
	"github.com/finbrain/finbrain/internal/retrieval"
)

const solarQuery = "Compare the efficiency and cost of solar vs wind energy"

type fakeRetriever struct{}

func (fakeRetriever) Retrieve(_ context.Context, q string) ([]retrieval.Chunk, error) {
	return []retrieval.Chunk{{Text: "Context about " + q, Score: 0.9, Source: "energy.txt"}}, nil
}

// textRetriever returns the same context for every sub-question.
type textRetriever struct{ text string }

func (r textRetriever) Retrieve(context.Context, string) ([]retrieval.Chunk, error) {
	return []retrieval.Chunk{{Text: r.text, Score: 0.8, Source: "grid.txt"}}, nil
}

type fakeMemory struct {
	context string
	err     error

	mu      sync.Mutex
	queries []string
	records [][2]string
}

func (m *fakeMemory) ContextFor(_ context.Context, query string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	return m.context
}

func (m *fakeMemory) Record(_ context.Context, user, assistant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, [2]string{user, assistant})
	return nil
}

func (m *fakeMemory) Records() [][2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]string(nil), m.records...)
}

func researchRules() []llmtest.Rule {
	return []llmtest.Rule{
		{Match: "Based on the following sub-questions", Response: "Solar is cheaper per watt; wind has a higher capacity factor."},
		{Match: "break it down into", Response: "1. How efficient are solar panels?\n2. How efficient are wind turbines?\n3. What do solar and wind cost per MWh?"},
		{Match: "keyword extraction assistant", Response: "solar energy, wind energy, efficiency, cost"},
		{Match: "Analyze the sentiment", Response: "Sentiment: positive\nConfidence: 80\nReasoning: optimistic outlook"},
		{Match: "Extract all important entities", Response: "Organizations: NextEra, Vestas\nNumbers: 22%, 35%"},
		{Match: "most important themes", Response: "Theme 1: Renewable costs\nDescription: Falling prices"},
	}
}

func newDeps(c *llmtest.Completer) Deps {
	return NewDeps(llm.Capabilities{Completer: c}, fakeRetriever{})
}

func synthesisPrompt(t *testing.T, c *llmtest.Completer) string {
	t.Helper()
	for _, p := range c.Prompts() {
		if strings.Contains(p, "Based on the following sub-questions") {
			return p
		}
	}
	t.Fatal("no synthesis prompt sent")
	return ""
}

func TestWorkflow_EndToEnd(t *testing.T) {
	c := &llmtest.Completer{Rules: researchRules()}
	mem := &fakeMemory{}
	var stages []Stage
	wf := New(newDeps(c), mem, Options{Observer: func(e StageEvent) { stages = append(stages, e.Stage) }})

	res, err := wf.Run(context.Background(), solarQuery)
	require.NoError(t, err)

	assert.Equal(t, solarQuery, res.OriginalQuery)
	assert.Equal(t, "Solar is cheaper per watt; wind has a higher capacity factor.", res.Answer)
	assert.Equal(t, []string{
		"How efficient are solar panels?",
		"How efficient are wind turbines?",
		"What do solar and wind cost per MWh?",
	}, res.SubQueries)
	assert.Equal(t, []string{"solar energy", "wind energy", "efficiency", "cost"}, res.Keywords)
	assert.Equal(t, analysis.PlaceholderReport(), res.ContentAnalysis)

	prompt := synthesisPrompt(t, c)
	assert.Contains(t, prompt, "1. Sub-question: How efficient are solar panels?\n   Answer: Context about How efficient are solar panels?")
	assert.Contains(t, prompt, "3. Sub-question: What do solar and wind cost per MWh?")

	assert.Equal(t, [][2]string{{solarQuery, res.Answer}}, mem.Records())
	assert.Equal(t, []string{solarQuery}, mem.queries)

	assert.Equal(t, []Stage{
		StageAnalyzeQuery,
		StageDecomposeQuery,
		StageRetrieveContexts,
		StageSummarizeContexts,
		StageSynthesizeAnswer,
		StageStoreAndReturn,
	}, stages)
}

func TestWorkflow_DeepAnalysis(t *testing.T) {
	c := &llmtest.Completer{Rules: researchRules()}
	var stages []Stage
	wf := New(newDeps(c), &fakeMemory{}, Options{
		EnableDeepAnalysis: true,
		Observer:           func(e StageEvent) { stages = append(stages, e.Stage) },
	})

	res, err := wf.Run(context.Background(), solarQuery)
	require.NoError(t, err)

	assert.Equal(t, []string{"NextEra", "Vestas"}, res.ContentAnalysis.Entities.Organizations)
	assert.Equal(t, []string{"22%", "35%"}, res.ContentAnalysis.Entities.Numbers)
	assert.Equal(t, []string{}, res.ContentAnalysis.Entities.People)
	require.Len(t, res.ContentAnalysis.Themes, 1)
	assert.Equal(t, "Renewable costs", res.ContentAnalysis.Themes[0].Name)
	assert.Equal(t, analysis.Positive, res.ContentAnalysis.Sentiment.Label)

	prompt := synthesisPrompt(t, c)
	assert.Contains(t, prompt, "Additional Context:")
	assert.Contains(t, prompt, "Key entities: NextEra, Vestas")
	assert.Contains(t, prompt, "Main themes: Renewable costs")

	assert.Contains(t, stages, StageAnalyzeContent)
	assert.Equal(t, StageSummarizeContexts, stages[4])
}

func TestWorkflow_TimeoutLeavesMemoryUntouched(t *testing.T) {
	c := &llmtest.Completer{Rules: researchRules(), Delay: 200 * time.Millisecond}
	mem := &fakeMemory{}
	wf := New(newDeps(c), mem, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	res, err := wf.Run(context.Background(), solarQuery)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, res)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "in-flight call is cancelled")
	assert.Empty(t, mem.Records())
}

func TestWorkflow_ParentCancellationIsNotTimeout(t *testing.T) {
	c := &llmtest.Completer{Rules: researchRules()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newDeps(c), nil, Options{}).Run(ctx, solarQuery)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestWorkflow_ZeroSubQueriesStillSynthesizes(t *testing.T) {
	rules := researchRules()
	rules[1] = llmtest.Rule{Match: "break it down into", Response: "This question is already simple."}
	c := &llmtest.Completer{Rules: rules}
	mem := &fakeMemory{}

	res, err := New(newDeps(c), mem, Options{}).Run(context.Background(), "What is solar?")
	require.NoError(t, err)

	assert.Equal(t, []string{}, res.SubQueries)
	assert.NotEmpty(t, res.Answer)
	assert.Len(t, mem.Records(), 1)
}

func TestWorkflow_DecompositionFailureIsFatal(t *testing.T) {
	rules := researchRules()
	provider := errors.New("provider unavailable")
	rules[1] = llmtest.Rule{Match: "break it down into", Err: provider}
	mem := &fakeMemory{}

	_, err := New(newDeps(&llmtest.Completer{Rules: rules}), mem, Options{}).Run(context.Background(), solarQuery)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider)
	assert.Contains(t, err.Error(), "decompose_query")
	assert.Empty(t, mem.Records())
}

func TestWorkflow_QueryAnalysisDegrades(t *testing.T) {
	rules := researchRules()
	rules[2] = llmtest.Rule{Match: "keyword extraction assistant", Err: errors.New("boom")}
	rules[3] = llmtest.Rule{Match: "Analyze the sentiment", Err: errors.New("boom")}

	res, err := New(newDeps(&llmtest.Completer{Rules: rules}), nil, Options{}).Run(context.Background(), solarQuery)
	require.NoError(t, err)
	assert.Equal(t, []string{}, res.Keywords)
	assert.Len(t, res.SubQueries, 3)
}

func TestWorkflow_MemoryContextReachesSynthesis(t *testing.T) {
	c := &llmtest.Completer{Rules: researchRules()}
	mem := &fakeMemory{context: "user: I hold NextEra shares\nassistant: Noted."}

	_, err := New(newDeps(c), mem, Options{}).Run(context.Background(), solarQuery)
	require.NoError(t, err)

	prompt := synthesisPrompt(t, c)
	assert.Contains(t, prompt, "Conversation memory:\nuser: I hold NextEra shares")
	assert.Contains(t, prompt, "Tone of the question: positive")
}

func TestWorkflow_MemoryWriteFailureKeepsAnswer(t *testing.T) {
	mem := &fakeMemory{err: errors.New("redis down")}

	res, err := New(newDeps(&llmtest.Completer{Rules: researchRules()}), mem, Options{}).Run(context.Background(), solarQuery)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Answer)
}

func TestTransitions(t *testing.T) {
	plain := newTransitions(false)
	next, err := plain.next(StageRetrieveContexts, KindContexts)
	require.NoError(t, err)
	assert.Equal(t, StageSummarizeContexts, next)

	deep := newTransitions(true)
	next, err = deep.next(StageRetrieveContexts, KindContexts)
	require.NoError(t, err)
	assert.Equal(t, StageAnalyzeContent, next)

	next, err = deep.next(StageStoreAndReturn, KindResult)
	require.NoError(t, err)
	assert.Equal(t, StageTerminal, next)

	_, err = plain.next(StageAnalyzeQuery, KindAnswer)
	assert.Error(t, err)
	_, err = plain.next(StageAnalyzeContent, KindContentAnalysis)
	assert.Error(t, err, "analysis stage is unreachable without deep analysis")
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "synthesize_answer", StageSynthesizeAnswer.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
	assert.Equal(t, "contexts", KindContexts.String())
}

func TestWorkflow_UnnumberedExtractiveReplyKeepsEvidence(t *testing.T) {
	rules := append([]llmtest.Rule{
		{Match: "Extract the 3 most important sentences", Response: "Solar output rose. Demand grew."},
	}, researchRules()...)
	c := &llmtest.Completer{Rules: rules}
	deps := NewDeps(llm.Capabilities{Completer: c}, textRetriever{
		text: "Solar output rose. Wind output fell. Prices were flat. Demand grew.",
	})

	_, err := New(deps, &fakeMemory{}, Options{}).Run(context.Background(), solarQuery)
	require.NoError(t, err)

	prompt := synthesisPrompt(t, c)
	assert.Contains(t, prompt, "1. Sub-question: How efficient are solar panels?\n   Answer: Solar output rose. Wind output fell. Prices were flat.")
	assert.NotContains(t, prompt, "Answer: \n")
}

func TestWorkflow_EmptySummaryKeepsRetrievedContext(t *testing.T) {
	rules := append([]llmtest.Rule{
		{Match: "Create a concise summary", Response: ""},
	}, researchRules()...)
	c := &llmtest.Completer{Rules: rules}
	long := strings.Repeat("Wind capacity rose sharply. ", 150)
	deps := NewDeps(llm.Capabilities{Completer: c}, textRetriever{text: long})

	_, err := New(deps, &fakeMemory{}, Options{}).Run(context.Background(), solarQuery)
	require.NoError(t, err)

	prompt := synthesisPrompt(t, c)
	assert.Contains(t, prompt, "Answer: Wind capacity rose sharply. Wind capacity rose sharply.")
}
