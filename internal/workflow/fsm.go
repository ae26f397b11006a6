package workflow

import "fmt"

// Stage identifies one step of a research run.
type Stage int

const (
	StageAnalyzeQuery Stage = iota
	StageDecomposeQuery
	StageRetrieveContexts
	StageAnalyzeContent
	StageSummarizeContexts
	StageSynthesizeAnswer
	StageStoreAndReturn
	StageTerminal
)

var stageNames = [...]string{
	StageAnalyzeQuery:      "analyze_query",
	StageDecomposeQuery:    "decompose_query",
	StageRetrieveContexts:  "retrieve_contexts",
	StageAnalyzeContent:    "analyze_content",
	StageSummarizeContexts: "summarize_contexts",
	StageSynthesizeAnswer:  "synthesize_answer",
	StageStoreAndReturn:    "store_and_return",
	StageTerminal:          "terminal",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Kind is the type of record a stage emits.
type Kind int

const (
	KindQueryAnalyzed Kind = iota
	KindSubQueries
	KindContexts
	KindContentAnalysis
	KindSummaries
	KindAnswer
	KindResult
)

var kindNames = [...]string{
	KindQueryAnalyzed:   "query_analyzed",
	KindSubQueries:      "sub_queries",
	KindContexts:        "contexts",
	KindContentAnalysis: "content_analysis",
	KindSummaries:       "summaries",
	KindAnswer:          "answer",
	KindResult:          "result",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

type transition struct {
	from Stage
	on   Kind
}

// transitions maps a stage and the kind it emitted to the next stage.
type transitions map[transition]Stage

// newTransitions builds the table for a run. With deep analysis the
// retrieved contexts pass through StageAnalyzeContent first.
func newTransitions(deepAnalysis bool) transitions {
	t := transitions{
		{StageAnalyzeQuery, KindQueryAnalyzed}:  StageDecomposeQuery,
		{StageDecomposeQuery, KindSubQueries}:   StageRetrieveContexts,
		{StageRetrieveContexts, KindContexts}:   StageSummarizeContexts,
		{StageSummarizeContexts, KindSummaries}: StageSynthesizeAnswer,
		{StageSynthesizeAnswer, KindAnswer}:     StageStoreAndReturn,
		{StageStoreAndReturn, KindResult}:       StageTerminal,
	}
	if deepAnalysis {
		t[transition{StageRetrieveContexts, KindContexts}] = StageAnalyzeContent
		t[transition{StageAnalyzeContent, KindContentAnalysis}] = StageSummarizeContexts
	}
	return t
}

func (t transitions) next(from Stage, on Kind) (Stage, error) {
	to, ok := t[transition{from, on}]
	if !ok {
		return StageTerminal, fmt.Errorf("no transition from %s on %s", from, on)
	}
	return to, nil
}
