// Package summarize compresses text with a strategy picked by input length.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/finbrain/finbrain/internal/llm"
	"github.com/finbrain/finbrain/internal/textparse"
)

// Strategy names reported in Result.Strategy.
const (
	StrategyExtractive  = "extractive"
	StrategyAbstractive = "abstractive"
	StrategyTree        = "tree_summarize"
)

// Word-count thresholds for AutoSummarize.
const (
	extractiveBelow  = 500
	abstractiveBelow = 3000

	extractiveSentences = 3
	defaultTreeQuery    = "Summarize the key points"
)

// Length is the requested summary size.
type Length string

const (
	Short  Length = "short"
	Medium Length = "medium"
	Long   Length = "long"
)

// MaxWords maps a Length to its word budget. Unknown values mean Medium.
func (l Length) MaxWords() int {
	switch l {
	case Short:
		return 50
	case Long:
		return 300
	default:
		return 150
	}
}

type Result struct {
	Summary          string  `json:"summary"`
	Strategy         string  `json:"strategy_used"`
	OriginalLength   int     `json:"original_length"`
	SummaryLength    int     `json:"summary_length"`
	CompressionRatio float64 `json:"compression_ratio"`
}

type Summarizer struct {
	completer llm.Completer
	// leafWords is the size of the first-level chunks in Tree.
	leafWords int
	// fanIn is how many summaries are merged by one combine call.
	fanIn       int
	concurrency int
}

func New(completer llm.Completer) *Summarizer {
	return &Summarizer{
		completer:   completer,
		leafWords:   1000,
		fanIn:       4,
		concurrency: 4,
	}
}

// AutoSummarize picks extractive below 500 words, abstractive below 3000,
// and tree summarization otherwise.
func (s *Summarizer) AutoSummarize(ctx context.Context, text string, target Length) (Result, error) {
	words := len(strings.Fields(text))

	var (
		summary  string
		strategy string
		err      error
	)
	switch {
	case words < extractiveBelow:
		strategy = StrategyExtractive
		var sentences []string
		sentences, err = s.Extractive(ctx, text, extractiveSentences)
		summary = strings.Join(sentences, " ")
	case words < abstractiveBelow:
		strategy = StrategyAbstractive
		summary, err = s.Abstractive(ctx, text, target.MaxWords(), "general")
	default:
		strategy = StrategyTree
		summary, err = s.Tree(ctx, text, defaultTreeQuery)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Summary:        summary,
		Strategy:       strategy,
		OriginalLength: words,
		SummaryLength:  len(strings.Fields(summary)),
	}
	if words > 0 {
		res.CompressionRatio = math.Round(float64(res.SummaryLength)/float64(words)*100) / 100
	}
	slog.Debug("text summarized", "strategy", strategy, "from_words", words, "to_words", res.SummaryLength)
	return res, nil
}

// Extractive returns the n most important sentences. Text with n sentences
// or fewer is returned as is without calling the model. A reply without a
// numbered or dashed list yields the first n sentences of text.
func (s *Summarizer) Extractive(ctx context.Context, text string, n int) ([]string, error) {
	sentences := SplitSentences(text)
	if len(sentences) <= n {
		return sentences, nil
	}

	resp, err := s.completer.Complete(ctx, fmt.Sprintf(extractivePrompt, n, n, text))
	if err != nil {
		return nil, fmt.Errorf("extracting key sentences: %w", err)
	}
	picked := textparse.NumberedItems(resp)
	if len(picked) == 0 {
		slog.Debug("extractive reply has no list, keeping leading sentences", "sentences", n)
		picked = sentences
	}
	if len(picked) > n {
		picked = picked[:n]
	}
	return picked, nil
}

// Abstractive writes a new summary of at most maxWords words.
func (s *Summarizer) Abstractive(ctx context.Context, text string, maxWords int, focus string) (string, error) {
	if focus == "" {
		focus = "general"
	}
	resp, err := s.completer.Complete(ctx, fmt.Sprintf(abstractivePrompt, maxWords, focus, text))
	if err != nil {
		return "", fmt.Errorf("writing abstractive summary: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// Bullets summarizes text as at most n bullet points.
func (s *Summarizer) Bullets(ctx context.Context, text string, n int) ([]string, error) {
	resp, err := s.completer.Complete(ctx, fmt.Sprintf(bulletsPrompt, n, text))
	if err != nil {
		return nil, fmt.Errorf("writing bullet summary: %w", err)
	}
	items := textparse.BulletItems(resp)
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// Tree summarizes text of any length without truncation: it summarizes
// fixed-size chunks, then merges groups of summaries level by level until
// one remains.
func (s *Summarizer) Tree(ctx context.Context, text, query string) (string, error) {
	if query == "" {
		query = defaultTreeQuery
	}

	nodes := chunkWords(text, s.leafWords)
	if len(nodes) == 0 {
		return "", nil
	}

	for level := 0; ; level++ {
		var groups []string
		if level == 0 {
			groups = nodes
		} else {
			if len(nodes) == 1 {
				return nodes[0], nil
			}
			groups = groupNodes(nodes, s.fanIn)
		}

		next, err := s.summarizeAll(ctx, groups, query)
		if err != nil {
			return "", fmt.Errorf("tree summarize level %d: %w", level, err)
		}
		slog.Debug("tree summarize level done", "level", level, "inputs", len(groups))
		nodes = next
	}
}

func (s *Summarizer) summarizeAll(ctx context.Context, inputs []string, query string) ([]string, error) {
	out := make([]string, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			resp, err := s.completer.Complete(gctx, fmt.Sprintf(treePrompt, in, query))
			if err != nil {
				return err
			}
			out[i] = strings.TrimSpace(resp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func groupNodes(nodes []string, fanIn int) []string {
	if fanIn < 2 {
		fanIn = 2
	}
	var groups []string
	for i := 0; i < len(nodes); i += fanIn {
		end := min(i+fanIn, len(nodes))
		groups = append(groups, strings.Join(nodes[i:end], "\n\n"))
	}
	return groups
}

func chunkWords(text string, size int) []string {
	words := strings.Fields(text)
	var chunks []string
	for i := 0; i < len(words); i += size {
		end := min(i+size, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}

// SplitSentences splits on '.', '!' or '?' followed by whitespace or the
// end of the text.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
