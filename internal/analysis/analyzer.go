// Package analysis derives sentiment, entities, themes, structure and
// keywords from text using the completion capability.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finbrain/finbrain/internal/llm"
	"github.com/finbrain/finbrain/internal/textparse"
)

// Input budgets in characters. Longer text is cut before prompting.
const (
	sentimentBudget = 2000
	entitiesBudget  = 3000
	themesBudget    = 3000
	structureBudget = 1500
	keywordsBudget  = 3000

	DefaultThemes   = 5
	DefaultKeywords = 8
)

var sentimentGrammar = textparse.Grammar{
	{Name: "label", Prefix: "Sentiment:", Transform: textparse.OneOf(Positive, Negative, Neutral, Mixed), Default: Neutral},
	{Name: "confidence", Prefix: "Confidence:", Transform: textparse.FirstInt, Default: 50},
	{Name: "reasoning", Prefix: "Reasoning:", Default: ""},
}

var entitiesGrammar = textparse.Grammar{
	{Name: "people", Prefix: "People:", Transform: textparse.CommaList, Default: []string{}},
	{Name: "organizations", Prefix: "Organizations:", Transform: textparse.CommaList, Default: []string{}},
	{Name: "locations", Prefix: "Locations:", Transform: textparse.CommaList, Default: []string{}},
	{Name: "dates", Prefix: "Dates:", Transform: textparse.CommaList, Default: []string{}},
	{Name: "numbers", Prefix: "Numbers:", Transform: textparse.CommaList, Default: []string{}},
}

var structureGrammar = textparse.Grammar{
	{Name: "type", Prefix: "Document Type:", Default: ""},
	{Name: "style", Prefix: "Writing Style:", Default: ""},
}

type Analyzer struct {
	completer llm.Completer
}

func NewAnalyzer(completer llm.Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

func (a *Analyzer) Sentiment(ctx context.Context, text string) (Sentiment, error) {
	resp, err := a.completer.Complete(ctx, fmt.Sprintf(sentimentPrompt, clip(text, sentimentBudget)))
	if err != nil {
		return Sentiment{}, fmt.Errorf("analyzing sentiment: %w", err)
	}

	v := sentimentGrammar.Parse(resp)
	conf := v.Int("confidence")
	if conf > 100 {
		conf = 100
	}
	return Sentiment{
		Label:      v.String("label"),
		Confidence: conf,
		Reasoning:  v.String("reasoning"),
	}, nil
}

// Entities extracts entities in the fixed categories. Lines naming any
// other category are ignored.
func (a *Analyzer) Entities(ctx context.Context, text string) (Entities, error) {
	resp, err := a.completer.Complete(ctx, fmt.Sprintf(entitiesPrompt, clip(text, entitiesBudget)))
	if err != nil {
		return Entities{}, fmt.Errorf("extracting entities: %w", err)
	}

	v := entitiesGrammar.Parse(resp)
	ents := Entities{
		People:        v.Strings("people"),
		Organizations: v.Strings("organizations"),
		Locations:     v.Strings("locations"),
		Dates:         v.Strings("dates"),
		Numbers:       v.Strings("numbers"),
	}
	slog.Debug("entities extracted", "count", ents.Count())
	return ents, nil
}

// Themes returns at most count themes in the order the model listed them.
func (a *Analyzer) Themes(ctx context.Context, text string, count int) ([]Theme, error) {
	if count <= 0 {
		count = DefaultThemes
	}
	resp, err := a.completer.Complete(ctx, fmt.Sprintf(themesPrompt, count, clip(text, themesBudget)))
	if err != nil {
		return nil, fmt.Errorf("extracting themes: %w", err)
	}

	themes := parseThemes(resp)
	if len(themes) > count {
		themes = themes[:count]
	}
	return themes, nil
}

// parseThemes reads "Theme N: name" lines, each optionally followed by a
// "Description:" line.
func parseThemes(resp string) []Theme {
	themes := []Theme{}
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "-*• ")
		if rest, ok := textparse.CutPrefixFold(line, "Theme"); ok {
			_, name, found := strings.Cut(rest, ":")
			if !found {
				continue
			}
			if name = strings.Trim(strings.TrimSpace(name), "*[] "); name != "" {
				themes = append(themes, Theme{Name: name})
			}
			continue
		}
		if rest, ok := textparse.CutPrefixFold(line, "Description:"); ok && len(themes) > 0 {
			themes[len(themes)-1].Description = strings.Trim(strings.TrimSpace(rest), "[] ")
		}
	}
	return themes
}

// Structure computes counts locally and asks the model for type, style and
// sections of a sample of the text.
func (a *Analyzer) Structure(ctx context.Context, text string) (Structure, error) {
	words := len(strings.Fields(text))
	sentences := len(strings.Split(text, "."))
	paragraphs := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}

	resp, err := a.completer.Complete(ctx, fmt.Sprintf(structurePrompt, clip(text, structureBudget)))
	if err != nil {
		return Structure{}, fmt.Errorf("analyzing structure: %w", err)
	}

	v := structureGrammar.Parse(resp)
	sections := []string{}
	for _, item := range textparse.BulletItems(resp) {
		if isStructureField(item) {
			continue
		}
		sections = append(sections, item)
	}

	return Structure{
		WordCount:         words,
		SentenceCount:     sentences,
		ParagraphCount:    paragraphs,
		AvgSentenceLength: float64(words) / float64(max(sentences, 1)),
		DocumentType:      v.String("type"),
		WritingStyle:      v.String("style"),
		Sections:          sections,
		RawAnalysis:       strings.TrimSpace(resp),
	}, nil
}

func isStructureField(item string) bool {
	item = strings.TrimLeft(item, "*_ ")
	for _, f := range structureGrammar {
		if _, ok := textparse.CutPrefixFold(item, f.Prefix); ok {
			return true
		}
	}
	_, ok := textparse.CutPrefixFold(item, "Sections")
	return ok
}

// Keywords returns up to limit keyword phrases for text.
func (a *Analyzer) Keywords(ctx context.Context, text string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultKeywords
	}
	resp, err := a.completer.Complete(ctx, fmt.Sprintf(keywordsPrompt, clip(text, keywordsBudget)))
	if err != nil {
		return nil, fmt.Errorf("extracting keywords: %w", err)
	}

	line := firstNonEmptyLine(resp)
	if rest, ok := textparse.CutPrefixFold(line, "Keywords:"); ok {
		line = rest
	}
	kws := textparse.SplitList(line)
	if len(kws) > limit {
		kws = kws[:limit]
	}
	return kws, nil
}

// Content runs the analyses that feed answer synthesis.
func (a *Analyzer) Content(ctx context.Context, text string) (ContentReport, error) {
	ents, err := a.Entities(ctx, text)
	if err != nil {
		return ContentReport{}, err
	}
	themes, err := a.Themes(ctx, text, DefaultThemes)
	if err != nil {
		return ContentReport{}, err
	}
	sent, err := a.Sentiment(ctx, text)
	if err != nil {
		return ContentReport{}, err
	}
	return ContentReport{Entities: ents, Themes: themes, Sentiment: sent}, nil
}

// Comprehensive runs all four analyses and adds a roll-up summary.
func (a *Analyzer) Comprehensive(ctx context.Context, text string) (Report, error) {
	themes, err := a.Themes(ctx, text, DefaultThemes)
	if err != nil {
		return Report{}, err
	}
	sent, err := a.Sentiment(ctx, text)
	if err != nil {
		return Report{}, err
	}
	ents, err := a.Entities(ctx, text)
	if err != nil {
		return Report{}, err
	}
	st, err := a.Structure(ctx, text)
	if err != nil {
		return Report{}, err
	}

	docType := st.DocumentType
	if docType == "" {
		docType = "unknown"
	}
	return Report{
		Themes:    themes,
		Sentiment: sent,
		Entities:  ents,
		Structure: st,
		Summary: ReportSummary{
			TotalThemes:      len(themes),
			PrimarySentiment: sent.Label,
			EntityCount:      ents.Count(),
			DocumentType:     docType,
			WordCount:        st.WordCount,
		},
	}, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
