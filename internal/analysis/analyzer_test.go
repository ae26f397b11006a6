package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbrain/finbrain/internal/llm/llmtest"
)

func TestAnalyzer_Sentiment(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Sentiment
	}{
		{
			name:     "all fields",
			response: "Sentiment: Positive\nConfidence: 87\nReasoning: Earnings beat expectations.",
			want:     Sentiment{Label: Positive, Confidence: 87, Reasoning: "Earnings beat expectations."},
		},
		{
			name:     "missing confidence",
			response: "Sentiment: negative\nReasoning: Losses widened.",
			want:     Sentiment{Label: Negative, Confidence: 50, Reasoning: "Losses widened."},
		},
		{
			name:     "missing sentiment and confidence",
			response: "The text is about tariffs.",
			want:     Sentiment{Label: Neutral, Confidence: 50, Reasoning: ""},
		},
		{
			name:     "confidence with percent sign",
			response: "Sentiment: mixed\nConfidence: about 70%",
			want:     Sentiment{Label: Mixed, Confidence: 70},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(&llmtest.Completer{Fallback: tt.response})
			got, err := a.Sentiment(context.Background(), "some text")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyzer_SentimentTruncatesInput(t *testing.T) {
	c := &llmtest.Completer{Fallback: "Sentiment: neutral"}
	text := strings.Repeat("x", 2500)

	_, err := NewAnalyzer(c).Sentiment(context.Background(), text)
	require.NoError(t, err)

	prompt := c.Prompts()[0]
	assert.Contains(t, prompt, strings.Repeat("x", 2000))
	assert.NotContains(t, prompt, strings.Repeat("x", 2001))
}

func TestAnalyzer_Entities(t *testing.T) {
	resp := "People: Janet Yellen, Jerome Powell\nOrganizations: Federal Reserve\nProducts: iPhone\nDates: 2024, Q3 2025\nNumbers: 5.25% (rate)"
	a := NewAnalyzer(&llmtest.Completer{Fallback: resp})

	got, err := a.Entities(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, []string{"Janet Yellen", "Jerome Powell"}, got.People)
	assert.Equal(t, []string{"Federal Reserve"}, got.Organizations)
	assert.Equal(t, []string{}, got.Locations)
	assert.Equal(t, []string{"2024", "Q3 2025"}, got.Dates)
	assert.Equal(t, []string{"5.25% (rate)"}, got.Numbers)
	assert.Equal(t, 6, got.Count())
}

func TestAnalyzer_EntitiesUnparsed(t *testing.T) {
	a := NewAnalyzer(&llmtest.Completer{Fallback: "I found nothing."})
	got, err := a.Entities(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, EmptyEntities(), got)
}

func TestAnalyzer_Themes(t *testing.T) {
	resp := `Theme 1: Renewable Costs
Description: Falling costs of solar and wind.
Theme 2: Grid Integration
Description: Challenges of intermittency.
Theme 3: Policy Support`

	t.Run("parses names and descriptions", func(t *testing.T) {
		a := NewAnalyzer(&llmtest.Completer{Fallback: resp})
		got, err := a.Themes(context.Background(), "text", 5)
		require.NoError(t, err)
		assert.Equal(t, []Theme{
			{Name: "Renewable Costs", Description: "Falling costs of solar and wind."},
			{Name: "Grid Integration", Description: "Challenges of intermittency."},
			{Name: "Policy Support"},
		}, got)
	})

	t.Run("truncates to count", func(t *testing.T) {
		c := &llmtest.Completer{Fallback: resp}
		got, err := NewAnalyzer(c).Themes(context.Background(), "text", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Contains(t, c.Prompts()[0], "identify the 2 most important themes")
	})
}

func TestAnalyzer_Structure(t *testing.T) {
	resp := "Document Type: Financial report\nWriting Style: formal\nSections:\n- Executive Summary\n- Market Outlook\n- Risks"
	a := NewAnalyzer(&llmtest.Completer{Fallback: resp})
	text := "Revenue rose. Costs fell.\n\nOutlook is stable."

	got, err := a.Structure(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, 7, got.WordCount)
	assert.Equal(t, 4, got.SentenceCount)
	assert.Equal(t, 2, got.ParagraphCount)
	assert.InDelta(t, 1.75, got.AvgSentenceLength, 0.001)
	assert.Equal(t, "Financial report", got.DocumentType)
	assert.Equal(t, "formal", got.WritingStyle)
	assert.Equal(t, []string{"Executive Summary", "Market Outlook", "Risks"}, got.Sections)
	assert.Equal(t, resp, got.RawAnalysis)
}

func TestAnalyzer_Keywords(t *testing.T) {
	tests := []struct {
		name     string
		response string
		limit    int
		want     []string
	}{
		{"plain list", "solar energy, wind energy, cost, efficiency", 8, []string{"solar energy", "wind energy", "cost", "efficiency"}},
		{"prefixed", "Keywords: inflation, rates", 8, []string{"inflation", "rates"}},
		{"limited", "a, b, c, d", 2, []string{"a", "b"}},
		{"empty", "", 8, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(&llmtest.Completer{Fallback: tt.response})
			got, err := a.Keywords(context.Background(), "text", tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyzer_Comprehensive(t *testing.T) {
	c := &llmtest.Completer{Rules: []llmtest.Rule{
		{Match: "most important themes", Response: "Theme 1: Costs\nDescription: d"},
		{Match: "sentiment of the following", Response: "Sentiment: positive\nConfidence: 80"},
		{Match: "important entities", Response: "Organizations: IEA, IRENA\nNumbers: 30%"},
		{Match: "structure and type", Response: "Writing Style: technical"},
	}}

	report, err := NewAnalyzer(c).Comprehensive(context.Background(), "one two three")
	require.NoError(t, err)

	assert.Equal(t, 4, c.Calls())
	assert.Equal(t, ReportSummary{
		TotalThemes:      1,
		PrimarySentiment: Positive,
		EntityCount:      3,
		DocumentType:     "unknown",
		WordCount:        3,
	}, report.Summary)
}

func TestAnalyzer_PropagatesCompletionErrors(t *testing.T) {
	sentinel := errors.New("rate limited upstream")
	a := NewAnalyzer(&llmtest.Completer{Rules: []llmtest.Rule{{Match: "", Err: sentinel}}})

	_, err := a.Content(context.Background(), "text")
	assert.ErrorIs(t, err, sentinel)
}

func TestEnrichment(t *testing.T) {
	assert.Equal(t, "", Enrichment(PlaceholderReport()))

	r := ContentReport{
		Entities:  Entities{Organizations: []string{"IEA"}, People: []string{"Fatih Birol"}, Numbers: []string{"30%"}},
		Themes:    []Theme{{Name: "Costs"}, {Name: "Policy"}},
		Sentiment: Sentiment{Label: Positive, Confidence: 80},
	}
	assert.Equal(t,
		"Tone of sources: positive (confidence 80)\nKey entities: IEA, Fatih Birol\nKey figures: 30%\nMain themes: Costs, Policy",
		Enrichment(r))
}
