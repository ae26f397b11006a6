package analysis

import (
	"fmt"
	"strings"
)

// Sentiment labels accepted from the model.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
	Mixed    = "mixed"
)

type Sentiment struct {
	Label      string `json:"sentiment"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// NeutralSentiment is used whenever no sentiment could be derived.
func NeutralSentiment() Sentiment {
	return Sentiment{Label: Neutral, Confidence: 50}
}

// Entities groups named entities by fixed category.
type Entities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
	Dates         []string `json:"dates"`
	Numbers       []string `json:"numbers"`
}

func EmptyEntities() Entities {
	return Entities{
		People:        []string{},
		Organizations: []string{},
		Locations:     []string{},
		Dates:         []string{},
		Numbers:       []string{},
	}
}

func (e Entities) Count() int {
	return len(e.People) + len(e.Organizations) + len(e.Locations) + len(e.Dates) + len(e.Numbers)
}

type Theme struct {
	Name        string `json:"theme"`
	Description string `json:"description"`
}

type Structure struct {
	WordCount         int      `json:"word_count"`
	SentenceCount     int      `json:"sentence_count"`
	ParagraphCount    int      `json:"paragraph_count"`
	AvgSentenceLength float64  `json:"avg_sentence_length"`
	DocumentType      string   `json:"document_type"`
	WritingStyle      string   `json:"writing_style"`
	Sections          []string `json:"sections"`
	RawAnalysis       string   `json:"analysis"`
}

// ContentReport describes the retrieved content of one research run.
type ContentReport struct {
	Entities  Entities  `json:"entities"`
	Themes    []Theme   `json:"themes"`
	Sentiment Sentiment `json:"sentiment"`
}

// PlaceholderReport is used when deep analysis is disabled.
func PlaceholderReport() ContentReport {
	return ContentReport{
		Entities:  EmptyEntities(),
		Themes:    []Theme{},
		Sentiment: NeutralSentiment(),
	}
}

// ReportSummary rolls up a comprehensive report.
type ReportSummary struct {
	TotalThemes      int    `json:"total_themes"`
	PrimarySentiment string `json:"primary_sentiment"`
	EntityCount      int    `json:"entity_count"`
	DocumentType     string `json:"document_type"`
	WordCount        int    `json:"word_count"`
}

type Report struct {
	Themes    []Theme       `json:"themes"`
	Sentiment Sentiment     `json:"sentiment"`
	Entities  Entities      `json:"entities"`
	Structure Structure     `json:"structure"`
	Summary   ReportSummary `json:"summary"`
}

// Enrichment renders the parts of a report that steer answer synthesis.
// It returns "" when the report carries nothing beyond defaults.
func Enrichment(r ContentReport) string {
	var lines []string
	if r.Sentiment.Reasoning != "" || r.Sentiment.Label != Neutral {
		lines = append(lines, fmt.Sprintf("Tone of sources: %s (confidence %d)", r.Sentiment.Label, r.Sentiment.Confidence))
	}

	key := append(append([]string{}, r.Entities.Organizations...), r.Entities.People...)
	if len(key) > 10 {
		key = key[:10]
	}
	if len(key) > 0 {
		lines = append(lines, "Key entities: "+strings.Join(key, ", "))
	}
	if len(r.Entities.Numbers) > 0 {
		nums := r.Entities.Numbers
		if len(nums) > 10 {
			nums = nums[:10]
		}
		lines = append(lines, "Key figures: "+strings.Join(nums, ", "))
	}

	if len(r.Themes) > 0 {
		names := make([]string, len(r.Themes))
		for i, t := range r.Themes {
			names[i] = t.Name
		}
		lines = append(lines, "Main themes: "+strings.Join(names, ", "))
	}
	return strings.Join(lines, "\n")
}
