package subquery

import (
	"strings"
	"text/template"
)

// Prompts holds the templates used by Engine. Decompose receives {{.Query}};
// Synthesize receives {{.Query}}, {{.Pairs}} (already enumerated) and
// {{.Enrichment}}.
type Prompts struct {
	Decompose  *template.Template
	Synthesize *template.Template
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() Prompts {
	return Prompts{
		Decompose:  template.Must(template.New("decompose").Parse(decomposeTemplate)),
		Synthesize: template.Must(template.New("synthesize").Parse(synthesizeTemplate)),
	}
}

const decomposeTemplate = `Given the following complex question, break it down into 2-4 simpler sub-questions that need to be answered sequentially.

Question: {{.Query}}

Return ONLY the sub-questions as a numbered list, one per line.
Example format:
1. First sub-question?
2. Second sub-question?
3. Third sub-question?
`

const synthesizeTemplate = `Based on the following sub-questions and their answers, provide a comprehensive answer to the original question.

Original Question: {{.Query}}

Sub-questions and Answers:
{{.Pairs}}
{{- if .Enrichment}}
Additional Context:
{{.Enrichment}}
{{end}}
Provide a well-structured, comprehensive answer to the original question.
`

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
