// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generation

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/research-agent/pkg/types"
)

// PlanInput feeds the planning prompt.
type PlanInput struct {
	Topic    string
	Analysis types.TopicAnalysis
	Filters  types.Filters
}

// ClarifyInput feeds the clarifying-questions prompt.
type ClarifyInput struct {
	Topic  string
	Issues []string
}

// QA is one answered clarifying question.
type QA struct {
	Question string
	Answer   string
}

// RefineInput feeds the topic refinement prompt.
type RefineInput struct {
	Topic   string
	Answers []QA
}

// RelevanceItem is one paper to score.
type RelevanceItem struct {
	ID       int
	Title    string
	Abstract string
}

// RelevanceInput feeds the assisted relevance prompt.
type RelevanceInput struct {
	Topic  string
	Papers []RelevanceItem
}

// ReportInput feeds the report prompt.
type ReportInput struct {
	Topic    string
	Plan     types.ResearchPlan
	Papers   []types.RankedPaper
	Gaps     []types.ResearchGap
	RawCount int
}

// AnswerInput feeds the interactive answer prompt.
type AnswerInput struct {
	Topic    string
	Question string
	Papers   []types.RankedPaper
	Gaps     []types.ResearchGap
}

var systemPrompts = map[Kind]string{
	KindPlan:      "You are an expert research planning system. You create actionable literature search plans. Always return valid JSON.",
	KindClarify:   "You are an expert at generating clarifying questions for research topics. Always return valid JSON.",
	KindRefine:    "You synthesize clarifying answers into a precise research topic.",
	KindRelevance: "You rate how relevant academic papers are to a research topic. Always return valid JSON.",
	KindReport:    "You are an expert research report writer.",
	KindAnswer:    "You answer questions about a body of research using only the papers provided. Cite papers by their number like [1].",
}

var funcs = template.FuncMap{
	"join":     strings.Join,
	"truncate": truncate,
	"inc":      func(i int) int { return i + 1 },
	"pct":      func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
}

var prompts = map[Kind]*template.Template{
	KindPlan: template.Must(template.New("plan").Funcs(funcs).Parse(`Create a literature search plan for the research topic below.

TOPIC: {{.Topic}}
{{- if .Analysis.Level}}
AMBIGUITY: {{.Analysis.Level}}{{if .Analysis.Issues}} ({{join .Analysis.Issues ", "}}){{end}}
{{- end}}
{{- if .Filters.YearFrom}}
PUBLISHED FROM: {{.Filters.YearFrom}}
{{- end}}
{{- if .Filters.YearTo}}
PUBLISHED TO: {{.Filters.YearTo}}
{{- end}}

Write between 4 and 8 search queries. Cover foundational work, the state of the art, surveys, methods, challenges, and applications. Each query has a source_hint:
- "preprint" for recent preprints
- "scholarly" for peer-reviewed literature with citation data
- "web" for practitioner and industry material
- "any" when every source should be searched

Respond with a JSON object and nothing else:
{"summary": "...", "objectives": "...", "methodology": "...", "expected_outputs": "...",
 "queries": [{"query": "...", "source_hint": "scholarly", "purpose": "..."}]}
`)),

	KindClarify: template.Must(template.New("clarify").Funcs(funcs).Parse(`Generate between 2 and 5 clarifying questions for this research topic.

TOPIC: {{.Topic}}
{{- if .Issues}}
WHY IT IS AMBIGUOUS: {{join .Issues "; "}}
{{- end}}

Ask about scope (time period, inclusions and exclusions), technical depth, application focus, and the outcome wanted.

Respond with a JSON object and nothing else:
{"questions": ["...", "..."]}
`)),

	KindRefine: template.Must(template.New("refine").Funcs(funcs).Parse(`Rewrite the research topic so it reflects the answers below. Keep it to one sentence.

ORIGINAL TOPIC: {{.Topic}}
{{range .Answers}}
Q: {{.Question}}
A: {{.Answer}}
{{end}}
Respond with the refined topic only.
`)),

	KindRelevance: template.Must(template.New("relevance").Funcs(funcs).Parse(`Rate each paper's relevance to the topic from 0.0 (unrelated) to 1.0 (central).

TOPIC: {{.Topic}}
{{range .Papers}}
[{{.ID}}] {{.Title}}
{{- if .Abstract}}
{{truncate .Abstract 600}}
{{- end}}
{{end}}
Respond with a JSON object and nothing else:
{"scores": [{"id": 1, "score": 0.8}]}
`)),

	KindReport: template.Must(template.New("report").Funcs(funcs).Parse(`Write a research report in Markdown on the topic below, based only on the material provided.

TOPIC: {{.Topic}}
{{- if .Plan.Summary}}

PLAN SUMMARY: {{.Plan.Summary}}
{{- end}}
{{- if .Plan.Objectives}}
OBJECTIVES: {{.Plan.Objectives}}
{{- end}}

{{len .Papers}} TOP PAPERS (of {{.RawCount}} records retrieved):
{{range $i, $p := .Papers}}
[{{inc $i}}] {{$p.Title}}{{if $p.Year}} ({{$p.Year}}){{end}}{{if $p.Authors}} by {{join $p.Authors ", "}}{{end}}
{{- if $p.Abstract}}
{{truncate $p.Abstract 500}}
{{- end}}
{{end}}
{{- if .Gaps}}
RESEARCH GAPS:
{{range .Gaps}}- {{.Description}} (confidence {{pct .Confidence}})
{{end}}
{{- end}}
Structure the report as: Executive Summary, Methodology, Key Findings, Analysis of Top Papers, Research Gaps and Opportunities, Recommendations, Conclusion. Cite papers by number like [1].
`)),

	KindAnswer: template.Must(template.New("answer").Funcs(funcs).Parse(`Research topic: {{.Topic}}

Papers:
{{range $i, $p := .Papers}}
[{{inc $i}}] {{$p.Title}}{{if $p.Year}} ({{$p.Year}}){{end}}
{{- if $p.Abstract}}
{{truncate $p.Abstract 500}}
{{- end}}
{{end}}
{{- if .Gaps}}
Known gaps:
{{range .Gaps}}- {{.Description}}
{{end}}
{{- end}}
Question: {{.Question}}
`)),
}

// Render executes the prompt template for kind with input.
func Render(kind Kind, input any) (string, error) {
	tmpl, ok := prompts[kind]
	if !ok {
		return "", fmt.Errorf("no prompt for kind %q", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", kind, err)
	}
	return buf.String(), nil
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
