// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders the templated research report used when generation
// is unavailable, writes reports and session snapshots to disk, and prints
// the end-of-run summary.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
	"unicode"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agent/pkg/types"
)

var funcs = template.FuncMap{
	"join": strings.Join,
	"pct":  func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	"score": func(f float64) string {
		return fmt.Sprintf("%.2f", f)
	},
	"citations": func(p types.RankedPaper) string {
		if c, ok := p.CitationCount(); ok {
			return fmt.Sprintf("%d", c)
		}
		return "n/a"
	},
}

var templatedReport = template.Must(template.New("report").Funcs(funcs).Parse(`# Research Report: {{.Topic}}

## Summary

- Records retrieved: {{.RawCount}}
- Unique papers: {{.CorpusCount}}
- Research gaps identified: {{len .Gaps}}
{{- if .Plan.Fallback}}
- Plan: default search plan
{{- end}}
{{- if .Plan.Summary}}

{{.Plan.Summary}}
{{- end}}
{{- if .Plan.Objectives}}

## Objectives

{{.Plan.Objectives}}
{{- end}}

## Search Queries
{{range .Plan.Queries}}
- {{.Text}} ({{.SourceHint}})
{{- end}}

## Top Papers
{{if .Papers}}
| Rank | Title | Year | Citations | Score |
|------|-------|------|-----------|-------|
{{- range .Papers}}
| {{.Rank}} | {{if .URL}}[{{.Title}}]({{.URL}}){{else}}{{.Title}}{{end}} | {{if .Year}}{{.Year}}{{else}}n/a{{end}} | {{citations .}} | {{score .CompositeScore}} |
{{- end}}
{{else}}
No papers were retrieved.
{{end}}
## Research Gaps
{{if .Gaps}}
{{- range .Gaps}}
- {{.Description}} (confidence {{pct .Confidence}}){{if .RelatedTerms}}. Terms: {{join .RelatedTerms ", "}}{{end}}
{{- end}}
{{else}}
Every planned query is covered by the retrieved papers.
{{end}}
{{- if .Problems}}
## Errors Encountered
{{range .Problems}}
- [{{.Stage}}] {{if .Source}}{{.Source}}: {{end}}{{.Message}}
{{- end}}
{{end}}`))

type reportData struct {
	types.ResearchState
	RawCount    int
	CorpusCount int
	Papers      []types.RankedPaper
	Problems    []types.LogEntry
}

// Templated renders the fallback report from the session state, listing at
// most limit papers.
func Templated(state types.ResearchState, limit int) string {
	papers := state.Corpus
	if limit > 0 && len(papers) > limit {
		papers = papers[:limit]
	}
	data := reportData{
		ResearchState: state,
		RawCount:      len(state.RawRecords),
		CorpusCount:   len(state.Corpus),
		Papers:        papers,
		Problems:      state.Warnings(),
	}
	var buf bytes.Buffer
	if err := templatedReport.Execute(&buf, data); err != nil {
		return fmt.Sprintf("# Research Report: %s\n\nreport rendering failed: %v\n", state.Topic, err)
	}
	return buf.String()
}

// Slug turns a topic into a file-name fragment: lowercase letters and digits
// joined by underscores, at most 60 characters.
func Slug(topic string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(topic) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if b.Len() > 0 && !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	s := strings.TrimSuffix(b.String(), "_")
	if len(s) > 60 {
		s = strings.TrimSuffix(s[:60], "_")
	}
	if s == "" {
		s = "research"
	}
	return s
}

// DefaultPath is the report file name used when no output path is given.
func DefaultPath(topic string) string {
	return Slug(topic) + "_research_report.md"
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// SaveState writes a session snapshot. A .json path is written as JSON,
// a .md path as the report, .bib and .csl as the corpus references, and
// anything else as YAML.
func SaveState(path string, state types.ResearchState) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(state, "", "  ")
	case ".md", ".markdown":
		data = []byte(state.Report)
	case ".bib":
		var buf bytes.Buffer
		err = WriteBibTeX(&buf, state.Corpus)
		data = buf.Bytes()
	case ".csl":
		var buf bytes.Buffer
		err = WriteCSL(&buf, state.Corpus)
		data = buf.Bytes()
	default:
		data, err = yaml.Marshal(state)
	}
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return WriteFile(path, string(data))
}

// LoadState reads a snapshot written by SaveState in JSON or YAML.
func LoadState(path string) (types.ResearchState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ResearchState{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var state types.ResearchState
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &state)
	} else {
		err = yaml.Unmarshal(data, &state)
	}
	if err != nil {
		return types.ResearchState{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return state, nil
}

// WriteSummary prints the end-of-run summary.
func WriteSummary(w io.Writer, state types.ResearchState, top int) {
	fmt.Fprintf(w, "\nResearch summary\n")
	fmt.Fprintf(w, "  topic:    %s\n", state.Topic)
	fmt.Fprintf(w, "  session:  %s\n", state.ID)
	fmt.Fprintf(w, "  stage:    %s\n", state.Stage)
	if state.FailureReason != "" {
		fmt.Fprintf(w, "  failure:  %s\n", state.FailureReason)
	}
	fmt.Fprintf(w, "  records:  %d raw, %d unique\n", len(state.RawRecords), len(state.Corpus))
	fmt.Fprintf(w, "  gaps:     %d\n", len(state.Gaps))
	if !state.CompletedAt.IsZero() && !state.StartedAt.IsZero() {
		fmt.Fprintf(w, "  elapsed:  %s\n", state.CompletedAt.Sub(state.StartedAt).Round(100*time.Millisecond))
	}

	if n := len(state.Corpus); n > 0 {
		if top <= 0 || top > n {
			top = n
		}
		fmt.Fprintf(w, "\nTop papers\n")
		for _, p := range state.Corpus[:top] {
			year := "n/a"
			if p.Year > 0 {
				year = fmt.Sprintf("%d", p.Year)
			}
			fmt.Fprintf(w, "  %2d. %s (%s, %.2f)\n", p.Rank, p.Title, year, p.CompositeScore)
		}
	}

	if warnings := state.Warnings(); len(warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d)\n", len(warnings))
		for _, e := range warnings {
			if e.Source != "" {
				fmt.Fprintf(w, "  - [%s] %s: %s\n", e.Stage, e.Source, e.Message)
			} else {
				fmt.Fprintf(w, "  - [%s] %s\n", e.Stage, e.Message)
			}
		}
	}
}
