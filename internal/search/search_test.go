// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pdiddy/research-agent/pkg/types"
)

// --- registry ---

func TestNewAdapters(t *testing.T) {
	cfg := types.DefaultPipelineConfig()
	cfg.Sources.EnableWeb = true
	cfg.Sources.TavilyAPIKey = "tvly"

	got := Names(NewAdapters(cfg, nil))
	want := []string{"arxiv", "semantic_scholar", "openalex", "web"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}

	cfg.Sources.EnableOpenAlex = false
	cfg.Sources.EnableWeb = false
	got = Names(NewAdapters(cfg, nil))
	want = []string{"arxiv", "semantic_scholar"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

func TestSourcesFor(t *testing.T) {
	all := []string{"arxiv", "semantic_scholar", "openalex", "web"}
	tests := []struct {
		name    string
		hint    types.SourceHint
		enabled []string
		want    []string
	}{
		{"preprint", types.HintPreprint, all, []string{"arxiv"}},
		{"scholarly", types.HintScholarly, all, []string{"semantic_scholar", "openalex"}},
		{"web", types.HintWeb, all, []string{"web"}},
		{"any", types.HintAny, all, all},
		{"unknown hint", types.SourceHint("books"), all, all},
		{"web disabled falls back", types.HintWeb, []string{"arxiv", "openalex"}, []string{"arxiv", "openalex"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SourcesFor(tt.hint, tt.enabled)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SourcesFor(%s) = %v, want %v", tt.hint, got, tt.want)
			}
		})
	}
}

// --- arXiv adapter ---

const sampleArxivSearchXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1208.0928v2</id>
    <title>Surface codes: Towards practical
      large-scale quantum computation</title>
    <summary>This article provides an introduction to surface code quantum computing.</summary>
    <published>2012-08-04T12:00:00Z</published>
    <author><name>Austin G. Fowler</name></author>
    <author><name>Matteo Mariantoni</name></author>
    <category term="quant-ph" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/quant-ph/9512032v1</id>
    <title>Good quantum error-correcting codes exist</title>
    <summary>A quantum error-correcting code is defined.</summary>
    <published>1995-12-30T00:00:00Z</published>
    <author><name>A. R. Calderbank</name></author>
  </entry>
  <entry>
    <id>malformed</id>
    <title>Skipped</title>
  </entry>
</feed>`

func TestArxivAdapterQuery(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, sampleArxivSearchXML)
	}))
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	a := &ArxivAdapter{Client: ts.Client(), UserAgent: "test/0.1"}
	records, err := a.Query(context.Background(), types.SourceQuery{Text: "surface codes", Source: "arxiv"})
	if err != nil {
		t.Fatalf("ArxivAdapter.Query: %v", err)
	}
	if gotQuery != "all:surface AND all:codes" {
		t.Errorf("search_query = %q", gotQuery)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	r := records[0]
	if r.Title != "Surface codes: Towards practical large-scale quantum computation" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.SourceID != "1208.0928" || r.URL != "https://arxiv.org/abs/1208.0928" {
		t.Errorf("SourceID = %q, URL = %q", r.SourceID, r.URL)
	}
	if r.Year != 2012 {
		t.Errorf("Year = %d, want 2012", r.Year)
	}
	if !reflect.DeepEqual(r.Categories, []string{"quant-ph"}) {
		t.Errorf("Categories = %v", r.Categories)
	}
	if r.Citations != nil {
		t.Errorf("arXiv records carry no citation data, got %d", *r.Citations)
	}
	if records[1].SourceID != "quant-ph/9512032" {
		t.Errorf("old-style ID = %q", records[1].SourceID)
	}
}

func TestArxivAdapterRateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	a := &ArxivAdapter{Client: ts.Client()}
	_, err := a.Query(context.Background(), types.SourceQuery{Text: "qec"})
	var se *types.SourceError
	if !errors.As(err, &se) || se.Kind != types.SourceRateLimited {
		t.Fatalf("want rate_limited SourceError, got %v", err)
	}
}

func TestArxivAdapterMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<feed><entry>")
	}))
	defer ts.Close()

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	defer func() { arxivAPIBase = old }()

	a := &ArxivAdapter{Client: ts.Client()}
	_, err := a.Query(context.Background(), types.SourceQuery{Text: "qec"})
	var se *types.SourceError
	if !errors.As(err, &se) || se.Kind != types.SourceInvalidResponse {
		t.Fatalf("want invalid_response SourceError, got %v", err)
	}
}

func TestExtractArxivID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"http://arxiv.org/abs/2301.07041v1", "2301.07041"},
		{"http://arxiv.org/abs/1706.03762v5", "1706.03762"},
		{"http://arxiv.org/abs/2301.12345", "2301.12345"},
		{"https://arxiv.org/abs/2301.07041v2", "2301.07041"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := extractArxivID(tt.input)
			if got != tt.want {
				t.Errorf("extractArxivID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildArxivQuery(t *testing.T) {
	tests := []struct {
		name  string
		query types.SourceQuery
		want  string
	}{
		{"free text", types.SourceQuery{Text: "attention mechanisms"}, "all:attention AND all:mechanisms"},
		{"categories", types.SourceQuery{Text: "qec", Filters: types.Filters{Categories: []string{"quant-ph", "cs.IT"}}},
			"(all:qec) AND (cat:quant-ph OR cat:cs.IT)"},
		{"empty", types.SourceQuery{Text: "   "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildArxivQuery(tt.query)
			if got != tt.want {
				t.Errorf("buildArxivQuery = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- output formatting ---

func rankedFixture() []types.RankedPaper {
	return []types.RankedPaper{
		{PaperRecord: types.PaperRecord{Title: "Paper A", Authors: []string{"Smith"}, Year: 2023, Source: "arxiv"}, CompositeScore: 0.95, Rank: 1},
		{PaperRecord: types.PaperRecord{Title: "Paper B", Authors: []string{"Jones", "Doe"}, Year: 2022, Source: "semantic_scholar"}, CompositeScore: 0.80, Rank: 2},
	}
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(rankedFixture(), &buf)
	s := buf.String()

	if !strings.Contains(s, "Paper A") || !strings.Contains(s, "Paper B") {
		t.Error("table should contain both titles")
	}
	if !strings.Contains(s, "Jones et al.") {
		t.Error("table should abbreviate multiple authors")
	}
	if !strings.Contains(s, "2 results") {
		t.Error("table should count results")
	}
}

func TestFormatTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(nil, &buf)
	if !strings.Contains(buf.String(), "No results") {
		t.Error("empty output should say 'No results'")
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := FormatJSON(rankedFixture(), &buf); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	var parsed []types.RankedPaper
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(parsed) != 2 || parsed[0].Title != "Paper A" || parsed[1].Rank != 2 {
		t.Errorf("parsed = %+v", parsed)
	}
}

// --- results file ---

func TestResultsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.yaml")
	queries := []types.SourceQuery{{Text: "qec", Source: "arxiv"}}
	failures := []types.QueryFailure{{Query: queries[0], Source: "arxiv", Reason: "timeout"}}

	if err := WriteResultsFile(path, queries, rankedFixture(), failures, 1); err != nil {
		t.Fatalf("WriteResultsFile: %v", err)
	}
	rf, err := ReadResultsFile(path)
	if err != nil {
		t.Fatalf("ReadResultsFile: %v", err)
	}
	if rf.Summary.Total != 2 || rf.Summary.CacheHits != 1 {
		t.Errorf("Summary = %+v", rf.Summary)
	}
	if len(rf.Failures) != 1 || rf.Failures[0].Reason != "timeout" {
		t.Errorf("Failures = %+v", rf.Failures)
	}
	if rf.Results[0].Title != "Paper A" {
		t.Errorf("Results[0].Title = %q", rf.Results[0].Title)
	}
}
