// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pdiddy/research-agent/pkg/types"
)

const sampleSemanticJSON = `{
  "total": 2,
  "offset": 0,
  "data": [
    {
      "paperId": "abc123",
      "title": "Attention Is All You Need",
      "abstract": "We propose a new architecture.",
      "year": 2017,
      "citationCount": 120000,
      "url": "https://www.semanticscholar.org/paper/abc123",
      "authors": [
        {"authorId": "1", "name": "Ashish Vaswani"},
        {"authorId": "2", "name": "Noam Shazeer"}
      ],
      "externalIds": {"ArXiv": "1706.03762", "DOI": "10.5555/3295222.3295349"}
    },
    {
      "paperId": "def456",
      "title": "GPT-4 Technical Report",
      "abstract": null,
      "year": 2023,
      "citationCount": null,
      "authors": [{"authorId": "3", "name": "OpenAI"}],
      "externalIds": {"DOI": "10.48550/arXiv.2303.08774"}
    }
  ]
}`

func swapSemanticBase(t *testing.T, url string) {
	t.Helper()
	old := semanticAPIBase
	semanticAPIBase = url
	t.Cleanup(func() { semanticAPIBase = old })
}

func TestSemanticScholarAdapterQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleSemanticJSON)
	}))
	defer ts.Close()
	swapSemanticBase(t, ts.URL)

	a := &SemanticScholarAdapter{Client: ts.Client()}
	records, err := a.Query(context.Background(), types.SourceQuery{Text: "attention"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	r0 := records[0]
	if r0.SourceID != "arXiv:1706.03762" {
		t.Errorf("SourceID = %q, want arXiv ID", r0.SourceID)
	}
	if c, ok := r0.CitationCount(); !ok || c != 120000 {
		t.Errorf("Citations = %v, %v", c, ok)
	}
	if r0.Year != 2017 || len(r0.Authors) != 2 {
		t.Errorf("Year = %d, Authors = %v", r0.Year, r0.Authors)
	}

	r1 := records[1]
	if r1.SourceID != "10.48550/arXiv.2303.08774" {
		t.Errorf("SourceID = %q, want DOI", r1.SourceID)
	}
	if r1.Citations != nil {
		t.Errorf("null citationCount should stay unknown")
	}
	if r1.Source != "semantic_scholar" {
		t.Errorf("Source = %q", r1.Source)
	}
}

func TestSemanticScholarRequestParams(t *testing.T) {
	var captured *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		fmt.Fprint(w, `{"total":0,"offset":0,"data":[]}`)
	}))
	defer ts.Close()
	swapSemanticBase(t, ts.URL)

	a := &SemanticScholarAdapter{Client: ts.Client(), UserAgent: "test/0.1", APIKey: "s2-key"}
	q := types.SourceQuery{
		Text:       "quantum error correction",
		MaxResults: 5,
		Filters:    types.Filters{YearFrom: 2020, YearTo: 2024, MinCitations: 10},
	}
	if _, err := a.Query(context.Background(), q); err != nil {
		t.Fatalf("Query: %v", err)
	}

	params := captured.URL.Query()
	checks := map[string]string{
		"query":            "quantum error correction",
		"limit":            "5",
		"year":             "2020-2024",
		"minCitationCount": "10",
	}
	for k, want := range checks {
		if got := params.Get(k); got != want {
			t.Errorf("param %s = %q, want %q", k, got, want)
		}
	}
	if got := captured.Header.Get("x-api-key"); got != "s2-key" {
		t.Errorf("x-api-key = %q", got)
	}
	if got := captured.Header.Get("User-Agent"); got != "test/0.1" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestSemanticScholarEmptyQuery(t *testing.T) {
	a := &SemanticScholarAdapter{}
	_, err := a.Query(context.Background(), types.SourceQuery{Text: " "})
	var se *types.SourceError
	if !errors.As(err, &se) {
		t.Fatalf("want SourceError, got %v", err)
	}
}

func TestSemanticScholarTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()
	swapSemanticBase(t, ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	a := &SemanticScholarAdapter{Client: ts.Client()}
	_, err := a.Query(ctx, types.SourceQuery{Text: "qec"})
	var se *types.SourceError
	if !errors.As(err, &se) || se.Kind != types.SourceTimeout {
		t.Fatalf("want timeout SourceError, got %v", err)
	}
}

func TestBuildYearRange(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     string
	}{
		{"both", 2020, 2023, "2020-2023"},
		{"from only", 2020, 0, "2020-"},
		{"to only", 0, 2023, "-2023"},
		{"neither", 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildYearRange(tt.from, tt.to); got != tt.want {
				t.Errorf("buildYearRange = %q, want %q", got, tt.want)
			}
		})
	}
}
