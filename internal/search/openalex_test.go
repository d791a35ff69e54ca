// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-agent/pkg/types"
)

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"empty map", map[string][]int{}, ""},
		{"nil map", nil, ""},
		{"single word", map[string][]int{"hello": {0}}, "hello"},
		{"ordered", map[string][]int{"We": {0}, "propose": {1}, "a": {2}, "method": {3}}, "We propose a method"},
		{"repeated word", map[string][]int{"the": {0, 3}, "cat": {1}, "saw": {2}, "dog": {4}}, "the cat saw the dog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reconstructAbstract(tt.index))
		})
	}
}

func TestBuildOpenAlexFilter(t *testing.T) {
	assert.Equal(t, "", buildOpenAlexFilter(types.Filters{}))
	assert.Equal(t,
		"from_publication_date:2020-01-01,to_publication_date:2023-12-31,cited_by_count:>4",
		buildOpenAlexFilter(types.Filters{YearFrom: 2020, YearTo: 2023, MinCitations: 5}))
}

const sampleOpenAlexJSON = `{
  "meta": {"count": 2, "per_page": 10, "page": 1},
  "results": [
    {
      "id": "https://openalex.org/W1",
      "title": "Fault-tolerant quantum computation",
      "doi": "https://doi.org/10.1000/ftqc",
      "publication_year": 1997,
      "cited_by_count": 812,
      "authorships": [{"author": {"display_name": "Peter W. Shor"}}],
      "abstract_inverted_index": {"Quantum": [0], "computers": [1], "fail": [2]},
      "open_access": {"oa_url": "https://arxiv.org/pdf/quant-ph/9605011"}
    },
    {
      "id": "https://openalex.org/W2",
      "title": "A note without DOI",
      "publication_year": 2021,
      "authorships": []
    }
  ]
}`

func TestOpenAlexAdapterQuery(t *testing.T) {
	var captured *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleOpenAlexJSON)
	}))
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	a := &OpenAlexAdapter{Client: ts.Client(), Email: "me@example.org"}
	records, err := a.Query(context.Background(), types.SourceQuery{Text: "fault tolerance", MaxResults: 500})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "fault tolerance", captured.URL.Query().Get("search"))
	assert.Equal(t, "200", captured.URL.Query().Get("per_page"), "per_page is capped")
	assert.Equal(t, "me@example.org", captured.URL.Query().Get("mailto"))

	r := records[0]
	assert.Equal(t, "10.1000/ftqc", r.SourceID)
	assert.Equal(t, "https://arxiv.org/pdf/quant-ph/9605011", r.URL)
	assert.Equal(t, "Quantum computers fail", r.Abstract)
	assert.Equal(t, []string{"Peter W. Shor"}, r.Authors)
	c, ok := r.CitationCount()
	assert.True(t, ok)
	assert.Equal(t, 812, c)

	assert.Equal(t, "https://openalex.org/W2", records[1].SourceID)
	assert.Nil(t, records[1].Citations)
}

func TestReconstructAbstractSkipsMissingPositions(t *testing.T) {
	assert.Equal(t, "error correction", reconstructAbstract(map[string][]int{"error": {0}, "correction": {2}}))
}
