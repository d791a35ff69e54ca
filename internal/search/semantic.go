// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/research-agent/internal/httputil"
	"github.com/pdiddy/research-agent/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,authors,externalIds,year,citationCount,url"

// SemanticScholarAdapter queries the Semantic Scholar Graph API.
type SemanticScholarAdapter struct {
	Client    *http.Client
	UserAgent string
	APIKey    string
}

// Name returns the source identifier.
func (a *SemanticScholarAdapter) Name() string { return types.SourceSemanticScholar }

// Query searches Semantic Scholar. Year and citation filters are pushed to
// the API.
func (a *SemanticScholarAdapter) Query(ctx context.Context, q types.SourceQuery) ([]types.PaperRecord, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, emptyQueryError(a.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticSearchURL(text, q), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)
	if a.APIKey != "" {
		req.Header.Set("x-api-key", a.APIKey)
	}

	resp, err := httputil.Do(ctx, a.Client, req, a.Name())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page struct {
		Data []semanticPaper `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, decodeError(a.Name(), err)
	}

	records := make([]types.PaperRecord, 0, len(page.Data))
	for _, p := range page.Data {
		records = append(records, p.toRecord())
	}
	return records, nil
}

func semanticSearchURL(text string, q types.SourceQuery) string {
	params := url.Values{}
	params.Set("query", text)
	params.Set("limit", strconv.Itoa(maxResults(q, 100)))
	params.Set("fields", semanticFields)
	if yr := buildYearRange(q.Filters.YearFrom, q.Filters.YearTo); yr != "" {
		params.Set("year", yr)
	}
	if q.Filters.MinCitations > 0 {
		params.Set("minCitationCount", strconv.Itoa(q.Filters.MinCitations))
	}
	return semanticAPIBase + "?" + params.Encode()
}

// buildYearRange renders the S2 year parameter: "2020-2023", "2020-" or "-2023".
func buildYearRange(from, to int) string {
	if from <= 0 && to <= 0 {
		return ""
	}
	var b strings.Builder
	if from > 0 {
		b.WriteString(strconv.Itoa(from))
	}
	b.WriteByte('-')
	if to > 0 {
		b.WriteString(strconv.Itoa(to))
	}
	return b.String()
}

type semanticPaper struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year"`
	CitationCount *int   `json:"citationCount"`
	URL           string `json:"url"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs struct {
		DOI   string `json:"DOI"`
		ArXiv string `json:"ArXiv"`
	} `json:"externalIds"`
}

// toRecord prefers the arXiv ID as SourceID, then the DOI, then the S2
// paper ID, so the same paper lines up with the other sources.
func (p semanticPaper) toRecord() types.PaperRecord {
	r := types.PaperRecord{
		Title:     p.Title,
		Abstract:  p.Abstract,
		Year:      p.Year,
		Source:    types.SourceSemanticScholar,
		SourceID:  p.PaperID,
		Citations: p.CitationCount,
		URL:       p.URL,
	}
	if id := p.ExternalIDs.ArXiv; id != "" {
		r.SourceID = "arXiv:" + id
	} else if p.ExternalIDs.DOI != "" {
		r.SourceID = p.ExternalIDs.DOI
	}
	for _, au := range p.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			r.Authors = append(r.Authors, name)
		}
	}
	return r
}
