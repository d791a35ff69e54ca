// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/research-agent/internal/httputil"
	"github.com/pdiddy/research-agent/pkg/types"
)

// tavilyAPIURL is the Tavily search endpoint. Package-level var for test
// substitution.
var tavilyAPIURL = "https://api.tavily.com/search"

// WebAdapter searches the general web through the Tavily API. Web results
// carry no authors or citation data; the snippet stands in for the
// abstract.
type WebAdapter struct {
	Client    *http.Client
	UserAgent string
	APIKey    string
}

// Name returns the source identifier.
func (a *WebAdapter) Name() string { return types.SourceWeb }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// Query runs a web search.
func (a *WebAdapter) Query(ctx context.Context, q types.SourceQuery) ([]types.PaperRecord, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, emptyQueryError(a.Name())
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:      a.APIKey,
		Query:       text,
		MaxResults:  maxResults(q, 20),
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := httputil.Do(ctx, a.Client, req, a.Name())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, decodeError(a.Name(), err)
	}

	var records []types.PaperRecord
	for _, res := range tr.Results {
		if res.URL == "" {
			continue
		}
		records = append(records, types.PaperRecord{
			Title:    strings.TrimSpace(res.Title),
			Abstract: strings.TrimSpace(res.Content),
			Year:     parseWebYear(res.PublishedDate),
			Source:   types.SourceWeb,
			SourceID: res.URL,
			URL:      res.URL,
		})
	}
	return records, nil
}

// parseWebYear understands the date layouts Tavily returns.
func parseWebYear(s string) int {
	if s == "" {
		return 0
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123, time.RFC1123Z, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year()
		}
	}
	return 0
}
