// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search holds the source adapters: one per external literature or
// web source, each turning a SourceQuery into PaperRecords. Adapters make a
// single attempt per call and report failures as *types.SourceError;
// retrying, rate limiting, and caching belong to the retrieval coordinator.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/research-agent/pkg/types"
)

// defaultMaxResults is requested when a query does not set MaxResults.
const defaultMaxResults = 10

// Adapter queries a single source. Each source (arXiv, Semantic Scholar,
// OpenAlex, web) implements this interface per the Strategy pattern.
type Adapter interface {
	Name() string
	Query(ctx context.Context, q types.SourceQuery) ([]types.PaperRecord, error)
}

// NewAdapters returns the adapters enabled in cfg, in a fixed order.
func NewAdapters(cfg types.PipelineConfig, client *http.Client) []Adapter {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTP.Timeout}
	}
	ua := cfg.HTTP.UserAgent
	src := cfg.Sources

	var out []Adapter
	if src.EnableArxiv {
		out = append(out, &ArxivAdapter{Client: client, UserAgent: ua})
	}
	if src.EnableSemanticScholar {
		out = append(out, &SemanticScholarAdapter{Client: client, UserAgent: ua, APIKey: src.SemanticScholarAPIKey})
	}
	if src.EnableOpenAlex {
		out = append(out, &OpenAlexAdapter{Client: client, UserAgent: ua, Email: src.OpenAlexEmail})
	}
	if src.EnableWeb {
		out = append(out, &WebAdapter{Client: client, UserAgent: ua, APIKey: src.TavilyAPIKey})
	}
	return out
}

// Names returns the adapter names in order.
func Names(adapters []Adapter) []string {
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	return names
}

// SourcesFor maps a plan source hint to the enabled sources that serve it.
// When a hint names no enabled source, every enabled source is used so a
// plan query is never silently dropped.
func SourcesFor(hint types.SourceHint, enabled []string) []string {
	var want map[string]bool
	switch hint {
	case types.HintPreprint:
		want = map[string]bool{types.SourceArxiv: true}
	case types.HintScholarly:
		want = map[string]bool{types.SourceSemanticScholar: true, types.SourceOpenAlex: true}
	case types.HintWeb:
		want = map[string]bool{types.SourceWeb: true}
	}

	var out []string
	for _, name := range enabled {
		if want == nil || want[name] {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), enabled...)
	}
	return out
}

func maxResults(q types.SourceQuery, ceiling int) int {
	n := q.MaxResults
	if n <= 0 {
		n = defaultMaxResults
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n
}

func emptyQueryError(source string) error {
	return &types.SourceError{Source: source, Kind: types.SourceInvalidResponse, Err: fmt.Errorf("empty query")}
}

func decodeError(source string, err error) error {
	return &types.SourceError{Source: source, Kind: types.SourceInvalidResponse, Err: fmt.Errorf("parsing response: %w", err)}
}

// FormatTable writes ranked papers as a human-readable table to w.
func FormatTable(papers []types.RankedPaper, w io.Writer) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-4s  %-6s  %s\n",
		"Rank", "Title", "Authors", "Year", "Score", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, p := range papers {
		year := ""
		if p.Year > 0 {
			year = fmt.Sprintf("%d", p.Year)
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-4s  %-6.2f  %s\n",
			p.Rank, truncate(p.Title, 60), formatAuthors(p.Authors), year, p.CompositeScore, p.Source)
	}

	fmt.Fprintf(w, "\n%d results\n", len(papers))
}

// FormatJSON writes ranked papers as indented JSON to w.
func FormatJSON(papers []types.RankedPaper, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
