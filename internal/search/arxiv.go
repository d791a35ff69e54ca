// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/research-agent/internal/httputil"
	"github.com/pdiddy/research-agent/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivAdapter queries the arXiv Atom API.
type ArxivAdapter struct {
	Client    *http.Client
	UserAgent string
}

// Name returns the source identifier.
func (a *ArxivAdapter) Name() string { return types.SourceArxiv }

// Query searches arXiv. Category filters are pushed into the query; the
// remaining filters are applied by the coordinator.
func (a *ArxivAdapter) Query(ctx context.Context, q types.SourceQuery) ([]types.PaperRecord, error) {
	sq := buildArxivQuery(q)
	if sq == "" {
		return nil, emptyQueryError(a.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivSearchURL(sq, maxResults(q, 100)), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := httputil.Do(ctx, a.Client, req, a.Name())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var feed struct {
		Entries []arxivEntry `xml:"entry"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, decodeError(a.Name(), err)
	}

	records := make([]types.PaperRecord, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if r, ok := e.toRecord(); ok {
			records = append(records, r)
		}
	}
	return records, nil
}

func arxivSearchURL(searchQuery string, limit int) string {
	params := url.Values{}
	params.Set("search_query", searchQuery)
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("sortBy", "relevance")
	return arxivAPIBase + "?" + params.Encode()
}

// buildArxivQuery AND-s every term of the query text under all: and, when
// categories are requested, requires one of them.
func buildArxivQuery(q types.SourceQuery) string {
	terms := strings.Fields(q.Text)
	if len(terms) == 0 {
		return ""
	}
	for i, t := range terms {
		terms[i] = "all:" + t
	}
	query := strings.Join(terms, " AND ")
	if len(q.Filters.Categories) == 0 {
		return query
	}

	cats := make([]string, 0, len(q.Filters.Categories))
	for _, c := range q.Filters.Categories {
		cats = append(cats, "cat:"+c)
	}
	return fmt.Sprintf("(%s) AND (%s)", query, strings.Join(cats, " OR "))
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

// toRecord reports false for entries without a recognizable abs URL.
func (e arxivEntry) toRecord() (types.PaperRecord, bool) {
	id := extractArxivID(e.ID)
	if id == "" {
		return types.PaperRecord{}, false
	}
	r := types.PaperRecord{
		Title:    collapseSpace(e.Title),
		Abstract: collapseSpace(e.Summary),
		Source:   types.SourceArxiv,
		SourceID: id,
		URL:      "https://arxiv.org/abs/" + id,
	}
	for _, au := range e.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			r.Authors = append(r.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			r.Categories = append(r.Categories, c.Term)
		}
	}
	if len(e.Published) >= 4 {
		r.Year, _ = strconv.Atoi(e.Published[:4])
	}
	return r, true
}

// arxivIDPattern matches the identifier after /abs/ in both new-style
// (2301.07041) and old-style (quant-ph/9512032) forms, minus any version.
var arxivIDPattern = regexp.MustCompile(`/abs/([a-z-]+(?:\.[A-Z]{2})?/\d{7}|\d{4}\.\d{4,5})(?:v\d+)?$`)

func extractArxivID(idURL string) string {
	m := arxivIDPattern.FindStringSubmatch(strings.TrimSpace(idURL))
	if m == nil {
		return ""
	}
	return m[1]
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
