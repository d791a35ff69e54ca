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

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// openAlexFields limits the response to what toRecord reads.
const openAlexFields = "id,title,doi,publication_year,cited_by_count,authorships,abstract_inverted_index,open_access"

// OpenAlexAdapter queries the OpenAlex API.
type OpenAlexAdapter struct {
	Client    *http.Client
	UserAgent string
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the source identifier.
func (a *OpenAlexAdapter) Name() string { return types.SourceOpenAlex }

// Query searches OpenAlex works. Year and citation filters are pushed to
// the API; the rest are applied by the coordinator.
func (a *OpenAlexAdapter) Query(ctx context.Context, q types.SourceQuery) ([]types.PaperRecord, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, emptyQueryError(a.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.searchURL(text, q), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := httputil.Do(ctx, a.Client, req, a.Name())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page struct {
		Results []openAlexWork `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, decodeError(a.Name(), err)
	}

	records := make([]types.PaperRecord, 0, len(page.Results))
	for _, w := range page.Results {
		records = append(records, w.toRecord())
	}
	return records, nil
}

func (a *OpenAlexAdapter) searchURL(text string, q types.SourceQuery) string {
	params := url.Values{}
	params.Set("search", text)
	params.Set("per_page", strconv.Itoa(maxResults(q, 200)))
	params.Set("select", openAlexFields)
	if f := buildOpenAlexFilter(q.Filters); f != "" {
		params.Set("filter", f)
	}
	if a.Email != "" {
		params.Set("mailto", a.Email)
	}
	return openAlexSearchBase + "?" + params.Encode()
}

// buildOpenAlexFilter renders year and citation filters.
func buildOpenAlexFilter(f types.Filters) string {
	var parts []string
	if f.YearFrom > 0 {
		parts = append(parts, fmt.Sprintf("from_publication_date:%d-01-01", f.YearFrom))
	}
	if f.YearTo > 0 {
		parts = append(parts, fmt.Sprintf("to_publication_date:%d-12-31", f.YearTo))
	}
	if f.MinCitations > 0 {
		parts = append(parts, fmt.Sprintf("cited_by_count:>%d", f.MinCitations-1))
	}
	return strings.Join(parts, ",")
}

// reconstructAbstract rebuilds text from OpenAlex's abstract_inverted_index,
// which maps each word to the positions where it occurs. Gaps in the
// positions are skipped.
func reconstructAbstract(index map[string][]int) string {
	last := -1
	for _, positions := range index {
		for _, p := range positions {
			if p > last {
				last = p
			}
		}
	}
	if last < 0 {
		return ""
	}

	slots := make([]string, last+1)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 {
				slots[p] = word
			}
		}
	}
	words := slots[:0]
	for _, w := range slots {
		if w != "" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

type openAlexWork struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	DOI             string `json:"doi"`
	PublicationYear int    `json:"publication_year"`
	CitedByCount    *int   `json:"cited_by_count"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	OpenAccess            struct {
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
}

// toRecord normalizes a work. OpenAlex is DOI-centric: the bare DOI is the
// SourceID when present, and the open-access copy is preferred as URL.
func (w openAlexWork) toRecord() types.PaperRecord {
	r := types.PaperRecord{
		Title:     w.Title,
		Abstract:  reconstructAbstract(w.AbstractInvertedIndex),
		Year:      w.PublicationYear,
		Source:    types.SourceOpenAlex,
		SourceID:  w.ID,
		Citations: w.CitedByCount,
		URL:       w.ID,
	}
	for _, a := range w.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			r.Authors = append(r.Authors, name)
		}
	}
	if w.DOI != "" {
		r.SourceID = strings.TrimPrefix(w.DOI, "https://doi.org/")
		r.URL = w.DOI
	}
	if w.OpenAccess.OAURL != "" {
		r.URL = w.OpenAccess.OAURL
	}
	return r
}
