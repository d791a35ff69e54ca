// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"unicode"
)

// PaperRecord is a single result as returned by a source adapter. Records
// are values; nothing downstream of an adapter mutates one.
type PaperRecord struct {
	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the paper abstract or web snippet.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Year is the publication year, 0 when the source did not report one.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Source identifies which adapter produced the record (e.g. "arxiv").
	Source string `json:"source" yaml:"source"`

	// SourceID is the identifier native to the source (arXiv ID, DOI, URL).
	SourceID string `json:"source_id,omitempty" yaml:"source_id,omitempty"`

	// Citations is the citation count, nil when the source has no data.
	Citations *int `json:"citations,omitempty" yaml:"citations,omitempty"`

	// URL links to the landing page or PDF.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Categories holds source subject categories (arXiv only today).
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// CitationCount returns the citation count and whether it is known.
func (p PaperRecord) CitationCount() (int, bool) {
	if p.Citations == nil {
		return 0, false
	}
	return *p.Citations, true
}

// NormalizedTitle returns the lowercased, punctuation-stripped title.
func (p PaperRecord) NormalizedTitle() string {
	return NormalizeText(p.Title)
}

// FirstAuthorSurname returns the lowercased surname of the first author,
// or "" when the record has no usable author. Both "Given Family" and
// "Family, Given" forms are understood.
func (p PaperRecord) FirstAuthorSurname() string {
	if len(p.Authors) == 0 {
		return ""
	}
	name := strings.TrimSpace(p.Authors[0])
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	} else if fields := strings.Fields(name); len(fields) > 0 {
		name = fields[len(fields)-1]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizedURL returns the URL without scheme, "www.", or trailing slash.
func (p PaperRecord) NormalizedURL() string {
	u := strings.ToLower(strings.TrimSpace(p.URL))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimSuffix(u, "/")
}

// Key is the identity key used for deduplication: normalized title plus
// first-author surname. Records with no title are keyed by URL.
func (p PaperRecord) Key() string {
	title := p.NormalizedTitle()
	if title == "" {
		return "url:" + p.NormalizedURL()
	}
	return title + "|" + p.FirstAuthorSurname()
}

// Clone returns a deep copy so cached payloads cannot be changed through
// slices shared with callers.
func (p PaperRecord) Clone() PaperRecord {
	out := p
	if p.Authors != nil {
		out.Authors = append([]string(nil), p.Authors...)
	}
	if p.Categories != nil {
		out.Categories = append([]string(nil), p.Categories...)
	}
	if p.Citations != nil {
		c := *p.Citations
		out.Citations = &c
	}
	return out
}

// NormalizeText lowercases s, drops punctuation, and collapses whitespace.
func NormalizeText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// RankedPaper is a PaperRecord annotated with the scores that produced its
// rank. Rank is 1-based and strictly increasing through a ranked corpus.
type RankedPaper struct {
	PaperRecord `yaml:",inline"`

	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`
	RecencyScore   float64 `json:"recency_score" yaml:"recency_score"`
	CitationScore  float64 `json:"citation_score" yaml:"citation_score"`
	CompositeScore float64 `json:"composite_score" yaml:"composite_score"`
	Rank           int     `json:"rank" yaml:"rank"`
}

// IntPtr returns a pointer to v. Adapters use it to fill Citations.
func IntPtr(v int) *int { return &v }
