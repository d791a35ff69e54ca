// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the research-agent
// pipeline: paper records, queries, plans, gaps, the session state, typed
// errors, and configuration.
package types

import (
	"sort"
	"strings"
)

// Source names used by adapters and source hints.
const (
	SourceArxiv           = "arxiv"
	SourceSemanticScholar = "semantic_scholar"
	SourceOpenAlex        = "openalex"
	SourceWeb             = "web"
)

// Filters narrow the records a query returns. A zero Filters matches
// everything.
type Filters struct {
	// YearFrom and YearTo bound the publication year inclusively (0 = open).
	YearFrom int `json:"year_from,omitempty" yaml:"year_from,omitempty" mapstructure:"year_from"`
	YearTo   int `json:"year_to,omitempty" yaml:"year_to,omitempty" mapstructure:"year_to"`

	// Categories restricts records that carry categories (arXiv) to these.
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty" mapstructure:"categories"`

	// Include requires every keyword in title or abstract.
	Include []string `json:"include,omitempty" yaml:"include,omitempty" mapstructure:"include"`

	// Exclude drops records mentioning any keyword in title or abstract.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty" mapstructure:"exclude"`

	// MinCitations drops records below this count, including records with
	// no citation data, when greater than zero.
	MinCitations int `json:"min_citations,omitempty" yaml:"min_citations,omitempty" mapstructure:"min_citations"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.YearFrom == 0 && f.YearTo == 0 && len(f.Categories) == 0 &&
		len(f.Include) == 0 && len(f.Exclude) == 0 && f.MinCitations == 0
}

// Validate checks filter consistency.
func (f Filters) Validate() error {
	if f.YearFrom < 0 || f.YearTo < 0 {
		return &ConfigurationError{Field: "filters.year", Reason: "years must not be negative"}
	}
	if f.YearFrom > 0 && f.YearTo > 0 && f.YearFrom > f.YearTo {
		return &ConfigurationError{Field: "filters.year", Reason: "year_from is after year_to"}
	}
	if f.MinCitations < 0 {
		return &ConfigurationError{Field: "filters.min_citations", Reason: "must not be negative"}
	}
	return nil
}

// Match reports whether p passes every filter.
func (f Filters) Match(p PaperRecord) bool {
	if f.YearFrom > 0 && p.Year > 0 && p.Year < f.YearFrom {
		return false
	}
	if f.YearTo > 0 && p.Year > 0 && p.Year > f.YearTo {
		return false
	}
	if len(f.Categories) > 0 && len(p.Categories) > 0 && !anyCategory(f.Categories, p.Categories) {
		return false
	}
	if f.MinCitations > 0 {
		c, ok := p.CitationCount()
		if !ok || c < f.MinCitations {
			return false
		}
	}
	if len(f.Include) == 0 && len(f.Exclude) == 0 {
		return true
	}
	text := strings.ToLower(p.Title + " " + p.Abstract)
	for _, kw := range f.Include {
		if !strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}
	for _, kw := range f.Exclude {
		if strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

func anyCategory(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) || strings.HasPrefix(strings.ToLower(h), strings.ToLower(w)+".") {
				return true
			}
		}
	}
	return false
}

// Canonical returns the filters with every list lowercased, trimmed, and
// sorted so that two equivalent filter sets serialize identically.
func (f Filters) Canonical() Filters {
	out := f
	out.Categories = canonicalList(f.Categories)
	out.Include = canonicalList(f.Include)
	out.Exclude = canonicalList(f.Exclude)
	return out
}

func canonicalList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SourceQuery is one query text addressed to one source.
type SourceQuery struct {
	Text    string  `json:"text" yaml:"text"`
	Source  string  `json:"source" yaml:"source"`
	Filters Filters `json:"filters,omitempty" yaml:"filters,omitempty"`

	// MaxResults caps the records requested from the source (0 = adapter default).
	MaxResults int `json:"max_results,omitempty" yaml:"max_results,omitempty"`
}

// QueryFailure records a query that exhausted its retries or was cut off
// by the batch deadline.
type QueryFailure struct {
	Query  SourceQuery `json:"query" yaml:"query"`
	Source string      `json:"source" yaml:"source"`
	Reason string      `json:"reason" yaml:"reason"`
	Err    error       `json:"-" yaml:"-"`
}
