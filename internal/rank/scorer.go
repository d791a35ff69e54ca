// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis"
	"github.com/blevesearch/bleve/analysis/lang/en"

	"github.com/pdiddy/research-agent/pkg/types"
)

// Scorer rates how relevant a paper is to a query. Scores are clamped to
// [0, 1] by the caller.
type Scorer interface {
	Score(paper types.PaperRecord, query string) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(paper types.PaperRecord, query string) float64

// Score calls f.
func (f ScorerFunc) Score(paper types.PaperRecord, query string) float64 { return f(paper, query) }

// Weights of the keyword score. Coverage over title and abstract dominates;
// a match in the title adds the rest.
const (
	bodyCoverageWeight  = 0.7
	titleCoverageWeight = 0.3
)

// KeywordScorer scores by query-term coverage after English analysis
// (tokenizing, lowercasing, stop-word removal, stemming), so "correcting
// errors" matches "error correction".
type KeywordScorer struct {
	analyzer *analysis.Analyzer
}

// NewKeywordScorer returns a scorer using bleve's English analyzer.
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{analyzer: bleve.NewIndexMapping().AnalyzerNamed(en.AnalyzerName)}
}

// Terms returns the distinct analyzed terms of text in order of first
// occurrence.
func (s *KeywordScorer) Terms(text string) []string {
	var raw []string
	if s.analyzer != nil {
		for _, tok := range s.analyzer.Analyze([]byte(text)) {
			raw = append(raw, string(tok.Term))
		}
	} else {
		raw = strings.Fields(types.NormalizeText(text))
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Score returns 0.7 times the fraction of query terms found in the title or
// abstract plus 0.3 times the fraction found in the title.
func (s *KeywordScorer) Score(paper types.PaperRecord, query string) float64 {
	terms := s.Terms(query)
	if len(terms) == 0 {
		return 0
	}
	title := toSet(s.Terms(paper.Title))
	body := toSet(s.Terms(paper.Abstract))

	var inBody, inTitle int
	for _, t := range terms {
		if title[t] {
			inTitle++
			inBody++
		} else if body[t] {
			inBody++
		}
	}
	n := float64(len(terms))
	return bodyCoverageWeight*float64(inBody)/n + titleCoverageWeight*float64(inTitle)/n
}

func toSet(terms []string) map[string]bool {
	m := make(map[string]bool, len(terms))
	for _, t := range terms {
		m[t] = true
	}
	return m
}

// Clamp limits v to [0, 1].
func Clamp(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	}
	return v
}
