// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank deduplicates raw paper records and orders the result into a
// ranked corpus by a weighted composite of relevance, recency, and
// citations. Ranking is pure: the current year is injected, so the same
// records and scorer always yield the same corpus.
package rank

import (
	"math"
	"sort"

	"github.com/pdiddy/research-agent/pkg/types"
)

// Weights are the composite score weights.
type Weights struct {
	Relevance float64
	Recency   float64
	Citation  float64
}

// Engine ranks paper records.
type Engine struct {
	Scorer  Scorer
	Weights Weights

	// RecencyHorizon is the age in years at which recency reaches
	// RecencyFloor.
	RecencyHorizon int
	RecencyFloor   float64

	// CurrentYear anchors paper age.
	CurrentYear int
}

// NewEngine builds an engine from configuration.
func NewEngine(cfg types.RankingConfig, scorer Scorer, currentYear int) *Engine {
	if scorer == nil {
		scorer = NewKeywordScorer()
	}
	return &Engine{
		Scorer: scorer,
		Weights: Weights{
			Relevance: cfg.RelevanceWeight,
			Recency:   cfg.RecencyWeight,
			Citation:  cfg.CitationWeight,
		},
		RecencyHorizon: cfg.RecencyHorizon,
		RecencyFloor:   cfg.RecencyFloor,
		CurrentYear:    currentYear,
	}
}

// Rank deduplicates records and returns the ranked corpus for topic.
func (e *Engine) Rank(records []types.PaperRecord, topic string) []types.RankedPaper {
	return e.Order(Dedup(records), topic)
}

// Order scores already-deduplicated records and sorts them. Ties on the
// composite score go to the higher citation count (unknown lowest), then the
// more recent year, then the earlier input position. Ranks are 1-based.
func (e *Engine) Order(records []types.PaperRecord, topic string) []types.RankedPaper {
	maxCitations := 0
	for _, r := range records {
		if c, ok := r.CitationCount(); ok && c > maxCitations {
			maxCitations = c
		}
	}

	ranked := make([]types.RankedPaper, len(records))
	for i, r := range records {
		rp := types.RankedPaper{PaperRecord: r}
		rp.RelevanceScore = Clamp(e.Scorer.Score(r, topic))
		rp.RecencyScore = e.recency(r.Year)
		rp.CitationScore = citationScore(r, maxCitations)
		rp.CompositeScore = e.Weights.Relevance*rp.RelevanceScore +
			e.Weights.Recency*rp.RecencyScore +
			e.Weights.Citation*rp.CitationScore
		ranked[i] = rp
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		ra, rb := ranked[a], ranked[b]
		if ra.CompositeScore != rb.CompositeScore {
			return ra.CompositeScore > rb.CompositeScore
		}
		ca, okA := ra.CitationCount()
		cb, okB := rb.CitationCount()
		if okA != okB {
			return okA
		}
		if ca != cb {
			return ca > cb
		}
		return ra.Year > rb.Year
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// recency falls linearly from 1 for the current year to the floor at the
// horizon. Unknown years score the floor; future years score 1.
func (e *Engine) recency(year int) float64 {
	floor := Clamp(e.RecencyFloor)
	if year <= 0 {
		return floor
	}
	age := e.CurrentYear - year
	if age <= 0 {
		return 1
	}
	horizon := e.RecencyHorizon
	if horizon < 1 {
		horizon = 1
	}
	return math.Max(floor, 1-float64(age)/float64(horizon))
}

// citationScore is log1p(c)/log1p(max). Without citation data it is 0.
func citationScore(r types.PaperRecord, maxCitations int) float64 {
	c, ok := r.CitationCount()
	if !ok || maxCitations <= 0 {
		return 0
	}
	return Clamp(math.Log1p(float64(c)) / math.Log1p(float64(maxCitations)))
}

// Merge appends fresh records to the existing raw set. The result is
// re-ranked by the caller; nothing already gathered is dropped.
func Merge(existing, fresh []types.PaperRecord) []types.PaperRecord {
	out := make([]types.PaperRecord, 0, len(existing)+len(fresh))
	out = append(out, existing...)
	return append(out, fresh...)
}
