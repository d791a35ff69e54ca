// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gaps finds plan queries the ranked corpus covers poorly and groups
// them into research gaps. Analysis is deterministic and makes no external
// calls.
package gaps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/research-agent/internal/rank"
	"github.com/pdiddy/research-agent/pkg/types"
)

// Termer splits text into comparable terms.
type Termer interface {
	Terms(text string) []string
}

// Analyzer detects gaps using the scorer that ranked the corpus.
type Analyzer struct {
	Scorer rank.Scorer
	Termer Termer

	// Threshold is the score the k-th best paper must reach for a query to
	// count as covered.
	Threshold float64
	// MinMatches is k.
	MinMatches int
	// ClusterOverlap is the Jaccard similarity of term sets at which an
	// underexplored query joins an existing cluster.
	ClusterOverlap float64
}

// NewAnalyzer builds an analyzer from configuration. A KeywordScorer serves
// as both scorer and termer when scorer is nil.
func NewAnalyzer(cfg types.GapConfig, scorer rank.Scorer) *Analyzer {
	kw := rank.NewKeywordScorer()
	if scorer == nil {
		scorer = kw
	}
	return &Analyzer{
		Scorer:         scorer,
		Termer:         kw,
		Threshold:      cfg.Threshold,
		MinMatches:     cfg.MinMatches,
		ClusterOverlap: cfg.ClusterOverlap,
	}
}

// Coverage is the evaluation of one plan query.
type Coverage struct {
	Query   types.PlannedQuery
	KthBest float64
	Covered bool
}

// Evaluate scores every plan query against the corpus.
func (a *Analyzer) Evaluate(plan types.ResearchPlan, corpus []types.RankedPaper) []Coverage {
	k := a.MinMatches
	if k < 1 {
		k = 1
	}
	out := make([]Coverage, len(plan.Queries))
	for i, q := range plan.Queries {
		scores := make([]float64, len(corpus))
		for j, p := range corpus {
			scores[j] = rank.Clamp(a.Scorer.Score(p.PaperRecord, q.Text))
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

		var kth float64
		if len(scores) >= k {
			kth = scores[k-1]
		}
		out[i] = Coverage{Query: q, KthBest: kth, Covered: kth >= a.Threshold}
	}
	return out
}

type cluster struct {
	terms   map[string]bool // terms of the first member
	union   []string
	members []Coverage
}

// Analyze returns one gap per cluster of underexplored queries, in plan
// order. Queries cluster when their term sets overlap with the cluster's
// first query by at least ClusterOverlap.
func (a *Analyzer) Analyze(plan types.ResearchPlan, corpus []types.RankedPaper) []types.ResearchGap {
	var clusters []*cluster
	for _, c := range a.Evaluate(plan, corpus) {
		if c.Covered {
			continue
		}
		terms := a.Termer.Terms(c.Query.Text)
		var home *cluster
		for _, cl := range clusters {
			if jaccard(cl.terms, terms) >= a.ClusterOverlap {
				home = cl
				break
			}
		}
		if home == nil {
			home = &cluster{terms: make(map[string]bool, len(terms))}
			for _, t := range terms {
				home.terms[t] = true
			}
			clusters = append(clusters, home)
		}
		home.members = append(home.members, c)
		home.union = appendNew(home.union, terms)
	}

	gaps := make([]types.ResearchGap, 0, len(clusters))
	for _, cl := range clusters {
		gaps = append(gaps, a.gap(cl))
	}
	return gaps
}

func (a *Analyzer) gap(cl *cluster) types.ResearchGap {
	var sum float64
	queries := make([]string, len(cl.members))
	for i, m := range cl.members {
		queries[i] = m.Query.Text
		if a.Threshold > 0 {
			sum += (a.Threshold - m.KthBest) / a.Threshold
		}
	}
	confidence := rank.Clamp(sum / float64(len(cl.members)))

	var desc string
	if len(queries) == 1 {
		desc = fmt.Sprintf("Limited coverage of %q", queries[0])
	} else {
		desc = fmt.Sprintf("Limited coverage of %q and %d related queries", queries[0], len(queries)-1)
	}
	if p := cl.members[0].Query.Purpose; p != "" {
		desc += " (" + strings.TrimSuffix(p, ".") + ")"
	}
	return types.ResearchGap{
		Description:  desc,
		RelatedTerms: cl.union,
		Confidence:   confidence,
		Queries:      queries,
	}
}

// jaccard returns |A∩B| / |A∪B|; two empty sets are identical.
func jaccard(a map[string]bool, b []string) float64 {
	bs := make(map[string]bool, len(b))
	for _, t := range b {
		bs[t] = true
	}
	if len(a) == 0 && len(bs) == 0 {
		return 1
	}
	inter := 0
	for t := range bs {
		if a[t] {
			inter++
		}
	}
	union := len(a) + len(bs) - inter
	return float64(inter) / float64(union)
}

func appendNew(dst, terms []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, t := range dst {
		seen[t] = true
	}
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			dst = append(dst, t)
		}
	}
	return dst
}
