// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner turns a topic into a research plan. Planning asks the
// generator for a plan and falls back to a fixed five-query plan when
// generation fails or returns nothing usable, so it never fails a run.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/generation"
	"github.com/pdiddy/research-agent/internal/retry"
	"github.com/pdiddy/research-agent/pkg/types"
)

// maxQueries caps how many generated queries a plan keeps.
const maxQueries = 12

// Planner produces research plans.
type Planner struct {
	gen    generation.Generator
	policy retry.Policy
	logger *zap.Logger
}

// New returns a planner. gen may be nil, in which case every plan is the
// default plan.
func New(gen generation.Generator, policy retry.Policy, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{gen: gen, policy: policy, logger: logger}
}

// Plan returns a plan for topic. The error reports why the default plan was
// used; the plan is always usable.
func (p *Planner) Plan(ctx context.Context, topic string, analysis types.TopicAnalysis, filters types.Filters) (types.ResearchPlan, error) {
	if p.gen == nil {
		return DefaultPlan(topic), errors.New("no generator configured")
	}
	in := generation.PlanInput{Topic: topic, Analysis: analysis, Filters: filters}
	return retry.DoWithFallback(ctx, p.policy, func(ctx context.Context, attempt int) (types.ResearchPlan, error) {
		out, err := p.gen.Generate(ctx, generation.KindPlan, in)
		if err != nil {
			return types.ResearchPlan{}, err
		}
		plan, err := Parse(out, topic)
		if err != nil {
			p.logger.Debug("discarding generated plan", zap.Int("attempt", attempt), zap.Error(err))
			return types.ResearchPlan{}, &types.GenerationError{Kind: string(generation.KindPlan), Reason: types.GenerationMalformedOutput, Err: err}
		}
		return plan, nil
	}, func() types.ResearchPlan { return DefaultPlan(topic) })
}

type planJSON struct {
	Summary         json.RawMessage `json:"summary"`
	Objectives      json.RawMessage `json:"objectives"`
	Methodology     json.RawMessage `json:"methodology"`
	ExpectedOutputs json.RawMessage `json:"expected_outputs"`
	Queries         []struct {
		Query      string `json:"query"`
		SourceHint string `json:"source_hint"`
		Purpose    string `json:"purpose"`
	} `json:"queries"`
}

// Parse decodes a generated plan. Unknown source hints become "any", blank
// and duplicate queries are dropped, and a plan without queries is an error.
// Sections may be strings, lists, or objects; non-strings are flattened.
func Parse(out, topic string) (types.ResearchPlan, error) {
	var raw planJSON
	if err := json.Unmarshal([]byte(generation.ExtractJSON(out)), &raw); err != nil {
		return types.ResearchPlan{}, fmt.Errorf("decoding plan: %w", err)
	}

	plan := types.ResearchPlan{
		Summary:         flatten(raw.Summary),
		Objectives:      flatten(raw.Objectives),
		Methodology:     flatten(raw.Methodology),
		ExpectedOutputs: flatten(raw.ExpectedOutputs),
	}
	seen := make(map[string]bool)
	for _, q := range raw.Queries {
		text := strings.Join(strings.Fields(q.Query), " ")
		key := strings.ToLower(text)
		if text == "" || seen[key] {
			continue
		}
		seen[key] = true
		hint := types.SourceHint(strings.ToLower(strings.TrimSpace(q.SourceHint)))
		if !hint.Valid() {
			hint = types.HintAny
		}
		plan.Queries = append(plan.Queries, types.PlannedQuery{Text: text, SourceHint: hint, Purpose: q.Purpose})
		if len(plan.Queries) == maxQueries {
			break
		}
	}
	if len(plan.Queries) == 0 {
		return types.ResearchPlan{}, errors.New("plan has no queries")
	}
	if plan.Summary == "" {
		plan.Summary = "Research plan for: " + topic
	}
	return plan, nil
}

// flatten renders a JSON value as text: strings as-is, lists as lines,
// objects as "key: value" lines.
func flatten(m json.RawMessage) string {
	if len(m) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(m, &s) == nil {
		return strings.TrimSpace(s)
	}
	var list []json.RawMessage
	if json.Unmarshal(m, &list) == nil {
		var lines []string
		for _, item := range list {
			if v := flatten(item); v != "" {
				lines = append(lines, "- "+v)
			}
		}
		return strings.Join(lines, "\n")
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(m, &obj) == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var lines []string
		for _, k := range keys {
			if v := flatten(obj[k]); v != "" {
				lines = append(lines, k+": "+v)
			}
		}
		return strings.Join(lines, "\n")
	}
	return strings.TrimSpace(string(m))
}

// mainTerms returns the first five lowercased words of the topic with
// commas and periods removed.
func mainTerms(topic string) string {
	cleaned := strings.NewReplacer(",", "", ".", "").Replace(strings.ToLower(topic))
	words := strings.Fields(cleaned)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

// DefaultPlan is the plan used when generation is unavailable.
func DefaultPlan(topic string) types.ResearchPlan {
	topic = strings.TrimSpace(topic)
	terms := mainTerms(topic)
	return types.ResearchPlan{
		Queries: []types.PlannedQuery{
			{Text: topic, SourceHint: types.HintAny, Purpose: "Direct topic search"},
			{Text: terms + " state of the art", SourceHint: types.HintScholarly, Purpose: "Find latest developments"},
			{Text: terms + " survey", SourceHint: types.HintScholarly, Purpose: "Find survey and review papers"},
			{Text: terms + " challenges", SourceHint: types.HintPreprint, Purpose: "Identify research challenges"},
			{Text: terms + " applications", SourceHint: types.HintWeb, Purpose: "Find practical applications"},
		},
		Summary:         "Basic research plan for: " + topic,
		Objectives:      "Investigate the current state of " + topic + " and identify its key papers and open problems.",
		Methodology:     "Systematic literature review with composite ranking, followed by thematic synthesis.",
		ExpectedOutputs: "A ranked list of relevant papers with the research gaps they leave open.",
		Fallback:        true,
	}
}
