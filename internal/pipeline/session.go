// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/generation"
	"github.com/pdiddy/research-agent/internal/rank"
	"github.com/pdiddy/research-agent/internal/report"
	"github.com/pdiddy/research-agent/internal/retry"
	"github.com/pdiddy/research-agent/pkg/types"
)

// answerContext is the number of papers handed to the answer prompt.
const answerContext = 8

// EnterInteractive moves a completed session into interactive mode.
func (o *Orchestrator) EnterInteractive() error {
	if o.state.Stage == types.StageInteractive {
		return nil
	}
	if o.state.Stage != types.StageCompleted {
		return &types.PipelineError{Stage: o.state.Stage, Reason: "interactive mode requires a completed session"}
	}
	return o.transition(types.StageInteractive)
}

func (o *Orchestrator) requireInteractive() error {
	if o.state.Stage != types.StageInteractive {
		return &types.PipelineError{Stage: o.state.Stage, Reason: "not in interactive mode"}
	}
	return nil
}

// Search runs an ad-hoc query across every enabled source, merges the new
// records into the session, and re-ranks the corpus. It returns how many
// unique papers were added. An empty result is logged and leaves the
// session unchanged.
func (o *Orchestrator) Search(ctx context.Context, text string) (int, error) {
	if err := o.requireInteractive(); err != nil {
		return 0, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("empty search query")
	}

	if err := o.transition(types.StageRetrieving); err != nil {
		return 0, err
	}
	queries := o.expand([]types.PlannedQuery{{Text: text, SourceHint: types.HintAny}})
	batch := o.executor.Execute(ctx, queries)
	o.recordBatch(batch)
	if len(batch.Records) == 0 {
		o.record(types.LogInfo, "", fmt.Sprintf("search %q returned no results", text))
		return 0, o.transition(types.StageInteractive)
	}

	if err := o.transition(types.StageRanking); err != nil {
		return 0, err
	}
	before := len(o.state.Corpus)
	o.state.RawRecords = rank.Merge(o.state.RawRecords, batch.Records)
	o.setCorpus(ctx, o.state.RawRecords)
	o.state.Gaps = o.analyzer.Analyze(o.state.Plan, o.state.Corpus)
	added := len(o.state.Corpus) - before

	o.logger.Info("interactive search",
		zap.String("query", text),
		zap.Int("records", len(batch.Records)),
		zap.Int("added", added))
	return added, o.transition(types.StageInteractive)
}

// Papers returns the top n ranked papers, or all of them when n <= 0.
func (o *Orchestrator) Papers(n int) []types.RankedPaper {
	corpus := o.state.Corpus
	if n > 0 && len(corpus) > n {
		corpus = corpus[:n]
	}
	return append([]types.RankedPaper(nil), corpus...)
}

// Gaps returns the identified research gaps.
func (o *Orchestrator) Gaps() []types.ResearchGap {
	return append([]types.ResearchGap(nil), o.state.Gaps...)
}

// Ask answers a free-text question from the papers most related to it. When
// generation fails the answer lists those papers instead and the error says
// why; the answer is always usable.
func (o *Orchestrator) Ask(ctx context.Context, question string) (string, error) {
	if err := o.requireInteractive(); err != nil {
		return "", err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("empty question")
	}

	papers := o.related(question)
	fallback := func() string { return listAnswer(question, papers) }
	if o.gen == nil {
		return fallback(), nil
	}

	in := generation.AnswerInput{
		Topic:    o.state.Topic,
		Question: question,
		Papers:   papers,
		Gaps:     o.state.Gaps,
	}
	answer, err := retry.DoWithFallback(ctx, o.answerPolicy, func(ctx context.Context, _ int) (string, error) {
		return o.gen.Generate(ctx, generation.KindAnswer, in)
	}, fallback)
	if err != nil {
		o.record(types.LogGeneration, "", fmt.Sprintf("answer generation failed: %v", err))
	}
	return strings.TrimSpace(answer), err
}

// related returns the papers best matching text, falling back to the top of
// the corpus.
func (o *Orchestrator) related(text string) []types.RankedPaper {
	if o.index != nil {
		hits, err := o.index.Search(text, answerContext)
		if err == nil {
			return hits
		}
		o.logger.Debug("corpus search failed", zap.Error(err))
	}
	return o.Papers(answerContext)
}

func listAnswer(question string, papers []types.RankedPaper) string {
	if len(papers) == 0 {
		return "No papers in this session relate to the question."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Papers most related to %q:\n", question)
	for i, p := range papers {
		year := ""
		if p.Year > 0 {
			year = fmt.Sprintf(" (%d)", p.Year)
		}
		fmt.Fprintf(&b, "[%d] %s%s", i+1, p.Title, year)
		if p.URL != "" {
			fmt.Fprintf(&b, " %s", p.URL)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary prints the session summary with the top n papers.
func (o *Orchestrator) Summary(w io.Writer, n int) {
	report.WriteSummary(w, o.state, n)
}

// Save writes the session to path: the report for .md, a JSON or YAML
// snapshot otherwise.
func (o *Orchestrator) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		path = report.DefaultPath(o.state.Topic)
	}
	if err := report.SaveState(path, o.state); err != nil {
		return err
	}
	o.record(types.LogInfo, "", fmt.Sprintf("session saved to %s", path))
	return nil
}

// Sources lists the enabled sources.
func (o *Orchestrator) Sources() []string {
	return o.executor.Sources()
}
