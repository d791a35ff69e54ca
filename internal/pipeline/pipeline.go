// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives a research session through planning, retrieval,
// ranking, gap analysis, and reporting, and serves the interactive session
// that follows a completed run.
//
// An Orchestrator owns one ResearchState and is not safe for concurrent use.
// Callers receive snapshots; the live state is only changed between stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/clarify"
	"github.com/pdiddy/research-agent/internal/gaps"
	"github.com/pdiddy/research-agent/internal/generation"
	"github.com/pdiddy/research-agent/internal/metrics"
	"github.com/pdiddy/research-agent/internal/planner"
	"github.com/pdiddy/research-agent/internal/rank"
	"github.com/pdiddy/research-agent/internal/report"
	"github.com/pdiddy/research-agent/internal/retrieval"
	"github.com/pdiddy/research-agent/internal/retry"
	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/pkg/types"
)

// ReasonNoResults is the failure reason when retrieval returns nothing.
const ReasonNoResults = "no sources returned results"

// transitions lists the stages reachable from each stage. Failed is
// reachable from every non-terminal stage and handled separately.
var transitions = map[types.Stage][]types.Stage{
	types.StageInitialized: {types.StagePlanning},
	types.StagePlanning:    {types.StageRetrieving},
	types.StageRetrieving:  {types.StageRanking, types.StageInteractive},
	types.StageRanking:     {types.StageGapAnalysis, types.StageInteractive},
	types.StageGapAnalysis: {types.StageReporting},
	types.StageReporting:   {types.StageCompleted},
	types.StageCompleted:   {types.StageInteractive},
	types.StageInteractive: {types.StageRetrieving},
}

// Archiver persists finished sessions.
type Archiver interface {
	Save(ctx context.Context, state types.ResearchState) error
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Executor retrieval.Executor

	// Generator is optional; without one every generated artifact uses its
	// fallback.
	Generator generation.Generator

	// Archive is optional.
	Archive Archiver

	Logger *zap.Logger

	// Progress receives one line per stage for the user.
	Progress io.Writer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs one research session.
type Orchestrator struct {
	cfg      types.PipelineConfig
	executor retrieval.Executor
	gen      generation.Generator
	archive  Archiver
	logger   *zap.Logger
	progress io.Writer
	now      func() time.Time

	planner      *planner.Planner
	engine       *rank.Engine
	assisted     *generation.AssistedScorer
	analyzer     *gaps.Analyzer
	reportPolicy retry.Policy
	answerPolicy retry.Policy

	state        types.ResearchState
	stageStarted time.Time
	index        *rank.CorpusIndex
}

// New validates cfg and returns an orchestrator in the Initialized stage.
func New(cfg types.PipelineConfig, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Executor == nil {
		return nil, &types.ConfigurationError{Field: "executor", Reason: "no retrieval executor"}
	}
	o := &Orchestrator{
		cfg:      cfg,
		executor: deps.Executor,
		gen:      deps.Generator,
		archive:  deps.Archive,
		logger:   deps.Logger,
		progress: deps.Progress,
		now:      deps.Now,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.progress == nil {
		o.progress = io.Discard
	}
	if o.now == nil {
		o.now = time.Now
	}

	genPolicy := retry.FromConfig(cfg.Generation.Retry)
	o.planner = planner.New(o.gen, genPolicy.WithAttempts(cfg.Generation.PlanAttempts), o.logger)
	o.reportPolicy = genPolicy.WithAttempts(cfg.Generation.ReportAttempts)
	o.answerPolicy = genPolicy

	keyword := rank.NewKeywordScorer()
	var scorer rank.Scorer = keyword
	if cfg.Ranking.AssistedRelevance && o.gen != nil {
		o.assisted = generation.NewAssistedScorer(o.gen, keyword, o.logger)
		scorer = o.assisted
	}
	o.engine = rank.NewEngine(cfg.Ranking, scorer, o.now().Year())
	o.analyzer = gaps.NewAnalyzer(cfg.Gaps, keyword)

	o.state = types.ResearchState{Stage: types.StageInitialized}
	return o, nil
}

// State returns a snapshot of the session.
func (o *Orchestrator) State() types.ResearchState {
	return o.state.Clone()
}

// Stage returns the current stage.
func (o *Orchestrator) Stage() types.Stage {
	return o.state.Stage
}

// Start runs the automatic stages for topic. Partial data never fails a
// run; the returned error is a *PipelineError when the run ends in Failed,
// or a *ConfigurationError when the input is unusable.
func (o *Orchestrator) Start(ctx context.Context, topic string, filters types.Filters) (types.ResearchState, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return o.State(), &types.ConfigurationError{Field: "topic", Reason: "must not be empty"}
	}
	if err := filters.Validate(); err != nil {
		return o.State(), err
	}
	if o.state.Stage != types.StageInitialized {
		return o.State(), &types.PipelineError{Stage: o.state.Stage, Reason: "session already started"}
	}

	now := o.now()
	o.state.ID = uuid.NewString()
	o.state.Topic = topic
	o.state.Filters = filters.Canonical()
	o.state.StartedAt = now
	o.stageStarted = now
	o.logger = o.logger.With(zap.String("session", o.state.ID))

	steps := []struct {
		stage types.Stage
		run   func(context.Context) error
	}{
		{types.StagePlanning, o.plan},
		{types.StageRetrieving, o.retrieve},
		{types.StageRanking, o.rank},
		{types.StageGapAnalysis, o.analyzeGaps},
		{types.StageReporting, o.writeReport},
	}
	for _, step := range steps {
		if err := o.transition(step.stage); err != nil {
			return o.State(), err
		}
		if err := step.run(ctx); err != nil {
			ferr := o.fail(err)
			return o.State(), ferr
		}
	}
	if err := o.transition(types.StageCompleted); err != nil {
		return o.State(), err
	}
	o.state.CompletedAt = o.now()
	o.finish(ctx)
	return o.State(), nil
}

func (o *Orchestrator) plan(ctx context.Context) error {
	o.state.Analysis = clarify.Assess(o.state.Topic)
	plan, err := o.planner.Plan(ctx, o.state.Topic, o.state.Analysis, o.state.Filters)
	if err != nil {
		o.record(types.LogGeneration, "", fmt.Sprintf("plan generation failed: %v", err))
	}
	if plan.Fallback {
		o.record(types.LogFallback, "", "using the default search plan")
	}
	o.state.Plan = plan
	fmt.Fprintf(o.progress, "planned %d queries\n", len(plan.Queries))
	return nil
}

func (o *Orchestrator) retrieve(ctx context.Context) error {
	queries := o.expand(o.state.Plan.Queries)
	fmt.Fprintf(o.progress, "searching %d source queries across %s\n",
		len(queries), strings.Join(o.executor.Sources(), ", "))

	batch := o.executor.Execute(ctx, queries)
	o.recordBatch(batch)
	if len(batch.Records) == 0 {
		return &types.PipelineError{Stage: types.StageRetrieving, Reason: ReasonNoResults}
	}
	o.state.RawRecords = batch.Records
	fmt.Fprintf(o.progress, "retrieved %d records (%d failed queries, %d cache hits)\n",
		len(batch.Records), len(batch.Failures), batch.CacheHits)
	return nil
}

func (o *Orchestrator) rank(ctx context.Context) error {
	o.setCorpus(ctx, o.state.RawRecords)
	fmt.Fprintf(o.progress, "ranked %d unique papers\n", len(o.state.Corpus))
	return nil
}

func (o *Orchestrator) analyzeGaps(context.Context) error {
	o.state.Gaps = o.analyzer.Analyze(o.state.Plan, o.state.Corpus)
	fmt.Fprintf(o.progress, "identified %d research gaps\n", len(o.state.Gaps))
	return nil
}

func (o *Orchestrator) writeReport(ctx context.Context) error {
	limit := o.cfg.ReportLimit
	fallback := func() string { return report.Templated(o.state, limit) }

	if o.gen == nil {
		o.state.Report = fallback()
		o.state.ReportTemplated = true
		o.record(types.LogFallback, "", "no generator configured, using the templated report")
		return nil
	}

	papers := o.state.Corpus
	if limit > 0 && len(papers) > limit {
		papers = papers[:limit]
	}
	in := generation.ReportInput{
		Topic:    o.state.Topic,
		Plan:     o.state.Plan,
		Papers:   papers,
		Gaps:     o.state.Gaps,
		RawCount: len(o.state.RawRecords),
	}
	text, err := retry.DoWithFallback(ctx, o.reportPolicy, func(ctx context.Context, attempt int) (string, error) {
		out, err := o.gen.Generate(ctx, generation.KindReport, in)
		if err != nil {
			o.logger.Debug("report attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return out, err
	}, fallback)
	if err != nil {
		o.record(types.LogGeneration, "", fmt.Sprintf("report generation failed: %v", err))
		o.record(types.LogFallback, "", "using the templated report")
		o.state.ReportTemplated = true
	}
	o.state.Report = text
	return nil
}

// expand turns plan queries into one SourceQuery per serving source.
func (o *Orchestrator) expand(planned []types.PlannedQuery) []types.SourceQuery {
	enabled := o.executor.Sources()
	var out []types.SourceQuery
	for _, q := range planned {
		for _, src := range search.SourcesFor(q.SourceHint, enabled) {
			out = append(out, types.SourceQuery{
				Text:       q.Text,
				Source:     src,
				Filters:    o.state.Filters,
				MaxResults: o.cfg.Sources.MaxResults,
			})
		}
	}
	return out
}

func (o *Orchestrator) recordBatch(batch retrieval.Batch) {
	for _, f := range batch.Failures {
		o.record(types.LogSource, f.Source, fmt.Sprintf("query %q failed: %s", f.Query.Text, f.Reason))
	}
}

// setCorpus dedups and ranks records against the topic and refreshes the
// question-answering index.
func (o *Orchestrator) setCorpus(ctx context.Context, records []types.PaperRecord) {
	unique := rank.Dedup(records)
	if o.assisted != nil {
		if err := o.assisted.Prime(ctx, o.state.Topic, unique); err != nil {
			o.record(types.LogGeneration, "", fmt.Sprintf("relevance scoring failed: %v", err))
			o.record(types.LogFallback, "", "keyword relevance used for unscored papers")
		}
	}
	o.state.Corpus = o.engine.Order(unique, o.state.Topic)

	if o.index != nil {
		o.index.Close()
		o.index = nil
	}
	idx, err := rank.NewCorpusIndex(o.state.Corpus)
	if err != nil {
		o.logger.Warn("building corpus index", zap.Error(err))
		return
	}
	o.index = idx
}

// transition moves the session to next, checking the transition table.
func (o *Orchestrator) transition(next types.Stage) error {
	from := o.state.Stage
	allowed := false
	for _, s := range transitions[from] {
		if s == next {
			allowed = true
			break
		}
	}
	if next == types.StageFailed && !from.Terminal() {
		allowed = true
	}
	if !allowed {
		return &types.PipelineError{Stage: from, Reason: fmt.Sprintf("invalid transition to %s", next)}
	}

	now := o.now()
	if !o.stageStarted.IsZero() && from != types.StageInitialized {
		metrics.StageDuration.WithLabelValues(string(from)).Observe(now.Sub(o.stageStarted).Seconds())
	}
	o.stageStarted = now
	o.state.Stage = next
	o.state.ErrorLog = append(o.state.ErrorLog, types.LogEntry{
		Time:    now,
		Stage:   next,
		Kind:    types.LogTransition,
		Message: fmt.Sprintf("%s -> %s", from, next),
	})
	o.logger.Debug("stage transition", zap.String("from", string(from)), zap.String("to", string(next)))
	return nil
}

// fail moves the session to Failed and returns the terminating error.
func (o *Orchestrator) fail(err error) error {
	var perr *types.PipelineError
	if !errors.As(err, &perr) {
		perr = &types.PipelineError{Stage: o.state.Stage, Reason: err.Error()}
	}
	o.state.FailureReason = perr.Reason
	if terr := o.transition(types.StageFailed); terr != nil {
		return terr
	}
	o.state.CompletedAt = o.now()
	o.logger.Error("research failed", zap.String("stage", string(perr.Stage)), zap.String("reason", perr.Reason))
	fmt.Fprintf(o.progress, "research failed: %s\n", perr.Reason)
	o.finish(context.Background())
	return perr
}

// finish counts and archives a session that reached a terminal stage.
func (o *Orchestrator) finish(ctx context.Context) {
	metrics.Sessions.WithLabelValues(string(o.state.Stage)).Inc()
	if o.archive == nil {
		return
	}
	if err := o.archive.Save(ctx, o.state); err != nil {
		o.logger.Warn("archiving session", zap.Error(err))
	}
}

// record appends a non-transition entry to the session log.
func (o *Orchestrator) record(kind types.LogKind, source, msg string) {
	o.state.ErrorLog = append(o.state.ErrorLog, types.LogEntry{
		Time:    o.now(),
		Stage:   o.state.Stage,
		Kind:    kind,
		Source:  source,
		Message: msg,
	})
	fields := []zap.Field{zap.String("stage", string(o.state.Stage)), zap.String("kind", string(kind))}
	if source != "" {
		fields = append(fields, zap.String("source", source))
	}
	if kind == types.LogInfo {
		o.logger.Info(msg, fields...)
	} else {
		o.logger.Warn(msg, fields...)
	}
}

// Close releases the question-answering index.
func (o *Orchestrator) Close() error {
	if o.index == nil {
		return nil
	}
	err := o.index.Close()
	o.index = nil
	return err
}
