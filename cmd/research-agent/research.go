// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/archive"
	"github.com/pdiddy/research-agent/internal/clarify"
	"github.com/pdiddy/research-agent/internal/generation"
	"github.com/pdiddy/research-agent/internal/interactive"
	"github.com/pdiddy/research-agent/internal/metrics"
	"github.com/pdiddy/research-agent/internal/pipeline"
	"github.com/pdiddy/research-agent/internal/report"
	"github.com/pdiddy/research-agent/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research [topic]",
	Short: "Run a full research session on a topic",
	Long: `Research plans a search strategy for the topic, queries every enabled
source concurrently, deduplicates and ranks the results, identifies research
gaps, and writes a report. Ambiguous topics prompt for clarification first.

After the report is written the session continues in interactive mode unless
--no-interactive is given. The command exits non-zero when the session fails.`,
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().StringP("output", "o", "", "report path (default: <topic>_research_report.md); .json or .yaml saves the session, .bib or .csl the references")
	researchCmd.Flags().Bool("sync", false, "query sources one at a time")
	researchCmd.Flags().Bool("no-interactive", false, "skip clarification and interactive mode")
	researchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	researchCmd.Flags().String("provider", "", "generation provider: groq, openai, anthropic, or none")
	researchCmd.Flags().String("model", "", "generation model")
	addFilterFlags(researchCmd)

	rootCmd.AddCommand(researchCmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Int("year-from", 0, "earliest publication year")
	cmd.Flags().Int("year-to", 0, "latest publication year")
	cmd.Flags().StringSlice("category", nil, "arXiv categories to keep (e.g. cs.LG)")
	cmd.Flags().StringSlice("include", nil, "keywords every result must mention")
	cmd.Flags().StringSlice("exclude", nil, "keywords no result may mention")
	cmd.Flags().Int("min-citations", 0, "minimum citation count")
	cmd.Flags().Int("max-results", 0, "records requested per source query")
}

func filtersFromFlags(cmd *cobra.Command) types.Filters {
	var f types.Filters
	f.YearFrom, _ = cmd.Flags().GetInt("year-from")
	f.YearTo, _ = cmd.Flags().GetInt("year-to")
	f.Categories, _ = cmd.Flags().GetStringSlice("category")
	f.Include, _ = cmd.Flags().GetStringSlice("include")
	f.Exclude, _ = cmd.Flags().GetStringSlice("exclude")
	f.MinCitations, _ = cmd.Flags().GetInt("min-citations")
	return f
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	providerFlag(cmd, &cfg)
	if sync, _ := cmd.Flags().GetBool("sync"); sync {
		cfg.Retrieval.MaxConcurrency = 1
	}
	if n, _ := cmd.Flags().GetInt("max-results"); n > 0 {
		cfg.Sources.MaxResults = n
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	noInteractive, _ := cmd.Flags().GetBool("no-interactive")
	output, _ := cmd.Flags().GetString("output")

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, logger); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	gen, err := buildGenerator(cfg, client)
	if err != nil {
		return err
	}
	coord, c, err := buildRetrieval(ctx, cfg, client)
	if err != nil {
		return err
	}
	defer c.Close()

	var arch pipeline.Archiver
	if cfg.Archive.Enabled {
		store, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			logger.Warn("session archive unavailable", zap.Error(err))
		} else {
			defer store.Close()
			arch = store
		}
	}

	stdin := bufio.NewReader(os.Stdin)
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		if noInteractive {
			return &types.ConfigurationError{Field: "topic", Reason: "must not be empty"}
		}
		topic = prompt(stdin, os.Stdout, "Research topic: ")
	}
	if !noInteractive {
		topic = clarifyTopic(ctx, gen, topic, stdin, os.Stdout)
	}

	o, err := pipeline.New(cfg, pipeline.Deps{
		Executor:  coord,
		Generator: gen,
		Archive:   arch,
		Logger:    logger,
		Progress:  os.Stderr,
	})
	if err != nil {
		return err
	}
	defer o.Close()

	fmt.Fprintf(os.Stderr, "Researching %q\n", topic)
	state, err := o.Start(ctx, topic, filtersFromFlags(cmd))
	if err != nil {
		var perr *types.PipelineError
		if errors.As(err, &perr) {
			report.WriteSummary(os.Stdout, state, 5)
		}
		return err
	}

	if output == "" {
		output = report.DefaultPath(topic)
	}
	if err := writeOutput(output, state); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Report written to %s\n", output)
	report.WriteSummary(os.Stdout, state, 5)

	if noInteractive {
		return nil
	}
	if err := o.EnterInteractive(); err != nil {
		return err
	}
	if err := interactive.Run(ctx, o, stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if arch != nil {
		if err := arch.Save(context.Background(), o.State()); err != nil {
			logger.Warn("archiving session", zap.Error(err))
		}
	}
	return nil
}

// writeOutput writes the report, the whole session for .json and .yaml, or
// the references for .bib and .csl.
func writeOutput(path string, state types.ResearchState) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml", ".bib", ".csl":
		return report.SaveState(path, state)
	}
	return report.WriteFile(path, state.Report)
}

// clarifyTopic asks clarifying questions for an ambiguous topic and returns
// the refined topic, or the original when nothing was answered.
func clarifyTopic(ctx context.Context, gen generation.Generator, topic string, in *bufio.Reader, out io.Writer) string {
	analysis := clarify.Assess(topic)
	if !clarify.NeedsClarification(analysis) {
		return topic
	}

	questions, err := clarify.Questions(ctx, gen, topic, analysis)
	if err != nil {
		logger.Debug("using fallback clarifying questions", zap.Error(err))
	}
	fmt.Fprintf(out, "The topic %q is %s in ambiguity (%s).\n", topic, analysis.Level, strings.Join(analysis.Issues, ", "))
	fmt.Fprintln(out, "Answer a few questions to focus the search, or press Enter to skip.")

	answers := make([]generation.QA, 0, len(questions))
	for i, q := range questions {
		a := prompt(in, out, fmt.Sprintf("%d. %s ", i+1, q))
		answers = append(answers, generation.QA{Question: q, Answer: a})
	}

	refined, err := clarify.Refine(ctx, gen, topic, answers)
	if err != nil {
		logger.Warn("topic refinement failed", zap.Error(err))
		return topic
	}
	if refined != topic {
		fmt.Fprintf(out, "Refined topic: %s\n", refined)
	}
	return refined
}

func prompt(in *bufio.Reader, out io.Writer, text string) string {
	fmt.Fprint(out, text)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}
