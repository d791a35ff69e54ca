// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-agent/internal/rank"
	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search sources for papers without running a full session",
	Long: `Search sends one query to each selected source, deduplicates the results,
and ranks them by relevance, citations, and recency. No plan, gap analysis, or
report is produced. Results go through the same cache as research sessions.
With --from, a results file saved by -o is printed again without querying.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if from, _ := cmd.Flags().GetString("from"); from != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSlice("sources", nil, "sources to query (default: all enabled)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().StringP("output", "o", "", "also save queries and results to a YAML file")
	searchCmd.Flags().Bool("sync", false, "query sources one at a time")
	searchCmd.Flags().String("from", "", "print a results file saved with -o instead of querying")
	addFilterFlags(searchCmd)

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		return printResultsFile(cmd, from)
	}

	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return &types.ConfigurationError{Field: "query", Reason: "must not be empty"}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sync, _ := cmd.Flags().GetBool("sync"); sync {
		cfg.Retrieval.MaxConcurrency = 1
	}
	if n, _ := cmd.Flags().GetInt("max-results"); n > 0 {
		cfg.Sources.MaxResults = n
	}
	// Generation is never used here; skip its credential check.
	cfg.Generation.Provider = types.ProviderNone
	if err := cfg.Validate(); err != nil {
		return err
	}
	filters := filtersFromFlags(cmd)
	if err := filters.Validate(); err != nil {
		return err
	}

	coord, c, err := buildRetrieval(ctx, cfg, &http.Client{Timeout: cfg.HTTP.Timeout})
	if err != nil {
		return err
	}
	defer c.Close()

	sources := coord.Sources()
	if want, _ := cmd.Flags().GetStringSlice("sources"); len(want) > 0 {
		sources, err = selectSources(sources, want)
		if err != nil {
			return err
		}
	}

	queries := make([]types.SourceQuery, 0, len(sources))
	for _, s := range sources {
		queries = append(queries, types.SourceQuery{
			Text:       text,
			Source:     s,
			Filters:    filters.Canonical(),
			MaxResults: cfg.Sources.MaxResults,
		})
	}

	batch := coord.Execute(ctx, queries)
	for _, f := range batch.Failures {
		fmt.Fprintf(os.Stderr, "warning: %s failed (%s): %v\n", f.Source, f.Reason, f.Err)
	}

	ranked := rank.NewEngine(cfg.Ranking, nil, time.Now().Year()).Rank(batch.Records, text)

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := search.WriteResultsFile(path, queries, ranked, batch.Failures, batch.CacheHits); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Results saved to %s\n", path)
	}

	if done, err := printRanked(cmd, ranked); done {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d papers from %d sources (%d cached, %d failed)\n",
		len(ranked), len(sources), batch.CacheHits, len(batch.Failures))
	return nil
}

// printRanked writes ranked as JSON or a table. It reports true when
// nothing more should be printed.
func printRanked(cmd *cobra.Command, ranked []types.RankedPaper) (bool, error) {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return true, search.FormatJSON(ranked, os.Stdout)
	}
	if len(ranked) == 0 {
		fmt.Fprintln(os.Stdout, "No papers found.")
		return true, nil
	}
	search.FormatTable(ranked, os.Stdout)
	return false, nil
}

func printResultsFile(cmd *cobra.Command, path string) error {
	rf, err := search.ReadResultsFile(path)
	if err != nil {
		return err
	}
	for _, f := range rf.Failures {
		fmt.Fprintf(os.Stderr, "warning: %s failed (%s) for %q\n", f.Source, f.Reason, f.Query)
	}
	if done, err := printRanked(cmd, rf.Results); done {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d papers saved %s (%d queries, %d cached)\n",
		rf.Summary.Total, rf.Summary.Timestamp.Local().Format("2006-01-02 15:04"), len(rf.Queries), rf.Summary.CacheHits)
	return nil
}

// selectSources keeps the requested sources in enabled order and rejects
// names that are not enabled.
func selectSources(enabled, want []string) ([]string, error) {
	wanted := make(map[string]bool, len(want))
	for _, w := range want {
		wanted[strings.ToLower(strings.TrimSpace(w))] = true
	}
	var out []string
	for _, s := range enabled {
		if wanted[s] {
			out = append(out, s)
			delete(wanted, s)
		}
	}
	for w := range wanted {
		return nil, &types.ConfigurationError{
			Field:  "sources",
			Reason: fmt.Sprintf("%q is not an enabled source (enabled: %s)", w, strings.Join(enabled, ", ")),
		}
	}
	return out, nil
}
