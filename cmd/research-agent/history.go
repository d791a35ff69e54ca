// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-agent/internal/archive"
	"github.com/pdiddy/research-agent/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived research sessions",
	Long: `History lists past sessions from the SQLite session archive, newest first.
Subcommands show a session, search archived papers, and prune old sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		sessions, err := store.List(context.Background(), limit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No archived sessions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tSTAGE\tPAPERS\tGAPS\tTOPIC")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				shortID(s.ID), s.StartedAt.Local().Format("2006-01-02 15:04"), s.Stage, s.Papers, s.Gaps, s.Topic)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived session summary, or save it with -o",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		state, err := store.Get(context.Background(), args[0])
		if err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			if err := writeOutput(path, state); err != nil {
				return err
			}
			fmt.Printf("Session written to %s\n", path)
			return nil
		}
		top, _ := cmd.Flags().GetInt("top")
		report.WriteSummary(os.Stdout, state, top)
		return nil
	},
}

var historyFindCmd = &cobra.Command{
	Use:   "find <text>",
	Short: "Find archived papers whose titles contain every word of text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		hits, err := store.FindPapers(context.Background(), strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println("No matching papers.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tRANK\tSCORE\tYEAR\tTITLE")
		for _, h := range hits {
			year := "-"
			if h.Year > 0 {
				year = fmt.Sprint(h.Year)
			}
			fmt.Fprintf(w, "%s\t%d\t%.3f\t%s\t%s\n", shortID(h.SessionID), h.Rank, h.Score, year, h.Title)
		}
		return w.Flush()
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete sessions started longer ago than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		if age <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		store, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.DeleteOlderThan(context.Background(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d sessions.\n", n)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum sessions to list")
	historyShowCmd.Flags().StringP("output", "o", "", "write the report (.md) or the whole session (.json, .yaml)")
	historyShowCmd.Flags().Int("top", 10, "papers to include in the summary")
	historyFindCmd.Flags().Int("limit", 20, "maximum papers to list")
	historyPruneCmd.Flags().Duration("older-than", 0, "age cutoff (e.g. 720h)")

	historyCmd.AddCommand(historyShowCmd, historyFindCmd, historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func openArchive() (*archive.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return archive.Open(cfg.Archive.Path)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
