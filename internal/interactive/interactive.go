// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package interactive is the line-oriented command loop over a completed
// research session.
package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/pkg/types"
)

const defaultPapers = 10

// Session is the part of the orchestrator the loop drives.
type Session interface {
	Papers(n int) []types.RankedPaper
	Gaps() []types.ResearchGap
	Search(ctx context.Context, text string) (int, error)
	Ask(ctx context.Context, question string) (string, error)
	Summary(w io.Writer, n int)
	Save(path string) error
}

// Run reads commands from in until quit, end of input, or ctx is done.
func Run(ctx context.Context, s Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Interactive mode. Type 'help' for commands, 'quit' to leave.")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "research> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if done := dispatch(ctx, s, line, out); done {
			return nil
		}
	}
	return scanner.Err()
}

// dispatch runs one command line and reports whether the loop should end.
func dispatch(ctx context.Context, s Session, line string, out io.Writer) bool {
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(command) {
	case "quit", "exit", "q":
		fmt.Fprintln(out, "Goodbye.")
		return true

	case "help", "h", "?":
		showHelp(out)

	case "papers":
		n := defaultPapers
		if rest != "" {
			v, err := strconv.Atoi(rest)
			if err != nil || v <= 0 {
				fmt.Fprintf(out, "usage: papers [count]\n")
				return false
			}
			n = v
		}
		search.FormatTable(s.Papers(n), out)

	case "gaps":
		showGaps(s.Gaps(), out)

	case "search":
		if rest == "" {
			fmt.Fprintln(out, "usage: search <query>")
			return false
		}
		added, err := s.Search(ctx, rest)
		if err != nil {
			fmt.Fprintf(out, "search failed: %v\n", err)
			return false
		}
		if added == 0 {
			fmt.Fprintln(out, "No new papers found.")
			return false
		}
		fmt.Fprintf(out, "Added %d new papers. Type 'papers' to see the updated ranking.\n", added)

	case "save":
		if err := s.Save(rest); err != nil {
			fmt.Fprintf(out, "save failed: %v\n", err)
			return false
		}
		if rest == "" {
			fmt.Fprintln(out, "Session saved.")
		} else {
			fmt.Fprintf(out, "Session saved to %s.\n", rest)
		}

	case "summary":
		s.Summary(out, 5)

	default:
		answer, err := s.Ask(ctx, line)
		if answer != "" {
			fmt.Fprintln(out, answer)
		}
		if err != nil {
			var gerr *types.GenerationError
			if errors.As(err, &gerr) {
				fmt.Fprintf(out, "(answer generation unavailable: %s)\n", gerr.Reason)
			} else {
				fmt.Fprintf(out, "question failed: %v\n", err)
			}
		}
	}
	return false
}

func showGaps(gaps []types.ResearchGap, out io.Writer) {
	if len(gaps) == 0 {
		fmt.Fprintln(out, "No research gaps identified.")
		return
	}
	for i, g := range gaps {
		fmt.Fprintf(out, "%d. %s (confidence %.0f%%)\n", i+1, g.Description, g.Confidence*100)
		if len(g.RelatedTerms) > 0 {
			fmt.Fprintf(out, "   terms: %s\n", strings.Join(g.RelatedTerms, ", "))
		}
	}
}

func showHelp(out io.Writer) {
	fmt.Fprint(out, `Commands:
  papers [n]       list the top n ranked papers (default 10)
  gaps             list identified research gaps
  search <query>   search every source and merge new papers
  save [path]      save the session (.md, .json, .yaml, .bib, .csl)
  summary          print the session summary
  help             show this help
  quit, exit       leave interactive mode

Anything else is answered as a question about the gathered papers.
`)
}
