// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package interactive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-agent/pkg/types"
)

type fakeSession struct {
	papers    []types.RankedPaper
	gaps      []types.ResearchGap
	searches  []string
	questions []string
	saved     []string
	papersN   int
	addResult int
	askErr    error
	saveErr   error
}

func (f *fakeSession) Papers(n int) []types.RankedPaper {
	f.papersN = n
	if n < len(f.papers) {
		return f.papers[:n]
	}
	return f.papers
}

func (f *fakeSession) Gaps() []types.ResearchGap { return f.gaps }

func (f *fakeSession) Search(_ context.Context, text string) (int, error) {
	f.searches = append(f.searches, text)
	return f.addResult, nil
}

func (f *fakeSession) Ask(_ context.Context, q string) (string, error) {
	f.questions = append(f.questions, q)
	return "answer to " + q, f.askErr
}

func (f *fakeSession) Summary(w io.Writer, n int) {
	fmt.Fprintf(w, "summary of %d\n", n)
}

func (f *fakeSession) Save(path string) error {
	f.saved = append(f.saved, path)
	return f.saveErr
}

func newSession() *fakeSession {
	return &fakeSession{
		papers: []types.RankedPaper{
			{PaperRecord: types.PaperRecord{Title: "Surface codes", Year: 2012, Source: "arxiv"}, Rank: 1, CompositeScore: 0.9},
			{PaperRecord: types.PaperRecord{Title: "Stabilizer codes", Year: 1997, Source: "semantic_scholar"}, Rank: 2, CompositeScore: 0.7},
		},
		gaps: []types.ResearchGap{
			{Description: `Limited coverage of "photonic qubits"`, Confidence: 0.75, RelatedTerms: []string{"photon", "qubit"}},
		},
	}
}

func run(t *testing.T, s Session, input string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), s, strings.NewReader(input), &out))
	return out.String()
}

func TestRunCommands(t *testing.T) {
	s := newSession()
	s.addResult = 3
	out := run(t, s, strings.Join([]string{
		"papers 1",
		"gaps",
		"search  neural decoders ",
		"save out/report.md",
		"summary",
		"",
		"What are the main decoders?",
		"quit",
		"papers",
	}, "\n"))

	assert.Equal(t, 1, s.papersN)
	assert.Contains(t, out, "Surface codes")
	assert.Contains(t, out, `1. Limited coverage of "photonic qubits" (confidence 75%)`)
	assert.Contains(t, out, "terms: photon, qubit")
	assert.Equal(t, []string{"neural decoders"}, s.searches)
	assert.Contains(t, out, "Added 3 new papers.")
	assert.Equal(t, []string{"out/report.md"}, s.saved)
	assert.Contains(t, out, "Session saved to out/report.md.")
	assert.Contains(t, out, "summary of 5")
	assert.Equal(t, []string{"What are the main decoders?"}, s.questions)
	assert.Contains(t, out, "answer to What are the main decoders?")
	assert.Contains(t, out, "Goodbye.")
	assert.Equal(t, 1, s.papersN, "commands after quit are not run")
}

func TestRunEndsAtEOF(t *testing.T) {
	s := newSession()
	out := run(t, s, "papers\n")
	assert.Equal(t, defaultPapers, s.papersN)
	assert.NotContains(t, out, "Goodbye.")
}

func TestRunUsageAndErrors(t *testing.T) {
	s := newSession()
	s.saveErr = errors.New("disk full")
	s.askErr = &types.GenerationError{Kind: "answer", Reason: types.GenerationQuota}

	out := run(t, s, "papers many\nsearch\nsave\nhow?\nhelp\nexit\n")
	assert.Contains(t, out, "usage: papers [count]")
	assert.Contains(t, out, "usage: search <query>")
	assert.Empty(t, s.searches)
	assert.Contains(t, out, "save failed: disk full")
	assert.Contains(t, out, "answer to how?")
	assert.Contains(t, out, "(answer generation unavailable: quota)")
	assert.Contains(t, out, "search <query>   search every source")
}

func TestRunNoNewPapers(t *testing.T) {
	s := newSession()
	out := run(t, s, "search nothing\nq\n")
	assert.Contains(t, out, "No new papers found.")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, newSession(), strings.NewReader("papers\n"), io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}
