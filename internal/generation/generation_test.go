// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-agent/pkg/types"
)

type fakeBackend struct {
	out    string
	err    error
	system string
	prompt string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.out, f.err
}

func TestServiceGenerate(t *testing.T) {
	b := &fakeBackend{out: "refined topic"}
	s := NewService(b, time.Second, nil)
	require.True(t, s.Available())

	out, err := s.Generate(context.Background(), KindRefine, RefineInput{
		Topic:   "ai",
		Answers: []QA{{Question: "Which domain?", Answer: "radiology"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "refined topic", out)
	assert.Contains(t, b.prompt, "ORIGINAL TOPIC: ai")
	assert.Contains(t, b.prompt, "A: radiology")
	assert.Equal(t, systemPrompts[KindRefine], b.system)
}

func TestServiceWithoutBackend(t *testing.T) {
	s := NewService(nil, 0, nil)
	assert.False(t, s.Available())
	_, err := s.Generate(context.Background(), KindPlan, PlanInput{Topic: "x"})
	var gerr *types.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, types.GenerationUnavailable, gerr.Reason)
	assert.Equal(t, "plan", gerr.Kind)
}

func TestServiceClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
		want types.GenerationReason
	}{
		{"quota", "", &StatusError{Provider: "groq", Code: 429}, types.GenerationQuota},
		{"payment", "", &StatusError{Provider: "groq", Code: 402}, types.GenerationQuota},
		{"gateway timeout", "", &StatusError{Provider: "groq", Code: 504}, types.GenerationTimeout},
		{"server error", "", &StatusError{Provider: "groq", Code: 500}, types.GenerationUnavailable},
		{"deadline", "", fmt.Errorf("calling: %w", context.DeadlineExceeded), types.GenerationTimeout},
		{"malformed", "", fmt.Errorf("%w: bad json", ErrMalformed), types.GenerationMalformedOutput},
		{"empty output", "   ", nil, types.GenerationMalformedOutput},
		{"network", "", errors.New("connection refused"), types.GenerationUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(&fakeBackend{out: tt.out, err: tt.err}, time.Second, nil)
			_, err := s.Generate(context.Background(), KindReport, ReportInput{Topic: "t"})
			var gerr *types.GenerationError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.want, gerr.Reason)
			assert.Equal(t, "report", gerr.Kind)
		})
	}
}

func TestRenderAllKinds(t *testing.T) {
	corpus := []types.RankedPaper{{PaperRecord: types.PaperRecord{Title: "Surface codes", Year: 2012, Authors: []string{"A. Fowler"}, Abstract: "Intro."}, Rank: 1}}
	gaps := []types.ResearchGap{{Description: "Limited coverage of \"photonic qubits\"", Confidence: 0.8}}
	inputs := map[Kind]any{
		KindPlan:      PlanInput{Topic: "quantum error correction", Analysis: types.TopicAnalysis{Level: types.AmbiguityMedium, Issues: []string{"no temporal specification"}}, Filters: types.Filters{YearFrom: 2020}},
		KindClarify:   ClarifyInput{Topic: "quantum error correction", Issues: []string{"topic too brief"}},
		KindRefine:    RefineInput{Topic: "quantum error correction"},
		KindRelevance: RelevanceInput{Topic: "quantum error correction", Papers: []RelevanceItem{{ID: 1, Title: "Surface codes"}}},
		KindReport:    ReportInput{Topic: "quantum error correction", Papers: corpus, Gaps: gaps, RawCount: 9},
		KindAnswer:    AnswerInput{Topic: "quantum error correction", Question: "What is a surface code?", Papers: corpus, Gaps: gaps},
	}
	for kind, in := range inputs {
		t.Run(string(kind), func(t *testing.T) {
			out, err := Render(kind, in)
			require.NoError(t, err)
			assert.Contains(t, out, "quantum error correction")
			assert.NotEmpty(t, systemPrompts[kind])
		})
	}

	out, err := Render(KindReport, inputs[KindReport])
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Surface codes (2012) by A. Fowler")
	assert.Contains(t, out, "confidence 80%")

	out, err = Render(KindPlan, inputs[KindPlan])
	require.NoError(t, err)
	assert.Contains(t, out, "PUBLISHED FROM: 2020")

	_, err = Render("unknown", nil)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here is the plan:\n{\"a\":{\"b\":2}}\nHope this helps.", `{"a":{"b":2}}`},
		{"array", "result: [1,2]", `[1,2]`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestClaudeBackend(t *testing.T) {
	var got claudeRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "claude-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"content":[{"type":"text","text":"Hello "},{"type":"tool_use"},{"type":"text","text":"world"}]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	b := &ClaudeBackend{APIKey: "claude-key", Model: "claude-sonnet-4-5", Client: ts.Client()}
	out, err := b.Complete(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)
	assert.Equal(t, "system text", got.System)
	assert.Equal(t, 4096, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user text", got.Messages[0].Content)
}

func TestClaudeBackendErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"slow down"}`)
			return
		}
		fmt.Fprint(w, `{"content":[]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	b := &ClaudeBackend{APIKey: "k", Client: ts.Client()}
	_, err := b.Complete(context.Background(), "", "p")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 429, se.Code)

	status = http.StatusOK
	_, err = b.Complete(context.Background(), "", "p")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOpenAIBackend(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"llama","choices":[{"index":0,"message":{"role":"assistant","content":"{\"questions\":[]}"},"finish_reason":"stop"}]}`)
	}))
	defer ts.Close()

	b := NewOpenAIBackend(types.AIConfig{Provider: types.ProviderGroq, Model: "llama-3.3-70b-versatile", APIKey: "groq-key", BaseURL: ts.URL, MaxTokens: 256}, ts.Client())
	assert.Equal(t, "groq", b.Name())

	out, err := b.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"questions":[]}`, out)
	assert.Equal(t, "llama-3.3-70b-versatile", got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAIBackendStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limit reached","type":"rate_limit","code":"rate_limit_exceeded"}}`)
	}))
	defer ts.Close()

	b := NewOpenAIBackend(types.AIConfig{Provider: types.ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "k", BaseURL: ts.URL}, ts.Client())
	s := NewService(b, time.Second, nil)
	_, err := s.Generate(context.Background(), KindAnswer, AnswerInput{Topic: "t", Question: "q"})
	var gerr *types.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, types.GenerationQuota, gerr.Reason)
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(types.AIConfig{Provider: types.ProviderNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = NewBackend(types.AIConfig{Provider: types.ProviderAnthropic, APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", b.Name())

	b, err = NewBackend(types.AIConfig{Provider: types.ProviderGroq, APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "groq", b.Name())

	_, err = NewBackend(types.AIConfig{Provider: "mystery"}, nil)
	var cerr *types.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

type scriptedGenerator struct {
	outputs []string
	err     error
	calls   int
}

func (g *scriptedGenerator) Generate(_ context.Context, _ Kind, _ any) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	out := g.outputs[0]
	g.outputs = g.outputs[1:]
	return out, nil
}

func TestAssistedScorer(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"```json\n{\"scores\":[{\"id\":1,\"score\":0.9},{\"id\":2,\"score\":1.7},{\"id\":9,\"score\":0.5}]}\n```"}}
	records := []types.PaperRecord{
		{Title: "Surface codes", Authors: []string{"A. Fowler"}},
		{Title: "Protein folding", Authors: []string{"J. Jumper"}},
		{Title: "Unscored", Authors: []string{"X. Y"}},
	}

	s := NewAssistedScorer(gen, nil, nil)
	require.NoError(t, s.Prime(context.Background(), "quantum error correction", records))
	assert.Equal(t, 0.9, s.Score(records[0], "quantum error correction"))
	assert.Equal(t, 1.0, s.Score(records[1], "quantum error correction"), "scores are clamped")
	assert.Equal(t, 0.0, s.Score(records[2], "quantum error correction"), "unrated papers use the keyword fallback")
	assert.Equal(t, 0.0, s.Score(records[0], "protein"), "other queries use the keyword fallback")
}

func TestAssistedScorerFallsBackOnFailure(t *testing.T) {
	gen := &scriptedGenerator{err: &types.GenerationError{Kind: "relevance", Reason: types.GenerationQuota}}
	records := make([]types.PaperRecord, 45)
	for i := range records {
		records[i] = types.PaperRecord{Title: fmt.Sprintf("quantum paper %d", i)}
	}
	s := NewAssistedScorer(gen, nil, nil)
	err := s.Prime(context.Background(), "quantum", records)
	assert.Error(t, err)
	assert.Equal(t, 3, gen.calls, "one request per batch of 20")
	assert.InDelta(t, 1.0, s.Score(records[0], "quantum"), 1e-9)
}

func TestAssistedScorerKeepsSameTitleRecordsApart(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{`{"scores":[{"id":1,"score":0.9},{"id":2,"score":0.2}]}`}}
	records := []types.PaperRecord{
		{Title: "Deep Learning", URL: "https://nature.com/articles/nature14539", Source: "web"},
		{Title: "Deep Learning", URL: "https://example.org/course-notes", Source: "web"},
	}
	require.Equal(t, records[0].Key(), records[1].Key())

	s := NewAssistedScorer(gen, nil, nil)
	require.NoError(t, s.Prime(context.Background(), "deep learning", records))
	assert.Equal(t, 0.9, s.Score(records[0], "deep learning"))
	assert.Equal(t, 0.2, s.Score(records[1], "deep learning"))
}
