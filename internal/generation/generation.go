// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generation is the text-generation collaborator. Callers ask for a
// kind of output (plan, clarifying questions, report, answer) with a typed
// input; the service renders the prompt, calls the configured backend, and
// reports every failure as a *types.GenerationError so each call site can
// fall back to its deterministic template.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/metrics"
	"github.com/pdiddy/research-agent/pkg/types"
)

// Kind names a generation request.
type Kind string

const (
	KindPlan      Kind = "plan"
	KindClarify   Kind = "clarify"
	KindRefine    Kind = "refine"
	KindRelevance Kind = "relevance"
	KindReport    Kind = "report"
	KindAnswer    Kind = "answer"
)

// Backend sends one prompt to a model and returns the raw completion.
type Backend interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Generator is what the pipeline, planner, and interactive session depend
// on.
type Generator interface {
	Generate(ctx context.Context, kind Kind, input any) (string, error)
}

// StatusError is a non-200 response from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.Code, e.Body)
}

// ErrMalformed marks a response that could not be parsed.
var ErrMalformed = errors.New("malformed model output")

// Service renders prompts and calls a backend.
type Service struct {
	backend Backend
	timeout time.Duration
	logger  *zap.Logger
}

// NewService wraps backend. A nil backend makes every call fail as
// unavailable, which drives callers onto their fallbacks.
func NewService(backend Backend, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, timeout: timeout, logger: logger}
}

// Available reports whether a backend is configured.
func (s *Service) Available() bool { return s.backend != nil }

// Generate renders the prompt for kind and returns the model's output.
func (s *Service) Generate(ctx context.Context, kind Kind, input any) (string, error) {
	if s.backend == nil {
		metrics.GenerationCalls.WithLabelValues(string(kind), string(types.GenerationUnavailable)).Inc()
		return "", &types.GenerationError{Kind: string(kind), Reason: types.GenerationUnavailable, Err: errors.New("no generation provider configured")}
	}

	prompt, err := Render(kind, input)
	if err != nil {
		return "", &types.GenerationError{Kind: string(kind), Reason: types.GenerationMalformedOutput, Err: err}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.backend.Complete(ctx, systemPrompts[kind], prompt)
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("%w: empty completion", ErrMalformed)
	}
	if err != nil {
		gerr := classify(kind, err)
		metrics.GenerationCalls.WithLabelValues(string(kind), string(gerr.Reason)).Inc()
		s.logger.Warn("generation failed",
			zap.String("kind", string(kind)),
			zap.String("backend", s.backend.Name()),
			zap.String("reason", string(gerr.Reason)),
			zap.Error(err))
		return "", gerr
	}

	metrics.GenerationCalls.WithLabelValues(string(kind), "ok").Inc()
	s.logger.Debug("generation complete",
		zap.String("kind", string(kind)),
		zap.String("backend", s.backend.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(out)))
	return out, nil
}

// classify maps a backend error onto a GenerationError reason.
func classify(kind Kind, err error) *types.GenerationError {
	var gerr *types.GenerationError
	if errors.As(err, &gerr) {
		return gerr
	}
	out := &types.GenerationError{Kind: string(kind), Reason: types.GenerationUnavailable, Err: err}

	var se *StatusError
	var ne net.Error
	switch {
	case errors.Is(err, ErrMalformed):
		out.Reason = types.GenerationMalformedOutput
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		out.Reason = types.GenerationTimeout
	case errors.As(err, &se):
		switch se.Code {
		case http.StatusTooManyRequests, http.StatusPaymentRequired:
			out.Reason = types.GenerationQuota
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			out.Reason = types.GenerationTimeout
		}
	}
	return out
}

// ExtractJSON returns the JSON object or array embedded in a completion,
// stripping Markdown code fences and surrounding prose.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	open := strings.IndexAny(s, "{[")
	if open < 0 {
		return s
	}
	closer := byte('}')
	if s[open] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < open {
		return s[open:]
	}
	return s[open : end+1]
}

// NewBackend builds the backend for the configured provider. ProviderNone
// returns a nil backend.
func NewBackend(cfg types.AIConfig, client *http.Client) (Backend, error) {
	switch cfg.Provider {
	case types.ProviderNone, "":
		return nil, nil
	case types.ProviderAnthropic:
		return &ClaudeBackend{APIKey: cfg.APIKey, Model: cfg.Model, MaxTokens: cfg.MaxTokens, Client: client}, nil
	case types.ProviderGroq, types.ProviderOpenAI:
		return NewOpenAIBackend(cfg, client), nil
	}
	return nil, &types.ConfigurationError{Field: "generation.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
}
