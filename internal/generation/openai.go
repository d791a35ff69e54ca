// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/research-agent/pkg/types"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIBackend calls any OpenAI-compatible chat completions API. Groq is
// the default provider.
type OpenAIBackend struct {
	client    *openai.Client
	provider  string
	model     string
	maxTokens int
}

// NewOpenAIBackend configures the client for cfg.Provider, honoring
// cfg.BaseURL when set.
func NewOpenAIBackend(cfg types.AIConfig, httpClient *http.Client) *OpenAIBackend {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Provider == types.ProviderGroq {
		oc.BaseURL = groqBaseURL
	}
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	provider := string(cfg.Provider)
	if provider == "" {
		provider = string(types.ProviderOpenAI)
	}
	return &OpenAIBackend{
		client:    openai.NewClientWithConfig(oc),
		provider:  provider,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Name returns the provider name.
func (o *OpenAIBackend) Name() string { return o.provider }

// Complete sends a system and a user message and returns the first choice.
func (o *OpenAIBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: o.maxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Provider: o.provider, Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			return "", &StatusError{Provider: o.provider, Code: reqErr.HTTPStatusCode, Body: reqErr.Error()}
		}
		return "", fmt.Errorf("calling %s API: %w", o.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", ErrMalformed, o.provider)
	}
	return resp.Choices[0].Message.Content, nil
}
