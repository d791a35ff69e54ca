// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// SourceErrorKind classifies adapter failures.
type SourceErrorKind string

const (
	SourceTimeout         SourceErrorKind = "timeout"
	SourceRateLimited     SourceErrorKind = "rate_limited"
	SourceInvalidResponse SourceErrorKind = "invalid_response"
)

// SourceError is returned by source adapters. It is retryable and never
// fatal to a pipeline run.
type SourceError struct {
	Source string
	Kind   SourceErrorKind
	// Wait is the server-requested delay before retrying (rate_limited only).
	Wait time.Duration
	Err  error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Kind)
}

func (e *SourceError) Unwrap() error { return e.Err }

// RetryAfter returns the server-requested delay, zero when none was given.
func (e *SourceError) RetryAfter() time.Duration { return e.Wait }

// GenerationReason classifies text-generation failures.
type GenerationReason string

const (
	GenerationQuota           GenerationReason = "quota"
	GenerationTimeout         GenerationReason = "timeout"
	GenerationMalformedOutput GenerationReason = "malformed_output"
	GenerationUnavailable     GenerationReason = "unavailable"
)

// GenerationError is returned by the text-generation collaborator. Every
// call site has a deterministic fallback, so it is never fatal.
type GenerationError struct {
	Kind   string
	Reason GenerationReason
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation %s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation %s: %s", e.Kind, e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PipelineError terminates a run in the Failed stage.
type PipelineError struct {
	Stage  Stage
	Reason string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed during %s: %s", e.Stage, e.Reason)
}

// ConfigurationError reports invalid settings detected before a run starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
