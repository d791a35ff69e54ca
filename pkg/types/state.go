// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Stage is a pipeline state.
type Stage string

const (
	StageInitialized Stage = "initialized"
	StagePlanning    Stage = "planning"
	StageRetrieving  Stage = "retrieving"
	StageRanking     Stage = "ranking"
	StageGapAnalysis Stage = "gap_analysis"
	StageReporting   Stage = "reporting"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
	StageInteractive Stage = "interactive"
)

// Terminal reports whether no further automatic transition follows s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// SourceHint tells planning which family of sources a query targets.
type SourceHint string

const (
	HintPreprint  SourceHint = "preprint"
	HintScholarly SourceHint = "scholarly"
	HintWeb       SourceHint = "web"
	HintAny       SourceHint = "any"
)

// Valid reports whether h is a known hint.
func (h SourceHint) Valid() bool {
	switch h {
	case HintPreprint, HintScholarly, HintWeb, HintAny:
		return true
	}
	return false
}

// PlannedQuery is one query in a research plan.
type PlannedQuery struct {
	Text       string     `json:"query" yaml:"query"`
	SourceHint SourceHint `json:"source_hint" yaml:"source_hint"`
	Purpose    string     `json:"purpose,omitempty" yaml:"purpose,omitempty"`
}

// ResearchPlan is produced once by planning and read-only afterwards.
type ResearchPlan struct {
	Queries         []PlannedQuery `json:"queries" yaml:"queries"`
	Summary         string         `json:"summary" yaml:"summary"`
	Objectives      string         `json:"objectives" yaml:"objectives"`
	Methodology     string         `json:"methodology" yaml:"methodology"`
	ExpectedOutputs string         `json:"expected_outputs" yaml:"expected_outputs"`

	// Fallback is set when the plan came from the built-in template.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// ResearchGap describes an underexplored area of the plan.
type ResearchGap struct {
	Description  string   `json:"description" yaml:"description"`
	RelatedTerms []string `json:"related_terms" yaml:"related_terms"`
	Confidence   float64  `json:"confidence" yaml:"confidence"`
	// Queries lists the plan queries clustered into this gap.
	Queries []string `json:"queries,omitempty" yaml:"queries,omitempty"`
}

// AmbiguityLevel grades how underspecified a topic is.
type AmbiguityLevel string

const (
	AmbiguityLow    AmbiguityLevel = "low"
	AmbiguityMedium AmbiguityLevel = "medium"
	AmbiguityHigh   AmbiguityLevel = "high"
)

// TopicAnalysis is the result of assessing a topic before planning.
type TopicAnalysis struct {
	Level  AmbiguityLevel `json:"level" yaml:"level"`
	Issues []string       `json:"issues,omitempty" yaml:"issues,omitempty"`
	Terms  []string       `json:"terms,omitempty" yaml:"terms,omitempty"`
}

// LogKind classifies ErrorLog entries.
type LogKind string

const (
	LogTransition LogKind = "transition"
	LogSource     LogKind = "source_failure"
	LogGeneration LogKind = "generation_failure"
	LogFallback   LogKind = "fallback"
	LogInfo       LogKind = "info"
)

// LogEntry is one record in a session's error log.
type LogEntry struct {
	Time    time.Time `json:"time" yaml:"time"`
	Stage   Stage     `json:"stage" yaml:"stage"`
	Kind    LogKind   `json:"kind" yaml:"kind"`
	Source  string    `json:"source,omitempty" yaml:"source,omitempty"`
	Message string    `json:"message" yaml:"message"`
}

// ResearchState is the whole of a session. The orchestrator owns it; other
// components receive slices of it and return new values.
type ResearchState struct {
	ID              string        `json:"id" yaml:"id"`
	Topic           string        `json:"topic" yaml:"topic"`
	Filters         Filters       `json:"filters,omitempty" yaml:"filters,omitempty"`
	Analysis        TopicAnalysis `json:"analysis" yaml:"analysis"`
	Plan            ResearchPlan  `json:"plan" yaml:"plan"`
	RawRecords      []PaperRecord `json:"raw_records" yaml:"raw_records"`
	Corpus          []RankedPaper `json:"corpus" yaml:"corpus"`
	Gaps            []ResearchGap `json:"gaps" yaml:"gaps"`
	Report          string        `json:"report" yaml:"report"`
	ReportTemplated bool          `json:"report_templated,omitempty" yaml:"report_templated,omitempty"`
	Stage           Stage         `json:"stage" yaml:"stage"`
	FailureReason   string        `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	ErrorLog        []LogEntry    `json:"error_log" yaml:"error_log"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	CompletedAt     time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Warnings returns the failure and fallback log entries.
func (s ResearchState) Warnings() []LogEntry {
	var out []LogEntry
	for _, e := range s.ErrorLog {
		if e.Kind != LogTransition && e.Kind != LogInfo {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a copy whose slices are not shared with s.
func (s ResearchState) Clone() ResearchState {
	out := s
	out.RawRecords = append([]PaperRecord(nil), s.RawRecords...)
	out.Corpus = append([]RankedPaper(nil), s.Corpus...)
	out.Gaps = append([]ResearchGap(nil), s.Gaps...)
	out.ErrorLog = append([]LogEntry(nil), s.ErrorLog...)
	out.Plan.Queries = append([]PlannedQuery(nil), s.Plan.Queries...)
	return out
}
