// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agent/pkg/types"
)

// ResultsFile is the on-disk form of an ad-hoc search: the queries that ran,
// the ranked papers, and the failures. The researcher can save a search and
// reload it later without re-querying sources.
type ResultsFile struct {
	Queries  []types.SourceQuery `yaml:"queries"`
	Results  []types.RankedPaper `yaml:"results"`
	Failures []FailureSummary    `yaml:"failures,omitempty"`
	Summary  ResultsSummary      `yaml:"summary"`
}

// FailureSummary is the serializable form of a types.QueryFailure.
type FailureSummary struct {
	Source string `yaml:"source"`
	Query  string `yaml:"query"`
	Reason string `yaml:"reason"`
}

// ResultsSummary stores result statistics and a timestamp.
type ResultsSummary struct {
	Total     int       `yaml:"total"`
	CacheHits int       `yaml:"cache_hits"`
	Timestamp time.Time `yaml:"timestamp"`
}

// WriteResultsFile saves queries and ranked results to a YAML file.
func WriteResultsFile(path string, queries []types.SourceQuery, ranked []types.RankedPaper, failures []types.QueryFailure, cacheHits int) error {
	rf := ResultsFile{
		Queries: queries,
		Results: ranked,
		Summary: ResultsSummary{
			Total:     len(ranked),
			CacheHits: cacheHits,
			Timestamp: time.Now().UTC(),
		},
	}
	for _, f := range failures {
		rf.Failures = append(rf.Failures, FailureSummary{Source: f.Source, Query: f.Query.Text, Reason: f.Reason})
	}

	data, err := yaml.Marshal(&rf)
	if err != nil {
		return fmt.Errorf("marshaling results file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results file %s: %w", path, err)
	}
	return nil
}

// ReadResultsFile loads a results file written by WriteResultsFile.
func ReadResultsFile(path string) (*ResultsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results file %s: %w", path, err)
	}
	var rf ResultsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing results file %s: %w", path, err)
	}
	return &rf, nil
}
