// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package clarify grades how ambiguous a research topic is and, for
// ambiguous topics, produces clarifying questions and folds the answers
// back into a refined topic.
package clarify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/research-agent/internal/generation"
	"github.com/pdiddy/research-agent/pkg/types"
)

// broadTerms are fields too wide to search on their own.
var broadTerms = []string{
	"ai", "artificial intelligence", "machine learning", "ml", "deep learning", "dl",
	"nlp", "natural language processing", "computer vision", "cv", "robotics",
	"blockchain", "cryptocurrency", "iot", "internet of things", "big data",
	"cloud computing", "cybersecurity", "data science", "analytics",
}

// vagueWords signal an open-ended framing.
var vagueWords = []string{
	"impact", "effect", "relationship", "influence", "role", "implications",
	"applications", "potential", "future", "trends", "challenges", "opportunities",
	"benefits", "advantages", "disadvantages", "problems", "issues", "solutions",
}

var temporalWords = []string{"recent", "latest", "current"}

var domainWords = []string{
	"twitter", "facebook", "medical", "healthcare", "finance", "banking",
	"sentiment", "classification", "prediction", "detection", "recognition",
}

// Assess grades topic. Broad fields and open-ended framing raise the level;
// a time frame, a concrete domain, and length lower it.
func Assess(topic string) types.TopicAnalysis {
	lower := strings.ToLower(strings.TrimSpace(topic))
	words := strings.Fields(lower)
	wordCount := len(words)

	var issues []string
	isBroad := false
	for _, term := range broadTerms {
		if containsPhrase(words, term) {
			isBroad = true
			break
		}
	}
	if isBroad {
		issues = append(issues, "extremely broad topic")
	}

	hasVague := false
	for _, w := range vagueWords {
		if strings.Contains(lower, w) {
			hasVague = true
			issues = append(issues, w)
		}
	}

	hasTemporal := strings.IndexFunc(lower, unicode.IsDigit) >= 0 || containsAny(lower, temporalWords)
	hasDomain := containsAny(lower, domainWords)

	if !hasTemporal {
		issues = append(issues, "no temporal specification")
	}
	if wordCount <= 2 {
		issues = append(issues, "topic too brief")
	}
	if !hasDomain && wordCount < 8 {
		issues = append(issues, "lacks domain specifics")
	}

	var level types.AmbiguityLevel
	switch {
	case (isBroad && wordCount <= 3) || (hasVague && !hasTemporal && !hasDomain):
		level = types.AmbiguityHigh
	case isBroad || hasVague || (wordCount <= 4 && !hasDomain):
		level = types.AmbiguityMedium
	case wordCount >= 8 && hasTemporal && hasDomain:
		level = types.AmbiguityLow
	default:
		level = types.AmbiguityMedium
	}
	return types.TopicAnalysis{Level: level, Issues: issues}
}

// NeedsClarification reports whether questions should be asked.
func NeedsClarification(a types.TopicAnalysis) bool {
	return a.Level == types.AmbiguityMedium || a.Level == types.AmbiguityHigh
}

// containsPhrase matches a term on word boundaries, so "ai" does not match
// "chair".
func containsPhrase(words []string, phrase string) bool {
	parts := strings.Fields(phrase)
	for i := 0; i+len(parts) <= len(words); i++ {
		match := true
		for j, p := range parts {
			if strings.Trim(words[i+j], ",.;:?!()\"'") != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FallbackQuestions are asked when generation is unavailable.
func FallbackQuestions(a types.TopicAnalysis) []string {
	qs := []string{
		"What time period should this research cover?",
		"What level of technical depth are you looking for?",
	}
	if NeedsClarification(a) {
		qs = append(qs, "Are there specific applications or subfields to focus on?")
	}
	return qs
}

const maxQuestions = 5

// Questions asks the generator for clarifying questions and falls back to
// FallbackQuestions. The error explains a fallback; the questions are always
// usable.
func Questions(ctx context.Context, gen generation.Generator, topic string, a types.TopicAnalysis) ([]string, error) {
	if gen == nil {
		return FallbackQuestions(a), fmt.Errorf("no generator configured")
	}
	out, err := gen.Generate(ctx, generation.KindClarify, generation.ClarifyInput{Topic: topic, Issues: a.Issues})
	if err != nil {
		return FallbackQuestions(a), err
	}

	qs, err := parseQuestions(out)
	if err != nil || len(qs) == 0 {
		if err == nil {
			err = fmt.Errorf("no questions in response")
		}
		return FallbackQuestions(a), &types.GenerationError{Kind: string(generation.KindClarify), Reason: types.GenerationMalformedOutput, Err: err}
	}
	return qs, nil
}

// parseQuestions accepts {"questions": ["..."]} or question objects with a
// "question" field.
func parseQuestions(out string) ([]string, error) {
	var resp struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(generation.ExtractJSON(out)), &resp); err != nil {
		return nil, fmt.Errorf("decoding questions: %w", err)
	}
	var qs []string
	for _, raw := range resp.Questions {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			var obj struct {
				Question string `json:"question"`
			}
			if json.Unmarshal(raw, &obj) != nil {
				continue
			}
			s = obj.Question
		}
		if s = strings.TrimSpace(s); s != "" {
			qs = append(qs, s)
		}
		if len(qs) == maxQuestions {
			break
		}
	}
	return qs, nil
}

// Refine folds answered questions into a refined topic. Unanswered questions
// are ignored; with no answers or on failure the original topic is returned.
func Refine(ctx context.Context, gen generation.Generator, topic string, answers []generation.QA) (string, error) {
	var answered []generation.QA
	for _, qa := range answers {
		if strings.TrimSpace(qa.Answer) != "" {
			answered = append(answered, qa)
		}
	}
	if len(answered) == 0 || gen == nil {
		return topic, nil
	}

	out, err := gen.Generate(ctx, generation.KindRefine, generation.RefineInput{Topic: topic, Answers: answered})
	if err != nil {
		return topic, err
	}
	refined := strings.Trim(strings.TrimSpace(out), "\"")
	if i := strings.IndexByte(refined, '\n'); i >= 0 {
		refined = strings.TrimSpace(refined[:i])
	}
	if refined == "" {
		return topic, &types.GenerationError{Kind: string(generation.KindRefine), Reason: types.GenerationMalformedOutput}
	}
	return refined, nil
}
