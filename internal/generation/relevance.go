// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/internal/rank"
	"github.com/pdiddy/research-agent/pkg/types"
)

// relevanceBatch is the number of papers rated per request.
const relevanceBatch = 20

// AssistedScorer rates relevance to the session topic with the model and
// falls back to another scorer for any paper or query the model did not
// rate. Prime must run before ranking.
type AssistedScorer struct {
	gen      Generator
	fallback rank.Scorer
	logger   *zap.Logger

	mu     sync.RWMutex
	topic  string
	scores map[string]float64
}

// NewAssistedScorer returns a scorer backed by gen.
func NewAssistedScorer(gen Generator, fallback rank.Scorer, logger *zap.Logger) *AssistedScorer {
	if fallback == nil {
		fallback = rank.NewKeywordScorer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistedScorer{gen: gen, fallback: fallback, logger: logger, scores: make(map[string]float64)}
}

type relevanceResponse struct {
	Scores []struct {
		ID    int     `json:"id"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// Prime rates records against topic. A failed batch leaves its papers to the
// fallback scorer; the first failure is returned after all batches ran.
func (a *AssistedScorer) Prime(ctx context.Context, topic string, records []types.PaperRecord) error {
	a.mu.Lock()
	if a.topic != topic {
		a.topic = topic
		a.scores = make(map[string]float64)
	}
	a.mu.Unlock()

	var firstErr error
	for start := 0; start < len(records); start += relevanceBatch {
		end := start + relevanceBatch
		if end > len(records) {
			end = len(records)
		}
		if err := a.primeBatch(ctx, topic, records[start:end]); err != nil {
			a.logger.Debug("relevance batch failed", zap.Int("offset", start), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (a *AssistedScorer) primeBatch(ctx context.Context, topic string, batch []types.PaperRecord) error {
	in := RelevanceInput{Topic: topic}
	for i, r := range batch {
		in.Papers = append(in.Papers, RelevanceItem{ID: i + 1, Title: r.Title, Abstract: r.Abstract})
	}
	out, err := a.gen.Generate(ctx, KindRelevance, in)
	if err != nil {
		return err
	}

	var resp relevanceResponse
	if err := json.Unmarshal([]byte(ExtractJSON(out)), &resp); err != nil {
		return &types.GenerationError{Kind: string(KindRelevance), Reason: types.GenerationMalformedOutput, Err: fmt.Errorf("parsing relevance scores: %w", err)}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range resp.Scores {
		if s.ID < 1 || s.ID > len(batch) {
			continue
		}
		a.scores[scoreKey(batch[s.ID-1])] = rank.Clamp(s.Score)
	}
	return nil
}

// Score returns the model's rating when query is the primed topic and the
// paper was rated; otherwise the fallback score.
func (a *AssistedScorer) Score(p types.PaperRecord, query string) float64 {
	a.mu.RLock()
	s, ok := a.scores[scoreKey(p)]
	same := query == a.topic
	a.mu.RUnlock()
	if ok && same {
		return s
	}
	return a.fallback.Score(p, query)
}

// scoreKey tells apart papers that dedup kept separate even though they
// share an identity key, such as surname-less records with different URLs.
func scoreKey(p types.PaperRecord) string {
	return p.Key() + "|" + p.NormalizedURL() + "|" + p.Source + ":" + p.SourceID
}
