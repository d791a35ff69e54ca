// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval dispatches batches of source queries concurrently. Each
// query is answered from the cache when possible; otherwise it passes a
// per-source rate limiter and a global concurrency gate, is merged with any
// identical in-flight query, and is retried under the shared retry policy.
// Individual failures never abort a batch.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/pdiddy/research-agent/internal/cache"
	"github.com/pdiddy/research-agent/internal/metrics"
	"github.com/pdiddy/research-agent/internal/retry"
	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/pkg/types"
)

// Options configures a Coordinator.
type Options struct {
	// MaxConcurrency caps adapter calls in flight across all sources.
	MaxConcurrency int
	// QueryTimeout bounds each adapter attempt.
	QueryTimeout time.Duration
	// BatchDeadline bounds a whole Execute call (0 = only ctx bounds it).
	BatchDeadline time.Duration
	// RatePerSecond and Burst configure one limiter per source
	// (RatePerSecond 0 = unlimited).
	RatePerSecond float64
	Burst         int
	Retry         retry.Policy
	// CacheTTL is the TTL given to stored results (0 = cache default).
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// OptionsFromConfig converts the configured retrieval settings.
func OptionsFromConfig(cfg types.RetrievalConfig, cacheTTL time.Duration, logger *zap.Logger) Options {
	return Options{
		MaxConcurrency: cfg.MaxConcurrency,
		QueryTimeout:   cfg.QueryTimeout,
		BatchDeadline:  cfg.BatchDeadline,
		RatePerSecond:  cfg.RatePerSecond,
		Burst:          cfg.Burst,
		Retry:          retry.FromConfig(cfg.Retry),
		CacheTTL:       cacheTTL,
		Logger:         logger,
	}
}

// Batch is the result of one Execute call. Records are in batch order:
// by query index, then in the order the adapter returned them.
type Batch struct {
	Records   []types.PaperRecord
	Failures  []types.QueryFailure
	CacheHits int
}

// Coordinator is safe for concurrent use; concurrent batches share the
// concurrency gate, limiters, and in-flight merging.
type Coordinator struct {
	adapters map[string]search.Adapter
	order    []string
	cache    *cache.Cache
	sem      *semaphore.Weighted
	limiters map[string]*rate.Limiter
	flight   singleflight.Group
	opts     Options
	logger   *zap.Logger
}

// New creates a coordinator over adapters. c may be nil to disable caching.
func New(adapters []search.Adapter, c *cache.Cache, opts Options) *Coordinator {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	co := &Coordinator{
		adapters: make(map[string]search.Adapter, len(adapters)),
		cache:    c,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		limiters: make(map[string]*rate.Limiter, len(adapters)),
		opts:     opts,
		logger:   logger,
	}
	for _, a := range adapters {
		name := a.Name()
		co.adapters[name] = a
		co.order = append(co.order, name)
		limit := rate.Inf
		if opts.RatePerSecond > 0 {
			limit = rate.Limit(opts.RatePerSecond)
		}
		co.limiters[name] = rate.NewLimiter(limit, opts.Burst)
	}
	return co
}

// Sources returns the adapter names in registration order.
func (c *Coordinator) Sources() []string {
	return append([]string(nil), c.order...)
}

// slot holds the outcome of one query in the batch.
type slot struct {
	records  []types.PaperRecord
	failure  *types.QueryFailure
	cacheHit bool
	done     bool
}

type outcome struct {
	index    int
	records  []types.PaperRecord
	cacheHit bool
	err      error
}

// Execute runs every query in the batch and returns the merged records and
// the failures. It returns when all queries have finished or the batch
// deadline passes; queries still pending at the deadline are recorded as
// timeouts and their late results are discarded.
func (c *Coordinator) Execute(ctx context.Context, queries []types.SourceQuery) Batch {
	var cancel context.CancelFunc
	if c.opts.BatchDeadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.opts.BatchDeadline)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	slots := make([]slot, len(queries))
	results := make(chan outcome, len(queries))
	pending := 0

	for i, q := range queries {
		adapter, ok := c.adapters[q.Source]
		if !ok {
			slots[i] = slot{done: true, failure: &types.QueryFailure{
				Query: q, Source: q.Source, Reason: "unknown source",
				Err: fmt.Errorf("no adapter registered for %q", q.Source),
			}}
			continue
		}

		key := cache.Key(q)
		if c.cache != nil {
			if recs, hit := c.cache.Get(ctx, key); hit {
				metrics.SourceQueries.WithLabelValues(q.Source, "cache_hit").Inc()
				slots[i] = slot{done: true, records: recs, cacheHit: true}
				continue
			}
		}

		pending++
		go func(i int, q types.SourceQuery, key string, adapter search.Adapter) {
			recs, hit, err := c.run(ctx, q, key, adapter)
			results <- outcome{index: i, records: recs, cacheHit: hit, err: err}
		}(i, q, key, adapter)
	}

	for pending > 0 {
		select {
		case out := <-results:
			pending--
			s := &slots[out.index]
			s.done = true
			if out.err != nil {
				q := queries[out.index]
				s.failure = &types.QueryFailure{Query: q, Source: q.Source, Reason: failureReason(out.err), Err: out.err}
				continue
			}
			s.records = out.records
			s.cacheHit = out.cacheHit
		case <-ctx.Done():
			for i := range slots {
				if slots[i].done {
					continue
				}
				q := queries[i]
				slots[i] = slot{done: true, failure: &types.QueryFailure{
					Query: q, Source: q.Source, Reason: string(types.SourceTimeout),
					Err: fmt.Errorf("batch deadline exceeded: %w", ctx.Err()),
				}}
				metrics.SourceQueries.WithLabelValues(q.Source, "abandoned").Inc()
			}
			pending = 0
		}
	}

	var b Batch
	for _, s := range slots {
		if s.failure != nil {
			b.Failures = append(b.Failures, *s.failure)
			c.logger.Warn("source query failed",
				zap.String("source", s.failure.Source),
				zap.String("query", s.failure.Query.Text),
				zap.String("reason", s.failure.Reason),
				zap.Error(s.failure.Err))
			continue
		}
		if s.cacheHit {
			b.CacheHits++
		}
		b.Records = append(b.Records, s.records...)
	}
	c.logger.Debug("batch complete",
		zap.Int("queries", len(queries)),
		zap.Int("records", len(b.Records)),
		zap.Int("failures", len(b.Failures)),
		zap.Int("cache_hits", b.CacheHits))
	return b
}

type flightResult struct {
	records  []types.PaperRecord
	cacheHit bool
}

// run answers one query. Identical keys in flight at the same time share a
// single fetch.
func (c *Coordinator) run(ctx context.Context, q types.SourceQuery, key string, adapter search.Adapter) ([]types.PaperRecord, bool, error) {
	v, err, _ := c.flight.Do(key, func() (any, error) {
		// A query that finished since the batch checked the cache.
		if c.cache != nil {
			if recs, hit := c.cache.Get(ctx, key); hit {
				return flightResult{records: recs, cacheHit: true}, nil
			}
		}

		recs, err := c.fetch(ctx, q, adapter)
		if err != nil {
			return nil, err
		}

		filtered := make([]types.PaperRecord, 0, len(recs))
		for _, r := range recs {
			if q.Filters.Match(r) {
				filtered = append(filtered, r)
			}
		}
		if c.cache != nil && ctx.Err() == nil {
			c.cache.Put(ctx, key, filtered, c.opts.CacheTTL)
		}
		return flightResult{records: filtered}, nil
	})
	if err != nil {
		return nil, false, err
	}
	fr := v.(flightResult)
	return fr.records, fr.cacheHit, nil
}

type callResult struct {
	records []types.PaperRecord
	err     error
}

// fetch calls the adapter under the retry policy. Each attempt waits for
// the source's limiter, then for a concurrency slot. The slot is held until
// the adapter call itself returns, even when the attempt has already been
// abandoned for exceeding QueryTimeout.
func (c *Coordinator) fetch(ctx context.Context, q types.SourceQuery, adapter search.Adapter) ([]types.PaperRecord, error) {
	var out []types.PaperRecord
	limiter := c.limiters[q.Source]

	err := retry.Do(ctx, c.opts.Retry, func(ctx context.Context, attempt int) error {
		if err := limiter.Wait(ctx); err != nil {
			return retry.Permanent(&types.SourceError{Source: q.Source, Kind: types.SourceTimeout, Err: err})
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return retry.Permanent(&types.SourceError{Source: q.Source, Kind: types.SourceTimeout, Err: err})
		}
		metrics.InFlight.Inc()

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
		defer cancel()

		ch := make(chan callResult, 1)
		start := time.Now()
		go func() {
			defer func() {
				metrics.InFlight.Dec()
				c.sem.Release(1)
			}()
			recs, err := adapter.Query(attemptCtx, q)
			ch <- callResult{records: recs, err: err}
		}()

		select {
		case res := <-ch:
			metrics.SourceLatency.WithLabelValues(q.Source).Observe(time.Since(start).Seconds())
			if res.err != nil {
				metrics.SourceQueries.WithLabelValues(q.Source, failureReason(res.err)).Inc()
				c.logger.Debug("source attempt failed",
					zap.String("source", q.Source),
					zap.Int("attempt", attempt),
					zap.Error(res.err))
				return res.err
			}
			metrics.SourceQueries.WithLabelValues(q.Source, "ok").Inc()
			out = res.records
			return nil
		case <-attemptCtx.Done():
			metrics.SourceQueries.WithLabelValues(q.Source, string(types.SourceTimeout)).Inc()
			return &types.SourceError{
				Source: q.Source,
				Kind:   types.SourceTimeout,
				Err:    fmt.Errorf("attempt %d exceeded %s: %w", attempt, c.opts.QueryTimeout, attemptCtx.Err()),
			}
		}
	})
	return out, err
}

// failureReason names the failure kind recorded in the batch.
func failureReason(err error) string {
	var se *types.SourceError
	if errors.As(err, &se) {
		return string(se.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(types.SourceTimeout)
	}
	return string(types.SourceInvalidResponse)
}

// Executor is the subset of the coordinator the pipeline depends on.
type Executor interface {
	Execute(ctx context.Context, queries []types.SourceQuery) Batch
	Sources() []string
}

var _ Executor = (*Coordinator)(nil)
