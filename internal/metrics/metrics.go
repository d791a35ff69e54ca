// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics registers the Prometheus collectors shared by the
// retrieval, cache, generation, and pipeline packages, and serves them over
// HTTP when the CLI is started with --metrics-addr.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// SourceQueries counts adapter calls by source and result
	// (ok, cache_hit, rate_limited, timeout, invalid_response, abandoned).
	SourceQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_source_queries_total",
		Help: "Source queries by source and result",
	}, []string{"source", "result"})

	// SourceLatency tracks adapter call latency per attempt.
	SourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_source_query_duration_seconds",
		Help:    "Source adapter call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"source"})

	// InFlight is the number of adapter calls holding a concurrency slot.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "research_source_queries_in_flight",
		Help: "Adapter calls currently holding a concurrency slot",
	})

	// CacheLookups counts cache lookups by tier and result (hit, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_cache_lookups_total",
		Help: "Cache lookups by tier and result",
	}, []string{"tier", "result"})

	// CacheEvictions counts evicted entries by reason (expired, size).
	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_cache_evictions_total",
		Help: "Cache evictions by reason",
	}, []string{"reason"})

	// GenerationCalls counts generation requests by kind and result.
	GenerationCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_generation_calls_total",
		Help: "Text generation calls by kind and result",
	}, []string{"kind", "result"})

	// StageDuration tracks time spent per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})

	// Sessions counts finished sessions by final stage.
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_sessions_total",
		Help: "Research sessions by final stage",
	}, []string{"stage"})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
