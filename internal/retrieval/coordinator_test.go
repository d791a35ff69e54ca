// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/research-agent/internal/cache"
	"github.com/pdiddy/research-agent/internal/retry"
	"github.com/pdiddy/research-agent/internal/search"
	"github.com/pdiddy/research-agent/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAdapter answers every query through fn and counts calls and the
// highest number of concurrent calls it observed.
type fakeAdapter struct {
	name string
	fn   func(ctx context.Context, q types.SourceQuery, call int) ([]types.PaperRecord, error)

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Query(ctx context.Context, q types.SourceQuery) ([]types.PaperRecord, error) {
	call := int(f.calls.Add(1))
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return f.fn(ctx, q, call)
}

func echo(source string) func(context.Context, types.SourceQuery, int) ([]types.PaperRecord, error) {
	return func(_ context.Context, q types.SourceQuery, _ int) ([]types.PaperRecord, error) {
		return []types.PaperRecord{{Title: q.Text + " 1", Source: source}, {Title: q.Text + " 2", Source: source}}, nil
	}
}

func sleepy(d time.Duration, source string) func(context.Context, types.SourceQuery, int) ([]types.PaperRecord, error) {
	return func(ctx context.Context, q types.SourceQuery, call int) ([]types.PaperRecord, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return echo(source)(ctx, q, call)
	}
}

func testOptions() Options {
	return Options{
		MaxConcurrency: 4,
		QueryTimeout:   time.Second,
		BatchDeadline:  5 * time.Second,
		Retry:          retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
	}
}

func queries(source string, texts ...string) []types.SourceQuery {
	out := make([]types.SourceQuery, len(texts))
	for i, t := range texts {
		out[i] = types.SourceQuery{Text: t, Source: source}
	}
	return out
}

func titles(recs []types.PaperRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

func TestExecuteAllSucceed(t *testing.T) {
	a := &fakeAdapter{name: "arxiv", fn: echo("arxiv")}
	c := newCoordinator(nil, testOptions(), a)
	b := c.Execute(context.Background(), queries("arxiv", "a", "b", "c"))
	assert.Empty(t, b.Failures)
	assert.Equal(t, []string{"a 1", "a 2", "b 1", "b 2", "c 1", "c 2"}, titles(b.Records))
	assert.Equal(t, int32(3), a.calls.Load())
}

func TestExecuteUnknownSource(t *testing.T) {
	c := newCoordinator(nil, testOptions())
	b := c.Execute(context.Background(), queries("arxiv", "q"))
	assert.Empty(t, b.Records)
	require.Len(t, b.Failures, 1)
	assert.Equal(t, "unknown source", b.Failures[0].Reason)
}

func TestExecuteUsesCache(t *testing.T) {
	ctx := context.Background()
	ch := cache.New(cache.Options{TTL: time.Hour})
	a := &fakeAdapter{name: "arxiv", fn: echo("arxiv")}
	c := newCoordinator(ch, testOptions(), a)

	first := c.Execute(ctx, queries("arxiv", "surface codes"))
	assert.Zero(t, first.CacheHits)
	second := c.Execute(ctx, queries("arxiv", "Surface  Codes"))
	assert.Equal(t, 1, second.CacheHits)
	assert.Equal(t, int32(1), a.calls.Load(), "second batch must be served from cache")
	assert.Equal(t, titles(first.Records), titles(second.Records))
}

func TestExecuteConcurrencyCeiling(t *testing.T) {
	a := &fakeAdapter{name: "arxiv", fn: sleepy(20*time.Millisecond, "arxiv")}
	opts := testOptions()
	opts.MaxConcurrency = 3
	c := newCoordinator(nil, opts, a)

	var texts []string
	for i := 0; i < 12; i++ {
		texts = append(texts, fmt.Sprintf("q%d", i))
	}
	b := c.Execute(context.Background(), queries("arxiv", texts...))
	assert.Empty(t, b.Failures)
	assert.Len(t, b.Records, 24)
	assert.LessOrEqual(t, a.peak.Load(), int32(3))
	assert.Equal(t, int32(12), a.calls.Load())
}

func TestExecuteSyncModeIsSequential(t *testing.T) {
	a := &fakeAdapter{name: "arxiv", fn: sleepy(5*time.Millisecond, "arxiv")}
	opts := testOptions()
	opts.MaxConcurrency = 1
	c := newCoordinator(nil, opts, a)

	b := c.Execute(context.Background(), queries("arxiv", "a", "b", "c", "d"))
	assert.Len(t, b.Records, 8)
	assert.Equal(t, int32(1), a.peak.Load())
}

func TestExecutePartialFailure(t *testing.T) {
	ok := &fakeAdapter{name: "arxiv", fn: echo("arxiv")}
	bad := &fakeAdapter{name: "openalex", fn: func(context.Context, types.SourceQuery, int) ([]types.PaperRecord, error) {
		return nil, &types.SourceError{Source: "openalex", Kind: types.SourceInvalidResponse, Err: errors.New("HTTP 500")}
	}}
	c := newCoordinator(nil, testOptions(), ok, bad)

	batch := []types.SourceQuery{
		{Text: "a", Source: "arxiv"},
		{Text: "b", Source: "openalex"},
		{Text: "c", Source: "arxiv"},
		{Text: "d", Source: "openalex"},
		{Text: "e", Source: "arxiv"},
	}
	b := c.Execute(context.Background(), batch)

	assert.Equal(t, []string{"a 1", "a 2", "c 1", "c 2", "e 1", "e 2"}, titles(b.Records))
	require.Len(t, b.Failures, 2)
	assert.Equal(t, "b", b.Failures[0].Query.Text)
	assert.Equal(t, "d", b.Failures[1].Query.Text)
	assert.Equal(t, "invalid_response", b.Failures[0].Reason)
	assert.Equal(t, int32(6), bad.calls.Load(), "each failing query is tried MaxAttempts times")
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	a := &fakeAdapter{name: "semantic_scholar"}
	a.fn = func(ctx context.Context, q types.SourceQuery, call int) ([]types.PaperRecord, error) {
		if call < 3 {
			return nil, &types.SourceError{Source: "semantic_scholar", Kind: types.SourceRateLimited, Wait: 2 * time.Millisecond}
		}
		return echo("semantic_scholar")(ctx, q, call)
	}
	c := newCoordinator(nil, testOptions(), a)

	b := c.Execute(context.Background(), queries("semantic_scholar", "qec"))
	assert.Empty(t, b.Failures)
	assert.Len(t, b.Records, 2)
	assert.Equal(t, int32(3), a.calls.Load())
}

func TestExecuteDeterministicOrder(t *testing.T) {
	// Later queries finish first.
	a := &fakeAdapter{name: "arxiv"}
	a.fn = func(ctx context.Context, q types.SourceQuery, call int) ([]types.PaperRecord, error) {
		delay := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 15 * time.Millisecond, "c": 0}[q.Text]
		return sleepy(delay, "arxiv")(ctx, q, call)
	}
	c := newCoordinator(nil, testOptions(), a)

	b := c.Execute(context.Background(), queries("arxiv", "a", "b", "c"))
	want := []string{"a 1", "a 2", "b 1", "b 2", "c 1", "c 2"}
	if diff := cmp.Diff(want, titles(b.Records)); diff != "" {
		t.Errorf("record order mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteQueryTimeout(t *testing.T) {
	a := &fakeAdapter{name: "arxiv", fn: sleepy(time.Second, "arxiv")}
	opts := testOptions()
	opts.QueryTimeout = 10 * time.Millisecond
	opts.Retry.MaxAttempts = 2
	c := newCoordinator(nil, opts, a)

	b := c.Execute(context.Background(), queries("arxiv", "slow"))
	require.Len(t, b.Failures, 1)
	assert.Equal(t, "timeout", b.Failures[0].Reason)
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestExecuteBatchDeadline(t *testing.T) {
	fast := &fakeAdapter{name: "arxiv", fn: echo("arxiv")}
	slow := &fakeAdapter{name: "openalex", fn: sleepy(time.Minute, "openalex")}
	opts := testOptions()
	opts.QueryTimeout = time.Minute
	opts.BatchDeadline = 40 * time.Millisecond
	c := newCoordinator(nil, opts, fast, slow)

	start := time.Now()
	b := c.Execute(context.Background(), []types.SourceQuery{
		{Text: "a", Source: "arxiv"},
		{Text: "b", Source: "openalex"},
	})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"a 1", "a 2"}, titles(b.Records))
	require.Len(t, b.Failures, 1)
	assert.Equal(t, "openalex", b.Failures[0].Source)
	assert.Equal(t, "timeout", b.Failures[0].Reason)
}

func TestExecuteMergesIdenticalQueries(t *testing.T) {
	release := make(chan struct{})
	a := &fakeAdapter{name: "arxiv"}
	a.fn = func(ctx context.Context, q types.SourceQuery, call int) ([]types.PaperRecord, error) {
		<-release
		return echo("arxiv")(ctx, q, call)
	}
	c := newCoordinator(nil, testOptions(), a)

	var b Batch
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b = c.Execute(context.Background(), queries("arxiv", "qec", "qec", "qec"))
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), a.calls.Load())
	assert.Len(t, b.Records, 6)
}

func TestExecuteAppliesFilters(t *testing.T) {
	a := &fakeAdapter{name: "arxiv", fn: func(context.Context, types.SourceQuery, int) ([]types.PaperRecord, error) {
		return []types.PaperRecord{
			{Title: "old", Year: 2001},
			{Title: "new", Year: 2022},
			{Title: "undated"},
		}, nil
	}}
	c := newCoordinator(nil, testOptions(), a)

	b := c.Execute(context.Background(), []types.SourceQuery{{Text: "q", Source: "arxiv", Filters: types.Filters{YearFrom: 2020}}})
	assert.Equal(t, []string{"new", "undated"}, titles(b.Records))
}

func TestExecuteStrictSlotRelease(t *testing.T) {
	// The adapter ignores cancellation, so an abandoned call keeps its slot
	// until it really returns and the second query cannot start.
	release := make(chan struct{})
	a := &fakeAdapter{name: "arxiv", fn: func(context.Context, types.SourceQuery, int) ([]types.PaperRecord, error) {
		<-release
		return nil, nil
	}}
	opts := testOptions()
	opts.MaxConcurrency = 1
	opts.QueryTimeout = 10 * time.Millisecond
	opts.BatchDeadline = 60 * time.Millisecond
	opts.Retry.MaxAttempts = 1
	c := newCoordinator(nil, opts, a)

	b := c.Execute(context.Background(), queries("arxiv", "first", "second"))
	assert.Len(t, b.Failures, 2)
	assert.Equal(t, int32(1), a.calls.Load(), "a timed-out call still holds its slot")

	close(release)
	require.Eventually(t, func() bool { return c.sem.TryAcquire(1) }, time.Second, 5*time.Millisecond)
	c.sem.Release(1)
}

func newCoordinator(c *cache.Cache, opts Options, adapters ...*fakeAdapter) *Coordinator {
	list := make([]search.Adapter, len(adapters))
	for i, a := range adapters {
		list[i] = a
	}
	return New(list, c, opts)
}
