// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-agent/pkg/types"
)

func TestBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 0},
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
		{10, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.n), "Backoff(%d)", tt.n)
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	var calls []int
	err := Do(context.Background(), p, func(_ context.Context, attempt int) error {
		calls = append(calls, attempt)
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestDoExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	sentinel := errors.New("still failing")
	calls := 0
	err := Do(context.Background(), p, func(context.Context, int) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}

func TestDoPermanentStops(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	sentinel := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), p, func(context.Context, int) error {
		calls++
		return Permanent(sentinel)
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsRetryAfter(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	start := time.Now()
	calls := 0
	err := Do(context.Background(), p, func(context.Context, int) error {
		calls++
		if calls == 1 {
			return &types.SourceError{Source: "s2", Kind: types.SourceRateLimited, Wait: 60 * time.Millisecond}
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestDoContextCancelledDuringBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := Do(ctx, p, func(context.Context, int) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithFallback(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	t.Run("uses result", func(t *testing.T) {
		v, err := DoWithFallback(context.Background(), p,
			func(context.Context, int) (string, error) { return "generated", nil },
			func() string { return "template" })
		require.NoError(t, err)
		assert.Equal(t, "generated", v)
	})

	t.Run("falls back after three failures", func(t *testing.T) {
		calls := 0
		v, err := DoWithFallback(context.Background(), p,
			func(context.Context, int) (string, error) {
				calls++
				return "", &types.GenerationError{Kind: "report", Reason: types.GenerationQuota}
			},
			func() string { return "template" })
		assert.Equal(t, "template", v)
		assert.Equal(t, 3, calls)
		var genErr *types.GenerationError
		assert.True(t, errors.As(err, &genErr))
	})
}
