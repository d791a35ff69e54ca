// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the source adapters. It
// performs one request and classifies the outcome into a *types.SourceError;
// retrying is left to the caller's retry policy.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pdiddy/research-agent/pkg/types"
)

// DefaultRateLimitWait is used when a 429 response carries no usable
// Retry-After header.
var DefaultRateLimitWait = 10 * time.Second

// Do executes req once. A 200 response is returned open for the caller to
// decode and close. Anything else is closed and reported as a
// *types.SourceError:
//
//	429                 -> rate_limited, Wait from Retry-After
//	client timeout/ctx  -> timeout
//	other status/errors -> invalid_response
func Do(ctx context.Context, client *http.Client, req *http.Request, source string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, ClassifyError(source, err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &types.SourceError{
			Source: source,
			Kind:   types.SourceRateLimited,
			Wait:   parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Err:    fmt.Errorf("HTTP 429"),
		}
	}
	if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout {
		return nil, &types.SourceError{Source: source, Kind: types.SourceTimeout, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	return nil, &types.SourceError{
		Source: source,
		Kind:   types.SourceInvalidResponse,
		Err:    fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)),
	}
}

// ClassifyError maps a transport or decoding error to a *types.SourceError.
// Errors that already are SourceErrors pass through unchanged.
func ClassifyError(source string, err error) error {
	if err == nil {
		return nil
	}
	var se *types.SourceError
	if errors.As(err, &se) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &types.SourceError{Source: source, Kind: types.SourceTimeout, Err: err}
	}
	return &types.SourceError{Source: source, Kind: types.SourceInvalidResponse, Err: err}
}

// parseRetryAfter accepts either delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return DefaultRateLimitWait
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRateLimitWait
}
