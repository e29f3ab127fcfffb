// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides the retry and error normalization layer of the seriesly client.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FerretDB/seriesly/internal/clienterrors"
	"github.com/FerretDB/seriesly/internal/clientmetrics"
	"github.com/FerretDB/seriesly/internal/transport"
	"github.com/FerretDB/seriesly/internal/util/ctxutil"
	"github.com/FerretDB/seriesly/internal/util/lazyerrors"
	"github.com/FerretDB/seriesly/internal/util/logging"
)

// Default retry policy.
const (
	DefaultMaxRetries = 5
	DefaultDelay      = 5 * time.Second
)

// Wrapper executes requests through the transport,
// retrying connection failures and converting error responses.
//
// It is safe for concurrent use if the underlying transport is.
type Wrapper struct {
	t          transport.Transport
	l          *slog.Logger
	m          *clientmetrics.Metrics
	maxRetries int
	delay      time.Duration

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOpts represents [New] options.
type NewOpts struct {
	Transport transport.Transport
	L         *slog.Logger

	// Metrics may be nil.
	Metrics *clientmetrics.Metrics

	// MaxRetries is the total number of attempts; must be positive.
	MaxRetries int

	// Delay between attempts; must not be negative.
	Delay time.Duration
}

// New creates a new Wrapper.
func New(opts *NewOpts) (*Wrapper, error) {
	if opts.Transport == nil {
		return nil, lazyerrors.New("transport is required")
	}

	if opts.MaxRetries < 1 {
		return nil, lazyerrors.Errorf("max retries must be positive, got %d", opts.MaxRetries)
	}

	if opts.Delay < 0 {
		return nil, lazyerrors.Errorf("delay must not be negative, got %s", opts.Delay)
	}

	l := opts.L
	if l == nil {
		l = logging.Discard()
	}

	return &Wrapper{
		t:          opts.Transport,
		l:          l,
		m:          opts.Metrics,
		maxRetries: opts.MaxRetries,
		delay:      opts.Delay,
		sleep:      ctxutil.Sleep,
	}, nil
}

// Do executes the request for the named client operation.
//
// It returns the response only if the status code is below 400.
// Otherwise it returns:
//   - *clienterrors.RequestError for status codes >= 400;
//   - *clienterrors.ConnectionError if every attempt failed to connect;
//   - ctx.Err() if ctx was canceled;
//   - any other transport error as-is.
func (w *Wrapper) Do(ctx context.Context, op string, req *transport.Request) (*transport.Response, error) {
	start := time.Now()

	if w.m != nil {
		w.m.Requests.WithLabelValues(op).Inc()
	}

	res, result, err := w.do(ctx, op, req)

	if w.m != nil {
		w.m.Responses.WithLabelValues(op, result).Inc()
		w.m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}

	return res, err
}

// do implements Do and also returns the result label value.
func (w *Wrapper) do(ctx context.Context, op string, req *transport.Request) (*transport.Response, string, error) {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		res, err := w.t.Do(ctx, req)
		if err == nil {
			result := clientmetrics.StatusResult(res.StatusCode)

			if res.StatusCode >= 400 {
				return nil, result, &clienterrors.RequestError{
					Method:     req.Method,
					Path:       req.Path,
					StatusCode: res.StatusCode,
					Body:       res.Body,
				}
			}

			return res, result, nil
		}

		if isCanceled(err) {
			return nil, clientmetrics.ResultCanceled, err
		}

		if !transport.IsUnavailable(err) {
			return nil, clientmetrics.ResultError, err
		}

		lastErr = err

		if attempt == w.maxRetries {
			break
		}

		w.l.DebugContext(
			ctx, "Server unavailable, retrying",
			slog.String("op", op), slog.Int("attempt", attempt), slog.Duration("delay", w.delay), logging.Error(err),
		)

		if w.m != nil {
			w.m.Retries.WithLabelValues(op).Inc()
		}

		if err = w.sleep(ctx, w.delay); err != nil {
			return nil, clientmetrics.ResultCanceled, err
		}
	}

	return nil, clientmetrics.ResultConnectionFailed, &clienterrors.ConnectionError{
		Attempts: w.maxRetries,
		Err:      lastErr,
	}
}

// isCanceled returns true if err is a context cancellation or deadline error.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
