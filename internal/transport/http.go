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

package transport

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FerretDB/seriesly/build/version"
	"github.com/FerretDB/seriesly/internal/util/lazyerrors"
	"github.com/FerretDB/seriesly/internal/util/logging"
	"github.com/FerretDB/seriesly/internal/util/observability"
)

// tracerName is the instrumentation scope name.
const tracerName = "github.com/FerretDB/seriesly/internal/transport"

// HTTP is a [Transport] implementation on top of [http.Client].
//
// It is safe for concurrent use if the underlying client is.
type HTTP struct {
	base   string
	client *http.Client
	l      *slog.Logger
	tracer trace.Tracer
}

// NewHTTPOpts represents [NewHTTP] options.
type NewHTTPOpts struct {
	// BaseURL is the server URL, e.g. "http://127.0.0.1:3133". Required.
	BaseURL string

	// Client is used for requests; http.DefaultClient if nil.
	Client *http.Client

	// L is used for debug logging; logging is disabled if nil.
	L *slog.Logger

	// TracerProvider is used for client spans; the global one if nil.
	TracerProvider trace.TracerProvider
}

// NewHTTP creates a new HTTP transport.
func NewHTTP(opts *NewHTTPOpts) (*HTTP, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, lazyerrors.Errorf("invalid scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return nil, lazyerrors.Errorf("invalid base URL %q: no host", opts.BaseURL)
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return nil, lazyerrors.Errorf("invalid base URL %q: query and fragment are not allowed", opts.BaseURL)
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	l := opts.L
	if l == nil {
		l = logging.Discard()
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &HTTP{
		base:   strings.TrimSuffix(u.String(), "/"),
		client: client,
		l:      l,
		tracer: tp.Tracer(tracerName),
	}, nil
}

// BaseURL returns the server URL without trailing slash.
func (h *HTTP) BaseURL() string {
	return h.base
}

// Do implements [Transport].
func (h *HTTP) Do(ctx context.Context, req *Request) (*Response, error) {
	if !strings.HasPrefix(req.Path, "/") {
		return nil, lazyerrors.Errorf("path %q must start with a slash", req.Path)
	}

	u := h.base + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	ctx, span := h.tracer.Start(ctx, req.Method+" "+req.Path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, lazyerrors.Error(err)
	}

	requestID := uuid.NewString()

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.Header.Set("X-Request-Id", requestID)

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	observability.InjectHeaders(ctx, httpReq.Header)

	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", u),
		attribute.String("seriesly.request_id", requestID),
	)

	l := h.l.With(slog.String("request_id", requestID))
	l.DebugContext(ctx, ">>> "+req.Method+" "+u, slog.Int("body_length", len(req.Body)))

	start := time.Now()

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		l.DebugContext(ctx, "Request failed", logging.Error(err), slog.Duration("duration", time.Since(start)))

		// canceled by the caller, not a connectivity problem
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if isConnectFailure(err) {
			return nil, &UnavailableError{Err: err}
		}

		return nil, lazyerrors.Error(err)
	}

	defer httpResp.Body.Close() //nolint:errcheck // we are only reading it

	b, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, lazyerrors.Error(err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", httpResp.StatusCode))

	if httpResp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, httpResp.Status)
	}

	l.DebugContext(
		ctx, "<<< "+httpResp.Status,
		slog.Int("body_length", len(b)),
		slog.Duration("duration", time.Since(start)),
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       b,
	}, nil
}

// check interfaces
var (
	_ Transport = (*HTTP)(nil)
)
