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

package seriesly

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/FerretDB/seriesly/internal/clientmetrics"
	"github.com/FerretDB/seriesly/internal/retry"
)

// Defaults.
const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 3133
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = retry.DefaultMaxRetries
	DefaultRetryDelay = retry.DefaultDelay
)

// Metrics is a Prometheus collector of client metrics.
type Metrics = clientmetrics.Metrics

// NewMetrics returns new client metrics that should be registered by the caller.
func NewMetrics() *Metrics {
	return clientmetrics.New()
}

// options represents [Client] configuration.
type options struct {
	host       string
	port       int
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	l          *slog.Logger
	metrics    *Metrics
	tp         trace.TracerProvider
}

// Option configures a [Client].
type Option func(*options)

// WithHost sets the server host. The default is [DefaultHost].
func WithHost(host string) Option {
	return func(o *options) {
		o.host = host
	}
}

// WithPort sets the server port. The default is [DefaultPort].
func WithPort(port int) Option {
	return func(o *options) {
		o.port = port
	}
}

// WithBaseURL sets the full server URL, e.g. "https://seriesly.example.com:8443".
// It takes precedence over [WithHost] and [WithPort].
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client used for all requests.
// [WithTimeout] is ignored if it is set.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTimeout sets the timeout of a single request round trip. The default is [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithMaxRetries sets the total number of connection attempts. The default is [DefaultMaxRetries].
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = n
	}
}

// WithRetryDelay sets the fixed delay between connection attempts. The default is [DefaultRetryDelay].
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.retryDelay = d
	}
}

// WithLogger sets the logger for debug messages. Nothing is logged by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.l = l
	}
}

// WithMetrics sets the metrics collector updated by the client.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global one is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tp = tp
	}
}
