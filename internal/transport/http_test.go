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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/FerretDB/seriesly/internal/util/testutil"
)

func TestHTTP(t *testing.T) {
	t.Parallel()

	var m sync.Mutex
	var got *http.Request
	var gotBody []byte

	last := func() (*http.Request, []byte) {
		m.Lock()
		defer m.Unlock()

		return got, gotBody
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Lock()
		got = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		m.Unlock()

		switch r.URL.Path {
		case "/missing":
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		case "/broken":
			http.Error(w, "internal", http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `["ts1"]`)
		}
	}))
	t.Cleanup(srv.Close)

	tr, err := NewHTTP(&NewHTTPOpts{
		BaseURL: srv.URL + "/",
		Client:  srv.Client(),
		L:       testutil.SLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL, tr.BaseURL())

	t.Run("GET", func(t *testing.T) {
		res, err := tr.Do(testutil.Ctx(t), &Request{Method: http.MethodGet, Path: "/_all_dbs"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, `["ts1"]`, string(res.Body))

		got, _ := last()
		assert.Equal(t, "/_all_dbs", got.URL.Path)
		assert.Equal(t, "application/json", got.Header.Get("Accept"))
		assert.Empty(t, got.Header.Get("Content-Type"))
		assert.NotEmpty(t, got.Header.Get("X-Request-Id"))
		assert.Contains(t, got.Header.Get("User-Agent"), "seriesly-go/")
	})

	t.Run("POSTWithQuery", func(t *testing.T) {
		q := url.Values{}
		q.Add("ptr", "/a")
		q.Add("ptr", "/b")
		q.Set("ts", "2012-08-01T00:00:00Z")

		res, err := tr.Do(testutil.Ctx(t), &Request{
			Method: http.MethodPost,
			Path:   "/ts1",
			Query:  q,
			Body:   []byte(`{"value":42}`),
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)

		got, gotBody := last()
		assert.Equal(t, http.MethodPost, got.Method)
		assert.Equal(t, []string{"/a", "/b"}, got.URL.Query()["ptr"])
		assert.Equal(t, "2012-08-01T00:00:00Z", got.URL.Query().Get("ts"))
		assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
		assert.Equal(t, `{"value":42}`, string(gotBody))
	})

	t.Run("EscapedPath", func(t *testing.T) {
		_, err := tr.Do(testutil.Ctx(t), &Request{Method: http.MethodGet, Path: "/" + url.PathEscape("a b") + "/_all"})
		require.NoError(t, err)

		got, _ := last()
		assert.Equal(t, "/a b/_all", got.URL.Path)
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		for path, code := range map[string]int{
			"/missing": http.StatusNotFound,
			"/broken":  http.StatusInternalServerError,
		} {
			res, err := tr.Do(testutil.Ctx(t), &Request{Method: http.MethodGet, Path: path})
			require.NoError(t, err, "HTTP errors are not transport errors")
			assert.Equal(t, code, res.StatusCode)
			assert.NotEmpty(t, res.Body)
		}
	})

	t.Run("InvalidPath", func(t *testing.T) {
		_, err := tr.Do(testutil.Ctx(t), &Request{Method: http.MethodGet, Path: "_all_dbs"})
		require.Error(t, err)
		assert.False(t, IsUnavailable(err))
	})
}

func TestHTTPUnavailable(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	tr, err := NewHTTP(&NewHTTPOpts{BaseURL: "http://" + addr, L: testutil.SLogger(t)})
	require.NoError(t, err)

	_, err = tr.Do(testutil.Ctx(t), &Request{Method: http.MethodGet, Path: "/_all_dbs"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err), "%v", err)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
}

func TestHTTPCanceled(t *testing.T) {
	t.Parallel()

	tr, err := NewHTTP(&NewHTTPOpts{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testutil.Ctx(t))
	cancel()

	_, err = tr.Do(ctx, &Request{Method: http.MethodGet, Path: "/_all_dbs"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsUnavailable(err))
}

func TestNewHTTP(t *testing.T) {
	t.Parallel()

	for name, base := range map[string]string{
		"Scheme":   "mongodb://127.0.0.1:3133",
		"NoHost":   "http://",
		"Query":    "http://127.0.0.1:3133/?a=b",
		"Fragment": "http://127.0.0.1:3133/#top",
		"Invalid":  "http://[::1",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := NewHTTP(&NewHTTPOpts{BaseURL: base})
			assert.Error(t, err)
		})
	}
}

func TestIsConnectFailure(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		err      error
		expected bool
	}{
		"DNS": {
			err:      &url.Error{Op: "Get", URL: "http://nowhere.invalid", Err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}},
			expected: true,
		},
		"Dial": {
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("i/o timeout")},
			expected: true,
		},
		"Refused": {
			err:      fmt.Errorf("wrapped: %w", syscall.ECONNREFUSED),
			expected: true,
		},
		"Reset": {
			err:      &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET},
			expected: false,
		},
		"Read": {
			err:      &net.OpError{Op: "read", Net: "tcp", Err: io.ErrUnexpectedEOF},
			expected: false,
		},
		"Other": {
			err:      io.EOF,
			expected: false,
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, isConnectFailure(tc.err))
		})
	}
}

func TestHTTPTracing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	tr, err := NewHTTP(&NewHTTPOpts{BaseURL: srv.URL, TracerProvider: tp})
	require.NoError(t, err)

	res, err := tr.Do(testutil.Ctx(t), &Request{Method: http.MethodGet, Path: "/ts1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, res.StatusCode)

	spans := sr.Ended()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "GET /ts1", span.Name())
	assert.Equal(t, trace.SpanKindClient, span.SpanKind())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.Int("http.response.status_code", http.StatusTeapot))
}
