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
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/FerretDB/seriesly/internal/clienterrors"
	"github.com/FerretDB/seriesly/internal/retry"
	"github.com/FerretDB/seriesly/internal/transport"
	"github.com/FerretDB/seriesly/internal/util/lazyerrors"
	"github.com/FerretDB/seriesly/internal/util/logging"
)

// Client is a seriesly client connected to one server.
//
// It is safe for concurrent use.
// Database handles obtained from it share its transport.
type Client struct {
	base string
	l    *slog.Logger
	w    *retry.Wrapper
}

// New creates a new Client.
//
// It does not connect to the server.
func New(opts ...Option) (*Client, error) {
	o := options{
		host:       DefaultHost,
		port:       DefaultPort,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(&o)
	}

	base := o.baseURL
	if base == "" {
		if o.host == "" {
			return nil, lazyerrors.New("host must not be empty")
		}

		if o.port <= 0 || o.port > 65535 {
			return nil, lazyerrors.Errorf("invalid port %d", o.port)
		}

		base = "http://" + net.JoinHostPort(o.host, strconv.Itoa(o.port))
	}

	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: o.timeout}
	}

	l := o.l
	if l == nil {
		l = logging.Discard()
	}

	t, err := transport.NewHTTP(&transport.NewHTTPOpts{
		BaseURL:        base,
		Client:         client,
		L:              logging.Named(l, "transport"),
		TracerProvider: o.tp,
	})
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	w, err := retry.New(&retry.NewOpts{
		Transport:  t,
		L:          logging.Named(l, "retry"),
		Metrics:    o.metrics,
		MaxRetries: o.maxRetries,
		Delay:      o.retryDelay,
	})
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return newClient(t.BaseURL(), l, w), nil
}

// newClient creates a new Client with the given retry wrapper.
func newClient(base string, l *slog.Logger, w *retry.Wrapper) *Client {
	return &Client{
		base: base,
		l:    l,
		w:    w,
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.base
}

// List returns sorted names of all databases on the server.
func (c *Client) List(ctx context.Context) ([]string, error) {
	res, err := c.w.Do(ctx, "list", &transport.Request{
		Method: http.MethodGet,
		Path:   "/_all_dbs",
	})
	if err != nil {
		return nil, err
	}

	var names []string
	if err = json.Unmarshal(res.Body, &names); err != nil {
		return nil, lazyerrors.Error(err)
	}

	if names == nil {
		names = []string{}
	}

	sort.Strings(names)

	return names, nil
}

// Exists returns true if the database is present in the live list of databases.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateName("exists", name); err != nil {
		return false, err
	}

	names, err := c.List(ctx)
	if err != nil {
		return false, err
	}

	return slices.Contains(names, name), nil
}

// Create creates a new database.
//
// It returns *DatabaseError with DatabaseExists code if the database is already present.
// The check and the creation are not atomic;
// a concurrent creation by another client is reported by the server as *RequestError.
func (c *Client) Create(ctx context.Context, name string) (*Result, error) {
	return c.guard(false, "create", c.create)(ctx, name)
}

// Drop removes the database with all its documents.
//
// It returns *DatabaseError with DatabaseNotFound code if the database is absent.
func (c *Client) Drop(ctx context.Context, name string) (*Result, error) {
	return c.guard(true, "drop", c.drop)(ctx, name)
}

// Database returns a handle for the named database.
//
// It does not check that the database exists;
// operations on a missing database fail with *RequestError.
func (c *Client) Database(name string) *Database {
	return &Database{
		c:    c,
		name: name,
	}
}

// registryFunc is a database registry operation.
type registryFunc func(ctx context.Context, name string) (*Result, error)

// guard returns fn wrapped with the existence precondition check.
// The live list of databases is fetched on every call.
func (c *Client) guard(mustExist bool, op string, fn registryFunc) registryFunc {
	return func(ctx context.Context, name string) (*Result, error) {
		if err := validateName(op, name); err != nil {
			return nil, err
		}

		exists, err := c.Exists(ctx, name)
		if err != nil {
			return nil, err
		}

		switch {
		case mustExist && !exists:
			return nil, clienterrors.NewDatabaseNotFound(name)
		case !mustExist && exists:
			return nil, clienterrors.NewDatabaseExists(name)
		}

		return fn(ctx, name)
	}
}

// create issues the unguarded create request.
func (c *Client) create(ctx context.Context, name string) (*Result, error) {
	res, err := c.w.Do(ctx, "create", &transport.Request{
		Method: http.MethodPut,
		Path:   dbPath(name),
	})
	if err != nil {
		return nil, err
	}

	return newResult(res, FormatText)
}

// drop issues the unguarded drop request.
func (c *Client) drop(ctx context.Context, name string) (*Result, error) {
	res, err := c.w.Do(ctx, "drop", &transport.Request{
		Method: http.MethodDelete,
		Path:   dbPath(name),
	})
	if err != nil {
		return nil, err
	}

	return newResult(res, FormatText)
}

// validateName checks that the database name can be used in a request path.
func validateName(op, name string) error {
	if name == "" {
		return clienterrors.NewInvalidRequest(op, "database name must not be empty")
	}

	// such paths are reserved by the server, e.g. "/_all_dbs"
	if strings.HasPrefix(name, "_") {
		return clienterrors.NewInvalidRequest(op, "database name %q must not start with an underscore", name)
	}

	return nil
}

// dbPath returns the escaped request path of the database, optionally with sub-resource segments.
func dbPath(name string, segments ...string) string {
	var sb strings.Builder

	sb.WriteString("/")
	sb.WriteString(url.PathEscape(name))

	for _, s := range segments {
		sb.WriteString("/")
		sb.WriteString(url.PathEscape(s))
	}

	return sb.String()
}
