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
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FerretDB/seriesly/internal/clienterrors"
	"github.com/FerretDB/seriesly/internal/transport"
	"github.com/FerretDB/seriesly/internal/util/lazyerrors"
)

// Document is a JSON object stored in a database.
type Document map[string]any

// Database is a handle for a single database.
//
// It holds no state besides the name; creating it has no server-side effect.
type Database struct {
	c    *Client
	name string
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.name
}

// AppendOpts represents [Database.Append] options.
type AppendOpts struct {
	// Timestamp of the document; the server assigns the current time if nil.
	Timestamp *time.Time
}

// AllOpts represents [Database.GetAll] options.
type AllOpts struct {
	// From and To are inclusive bounds; nil bounds are open.
	From *time.Time
	To   *time.Time

	// Limit is the maximum number of documents; unlimited if nil.
	Limit *int
}

// Append stores the document.
//
// The result body contains the server acknowledgment as-is.
func (db *Database) Append(ctx context.Context, doc Document, opts *AppendOpts) (*Result, error) {
	const op = "append"

	if err := validateName(op, db.name); err != nil {
		return nil, err
	}

	if len(doc) == 0 {
		return nil, clienterrors.NewInvalidRequest(op, "document must not be empty")
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, clienterrors.NewInvalidRequest(op, "document can't be encoded: %s", err)
	}

	var q url.Values

	if opts != nil && opts.Timestamp != nil {
		q = url.Values{"ts": {formatTime(*opts.Timestamp)}}
	}

	res, err := db.c.w.Do(ctx, op, &transport.Request{
		Method: http.MethodPost,
		Path:   dbPath(db.name),
		Query:  q,
		Body:   b,
	})
	if err != nil {
		return nil, err
	}

	return newResult(res, FormatText)
}

// Query runs the query with the given parameters.
//
// For FormatStructured, [Result.Data] is an object keyed by group start time
// with an array of reduced values (one per "ptr"/"reducer" pair).
func (db *Database) Query(ctx context.Context, params Params, f Format) (*Result, error) {
	const op = "query"

	if err := validateName(op, db.name); err != nil {
		return nil, err
	}

	q, err := params.encode(op)
	if err != nil {
		return nil, err
	}

	return db.get(ctx, op, dbPath(db.name, "_query"), q, f)
}

// Get returns a single document by its key (timestamp), e.g. "2024-03-01T10:00:00Z".
func (db *Database) Get(ctx context.Context, key string, f Format) (*Result, error) {
	const op = "get"

	if err := validateName(op, db.name); err != nil {
		return nil, err
	}

	if key == "" {
		return nil, clienterrors.NewInvalidRequest(op, "document key must not be empty")
	}

	return db.get(ctx, op, dbPath(db.name, key), nil, f)
}

// GetAll returns all documents, optionally limited by opts (which may be nil).
//
// For FormatStructured, [Result.Data] is an object keyed by document key.
func (db *Database) GetAll(ctx context.Context, opts *AllOpts, f Format) (*Result, error) {
	const op = "all"

	if err := validateName(op, db.name); err != nil {
		return nil, err
	}

	var q url.Values

	if opts != nil {
		q = url.Values{}

		if opts.From != nil {
			q.Set("from", formatTime(*opts.From))
		}

		if opts.To != nil {
			q.Set("to", formatTime(*opts.To))
		}

		if opts.Limit != nil {
			if *opts.Limit < 0 {
				return nil, clienterrors.NewInvalidRequest(op, "limit must not be negative")
			}

			q.Set("limit", strconv.Itoa(*opts.Limit))
		}
	}

	return db.get(ctx, op, dbPath(db.name, "_all"), q, f)
}

// Info returns database information.
func (db *Database) Info(ctx context.Context, f Format) (*Result, error) {
	const op = "info"

	if err := validateName(op, db.name); err != nil {
		return nil, err
	}

	return db.get(ctx, op, dbPath(db.name), nil, f)
}

// Compact triggers database compaction.
//
// The result body contains the server acknowledgment as-is.
func (db *Database) Compact(ctx context.Context) (*Result, error) {
	const op = "compact"

	if err := validateName(op, db.name); err != nil {
		return nil, err
	}

	res, err := db.c.w.Do(ctx, op, &transport.Request{
		Method: http.MethodPost,
		Path:   dbPath(db.name, "_compact"),
	})
	if err != nil {
		return nil, err
	}

	return newResult(res, FormatText)
}

// get issues GET request and converts the response into the given format.
func (db *Database) get(ctx context.Context, op, path string, q url.Values, f Format) (*Result, error) {
	if f != FormatStructured && f != FormatText {
		return nil, clienterrors.NewInvalidRequest(op, "unknown format %s", f)
	}

	res, err := db.c.w.Do(ctx, op, &transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  q,
	})
	if err != nil {
		return nil, err
	}

	r, err := newResult(res, f)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return r, nil
}

// formatTime formats the timestamp the way the server accepts it.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
