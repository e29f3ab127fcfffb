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

// Package dump exports seriesly databases to SQLite files and imports them back.
package dump

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"time"

	_ "modernc.org/sqlite" // register database/sql driver

	"github.com/FerretDB/seriesly/internal/util/lazyerrors"
	"github.com/FerretDB/seriesly/internal/util/logging"
	"github.com/FerretDB/seriesly/seriesly"
)

// schema creates the documents table.
const schema = `CREATE TABLE IF NOT EXISTS documents (
	database TEXT NOT NULL,
	key      TEXT NOT NULL,
	ts_ms    INTEGER,
	doc      TEXT NOT NULL,
	PRIMARY KEY (database, key)
)`

// Source is a database to export.
type Source interface {
	Name() string
	GetAll(ctx context.Context, opts *seriesly.AllOpts, f seriesly.Format) (*seriesly.Result, error)
}

// Sink is a database to import into.
type Sink interface {
	Name() string
	Append(ctx context.Context, doc seriesly.Document, opts *seriesly.AppendOpts) (*seriesly.Result, error)
}

// Entry is a single exported document.
type Entry struct {
	Key string

	// Time is parsed from Key; zero if Key is not a timestamp.
	Time time.Time

	Doc seriesly.Document
}

// open opens the SQLite file.
// If readOnly is false, the file and the documents table are created if needed.
// Otherwise, the file must exist.
func open(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	uri := "file:" + path + "?_pragma=busy_timeout%2810000%29"

	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, lazyerrors.Error(err)
		}

		uri += "&mode=ro"
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	db.SetMaxOpenConns(1)

	if readOnly {
		return db, nil
	}

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, lazyerrors.Error(err)
	}

	return db, nil
}

// Export writes documents of src selected by opts (which may be nil) into the SQLite file.
// Documents exported earlier with the same keys are replaced.
//
// It returns the number of written documents.
func Export(ctx context.Context, src Source, path string, opts *seriesly.AllOpts, l *slog.Logger) (int, error) {
	if l == nil {
		l = logging.Discard()
	}

	res, err := src.GetAll(ctx, opts, seriesly.FormatText)
	if err != nil {
		return 0, err
	}

	var docs map[string]json.RawMessage
	if err = res.Decode(&docs); err != nil {
		return 0, lazyerrors.Error(err)
	}

	db, err := open(ctx, path, false)
	if err != nil {
		return 0, err
	}

	defer db.Close() //nolint:errcheck // error is checked by Commit

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	const q = `INSERT OR REPLACE INTO documents (database, key, ts_ms, doc) VALUES (?, ?, ?, ?)`

	for _, k := range keys {
		var ts sql.NullInt64
		if t, err := time.Parse(time.RFC3339Nano, k); err == nil {
			ts = sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
		}

		if _, err = tx.ExecContext(ctx, q, src.Name(), k, ts, string(docs[k])); err != nil {
			return 0, lazyerrors.Error(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, lazyerrors.Error(err)
	}

	l.InfoContext(ctx, "Exported", slog.String("database", src.Name()), slog.Int("documents", len(keys)), slog.String("path", path))

	return len(keys), nil
}

// Read returns documents of the named database stored in the SQLite file, ordered by key.
// The file must exist; it is never created.
func Read(ctx context.Context, path, database string) ([]Entry, error) {
	db, err := open(ctx, path, true)
	if err != nil {
		return nil, err
	}

	defer db.Close() //nolint:errcheck // we are only reading it

	rows, err := db.QueryContext(ctx, `SELECT key, doc FROM documents WHERE database = ? ORDER BY key`, database)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	defer rows.Close()

	var res []Entry

	for rows.Next() {
		var key, doc string
		if err = rows.Scan(&key, &doc); err != nil {
			return nil, lazyerrors.Error(err)
		}

		e := Entry{Key: key}

		if err = json.Unmarshal([]byte(doc), &e.Doc); err != nil {
			return nil, lazyerrors.Errorf("document %q: %w", key, err)
		}

		if t, err := time.Parse(time.RFC3339Nano, key); err == nil {
			e.Time = t
		}

		res = append(res, e)
	}

	if err = rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// Import appends documents of the named database stored in the SQLite file to dst,
// keeping their timestamps.
//
// It returns the number of appended documents.
func Import(ctx context.Context, path, database string, dst Sink, l *slog.Logger) (int, error) {
	if l == nil {
		l = logging.Discard()
	}

	entries, err := Read(ctx, path, database)
	if err != nil {
		return 0, err
	}

	for i, e := range entries {
		var opts *seriesly.AppendOpts
		if !e.Time.IsZero() {
			opts = &seriesly.AppendOpts{Timestamp: &e.Time}
		}

		if _, err = dst.Append(ctx, e.Doc, opts); err != nil {
			return i, err
		}
	}

	l.InfoContext(ctx, "Imported", slog.String("database", dst.Name()), slog.Int("documents", len(entries)), slog.String("path", path))

	return len(entries), nil
}

// check interfaces
var (
	_ Source = (*seriesly.Database)(nil)
	_ Sink   = (*seriesly.Database)(nil)
)
