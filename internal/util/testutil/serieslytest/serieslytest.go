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

// Package serieslytest provides an in-memory seriesly server for tests.
package serieslytest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FerretDB/seriesly/internal/util/logging"
	"github.com/FerretDB/seriesly/internal/util/testutil"
)

// Server is an in-memory seriesly server.
//
// It implements the HTTP API used by the client, including `_query` grouping and reducers,
// but keeps everything in memory and never flushes.
type Server struct {
	s        *httptest.Server
	l        *slog.Logger
	requests atomic.Int64

	rw  sync.RWMutex
	dbs map[string]*database
	now func() time.Time
}

// database stores documents ordered by timestamp.
type database struct {
	docs        []*document
	compactions int
}

// document is a stored JSON object.
type document struct {
	key string
	t   time.Time
	doc map[string]any
}

// New starts a new server that is closed when the test finishes.
func New(tb testing.TB) *Server {
	tb.Helper()

	s := NewServer(testutil.SLogger(tb))
	tb.Cleanup(s.Close)

	return s
}

// NewServer starts a new server. The caller should call [Server.Close].
func NewServer(l *slog.Logger) *Server {
	if l == nil {
		l = logging.Discard()
	}

	s := &Server{
		l:   l,
		dbs: map[string]*database{},
		now: time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_all_dbs", s.handleList)
	mux.HandleFunc("PUT /{db}", s.handleCreate)
	mux.HandleFunc("DELETE /{db}", s.handleDrop)
	mux.HandleFunc("GET /{db}", s.handleInfo)
	mux.HandleFunc("POST /{db}", s.handleAppend)
	mux.HandleFunc("GET /{db}/_query", s.handleQuery)
	mux.HandleFunc("GET /{db}/_all", s.handleAll)
	mux.HandleFunc("POST /{db}/_compact", s.handleCompact)
	mux.HandleFunc("GET /{db}/{key}", s.handleGet)

	s.s = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.l.Debug("Request", slog.String("method", r.Method), slog.String("url", r.URL.String()))
		mux.ServeHTTP(w, r)
	}))

	return s
}

// URL returns the base URL of the server, e.g. "http://127.0.0.1:12345".
func (s *Server) URL() string {
	return s.s.URL
}

// Close stops the server. Subsequent client requests fail to connect.
func (s *Server) Close() {
	s.s.Close()
}

// Requests returns the total number of handled requests.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// SetNow replaces the clock used for documents appended without explicit timestamp.
func (s *Server) SetNow(now func() time.Time) {
	s.rw.Lock()
	defer s.rw.Unlock()

	s.now = now
}

// Databases returns sorted database names.
func (s *Server) Databases() []string {
	s.rw.RLock()
	defer s.rw.RUnlock()

	res := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		res = append(res, name)
	}

	sort.Strings(res)

	return res
}

// Documents returns the number of documents in the given database, or -1 if it does not exist.
func (s *Server) Documents(name string) int {
	s.rw.RLock()
	defer s.rw.RUnlock()

	db := s.dbs[name]
	if db == nil {
		return -1
	}

	return len(db.docs)
}

// handleList handles GET /_all_dbs.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Databases())
}

// handleCreate handles PUT /{db}.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("db")

	s.rw.Lock()
	defer s.rw.Unlock()

	if _, ok := s.dbs[name]; ok {
		writeError(w, http.StatusConflict, "database %q already exists", name)
		return
	}

	s.dbs[name] = new(database)

	w.WriteHeader(http.StatusCreated)
}

// handleDrop handles DELETE /{db}.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("db")

	s.rw.Lock()
	defer s.rw.Unlock()

	if _, ok := s.dbs[name]; !ok {
		writeError(w, http.StatusNotFound, "database %q not found", name)
		return
	}

	delete(s.dbs, name)

	w.WriteHeader(http.StatusOK)
}

// handleInfo handles GET /{db}.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.rw.RLock()
	defer s.rw.RUnlock()

	db := s.lookup(w, r)
	if db == nil {
		return
	}

	info := map[string]any{
		"doc_count":   len(db.docs),
		"compactions": db.compactions,
	}

	if len(db.docs) > 0 {
		info["first"] = db.docs[0].key
		info["last"] = db.docs[len(db.docs)-1].key
	}

	writeJSON(w, http.StatusOK, info)
}

// handleAppend handles POST /{db}.
func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document: %s", err)
		return
	}

	s.rw.Lock()
	defer s.rw.Unlock()

	db := s.lookup(w, r)
	if db == nil {
		return
	}

	t := s.now()

	if ts := r.URL.Query().Get("ts"); ts != "" {
		var err error
		if t, err = parseTime(ts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid ts: %s", err)
			return
		}
	}

	d := &document{
		key: formatKey(t),
		t:   t.UTC(),
		doc: doc,
	}

	// same timestamp replaces the document
	i, found := slices.BinarySearchFunc(db.docs, d.t, func(e *document, t time.Time) int {
		return e.t.Compare(t)
	})
	if found {
		db.docs[i] = d
	} else {
		db.docs = slices.Insert(db.docs, i, d)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": d.key})
}

// handleGet handles GET /{db}/{key}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.rw.RLock()
	defer s.rw.RUnlock()

	db := s.lookup(w, r)
	if db == nil {
		return
	}

	key := r.PathValue("key")

	t, err := parseTime(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key: %s", err)
		return
	}

	for _, d := range db.docs {
		if d.t.Equal(t) {
			writeJSON(w, http.StatusOK, d.doc)
			return
		}
	}

	writeError(w, http.StatusNotFound, "document %q not found", key)
}

// handleAll handles GET /{db}/_all.
func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	s.rw.RLock()
	defer s.rw.RUnlock()

	db := s.lookup(w, r)
	if db == nil {
		return
	}

	q := r.URL.Query()

	from, to, ok := parseRange(w, q.Get("from"), q.Get("to"))
	if !ok {
		return
	}

	limit := -1

	if l := q.Get("limit"); l != "" {
		var err error
		if limit, err = strconv.Atoi(l); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", l)
			return
		}
	}

	res := map[string]any{}

	for _, d := range db.docs {
		if limit >= 0 && len(res) >= limit {
			break
		}

		if inRange(d.t, from, to) {
			res[d.key] = d.doc
		}
	}

	writeJSON(w, http.StatusOK, res)
}

// handleCompact handles POST /{db}/_compact.
func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	s.rw.Lock()
	defer s.rw.Unlock()

	db := s.lookup(w, r)
	if db == nil {
		return
	}

	db.compactions++

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// lookup returns the database named in the request path,
// or writes an error response and returns nil.
//
// The caller must hold the lock.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *database {
	name := r.PathValue("db")

	db := s.dbs[name]
	if db == nil {
		writeError(w, http.StatusNotFound, "database %q not found", name)
	}

	return db
}

// formatKey returns the document key for the given time.
func formatKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses RFC 3339 time or Unix time in milliseconds.
func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}

	return t.UTC(), nil
}

// parseRange parses optional from and to bounds,
// or writes an error response and returns false.
func parseRange(w http.ResponseWriter, fromS, toS string) (from, to time.Time, ok bool) {
	var err error

	if fromS != "" {
		if from, err = parseTime(fromS); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: %s", err)
			return
		}
	}

	if toS != "" {
		if to, err = parseTime(toS); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: %s", err)
			return
		}
	}

	ok = true

	return
}

// inRange returns true if t is within [from, to]; zero bounds are open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}

	if !to.IsZero() && t.After(to) {
		return false
	}

	return true
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, code int, format string, a ...any) {
	writeJSON(w, code, map[string]string{
		"error":  http.StatusText(code),
		"reason": fmt.Sprintf(format, a...),
	})
}
