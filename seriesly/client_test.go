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
	"errors"
	"net/http"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/seriesly/internal/util/testutil"
	"github.com/FerretDB/seriesly/internal/util/testutil/serieslytest"
)

// setup returns a client connected to a new in-memory server.
func setup(t *testing.T, opts ...Option) (*Client, *serieslytest.Server) {
	t.Helper()

	s := serieslytest.New(t)

	opts = append([]Option{
		WithBaseURL(s.URL()),
		WithLogger(testutil.SLogger(t)),
		WithRetryDelay(time.Millisecond),
	}, opts...)

	c, err := New(opts...)
	require.NoError(t, err)

	return c, s
}

func TestScenario(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, _ := setup(t)

	_, err := c.Create(ctx, "ts1")
	require.NoError(t, err)

	names, err := c.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "ts1")

	db := c.Database("ts1")

	_, err = db.Append(ctx, Document{"value": 42}, nil)
	require.NoError(t, err)

	res, err := db.Query(ctx, Params{"group": 3600, "ptr": "/value", "reducer": "sum"}, FormatStructured)
	require.NoError(t, err)

	data, ok := res.Data.(map[string]any)
	require.True(t, ok, "%T", res.Data)
	require.NotEmpty(t, data)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	last := data[keys[len(keys)-1]].([]any)
	assert.Equal(t, float64(42), last[0])

	_, err = c.Drop(ctx, "ts1")
	require.NoError(t, err)

	names, err = c.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "ts1")
}

func TestCreate(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, s := setup(t)

	res, err := c.Create(ctx, "ts1")
	require.NoError(t, err)
	assert.Equal(t, 201, res.StatusCode)
	assert.Equal(t, []string{"ts1"}, s.Databases())

	_, err = c.Database("ts1").Append(ctx, Document{"v": 1}, nil)
	require.NoError(t, err)

	requests := s.Requests()

	_, err = c.Create(ctx, "ts1")
	require.ErrorIs(t, err, ErrDatabaseExists)

	var de *DatabaseError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DatabaseExists, de.Code)
	assert.Equal(t, "ts1", de.Name)

	// only the list request was sent, the database is intact
	assert.Equal(t, requests+1, s.Requests())
	assert.Equal(t, []string{"ts1"}, s.Databases())
	assert.Equal(t, 1, s.Documents("ts1"))
}

func TestDrop(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, s := setup(t)

	_, err := c.Drop(ctx, "ts1")
	require.ErrorIs(t, err, ErrDatabaseNotFound)
	assert.NotErrorIs(t, err, ErrDatabaseExists)

	var de *DatabaseError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DatabaseNotFound, de.Code)
	assert.Equal(t, "ts1", de.Name)
	assert.Equal(t, 1, s.Requests())

	_, err = c.Create(ctx, "ts1")
	require.NoError(t, err)

	_, err = c.Drop(ctx, "ts1")
	require.NoError(t, err)
	assert.Empty(t, s.Databases())
}

func TestList(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, _ := setup(t)

	names, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, names)

	for _, name := range []string{"b", "a", "c d"} {
		_, err = c.Create(ctx, name)
		require.NoError(t, err)
	}

	names, err = c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c d"}, names)

	again, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, names, again)

	exists, err := c.Exists(ctx, "c d")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.Exists(ctx, "c")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInvalidNames(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, s := setup(t)

	for _, name := range []string{"", "_all_dbs"} {
		_, err := c.Create(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidRequest)

		_, err = c.Drop(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidRequest)

		_, err = c.Exists(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidRequest)

		_, err = c.Database(name).Info(ctx, FormatStructured)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}

	assert.Equal(t, 0, s.Requests())
}

func TestAppendGet(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, _ := setup(t)

	_, err := c.Create(ctx, "ts1")
	require.NoError(t, err)

	db := c.Database("ts1")
	assert.Equal(t, "ts1", db.Name())

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	doc := Document{
		"value": 42.5,
		"tags":  map[string]any{"host": "a"},
		"list":  []any{"x", true},
	}

	res, err := db.Append(ctx, doc, &AppendOpts{Timestamp: pointer.ToTime(ts)})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"2024-03-01T09:00:00Z"}`, res.Text())
	assert.Nil(t, res.Data)

	res, err = db.Get(ctx, "2024-03-01T09:00:00Z", FormatStructured)
	require.NoError(t, err)
	assert.Equal(t, map[string]any(doc), res.Data)

	var actual Document
	require.NoError(t, res.Decode(&actual))
	assert.Equal(t, doc, actual)

	res, err = db.Get(ctx, "2024-03-01T09:00:00Z", FormatText)
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	testutil.AssertEqualJSON(t, `{"list":["x",true],"tags":{"host":"a"},"value":42.5}`, res.Text())

	_, err = db.Get(ctx, "2024-03-01T11:00:00Z", FormatStructured)
	require.ErrorIs(t, err, ErrRequestRejected)

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 404, re.StatusCode)
	assert.Contains(t, string(re.Body), "not found")
}

func TestAppendInvalid(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, s := setup(t)
	db := c.Database("ts1")

	for name, doc := range map[string]Document{
		"Nil":         nil,
		"Empty":       {},
		"Unencodable": {"ch": make(chan int)},
	} {
		_, err := db.Append(ctx, doc, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}

	_, err := db.Get(ctx, "", FormatStructured)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = db.GetAll(ctx, &AllOpts{Limit: pointer.ToInt(-1)}, FormatStructured)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = db.Info(ctx, Format(42))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, s.Requests())
}

func TestQueryInvalid(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, s := setup(t)
	db := c.Database("ts1")

	for name, params := range map[string]Params{
		"Nil":        nil,
		"Empty":      {},
		"UnknownKey": {"ptr": "/v", "reducer": "sum", "limit": 10},
		"NilValue":   {"ptr": nil},
		"EmptySlice": {"ptr": []string{}},
		"BadType":    {"group": map[string]int{}},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := db.Query(ctx, params, FormatStructured)
			require.ErrorIs(t, err, ErrInvalidRequest)

			var ie *InvalidRequestError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, "query", ie.Op)
		})
	}

	t.Cleanup(func() {
		assert.Equal(t, 0, s.Requests())
	})
}

func TestQuery(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, _ := setup(t)

	_, err := c.Create(ctx, "ts1")
	require.NoError(t, err)

	db := c.Database("ts1")
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, v := range []float64{1, 2, 3, 4} {
		ts := base.Add(time.Duration(i) * 30 * time.Minute)
		_, err = db.Append(ctx, Document{"v": v}, &AppendOpts{Timestamp: &ts})
		require.NoError(t, err)
	}

	res, err := db.Query(ctx, Params{
		"group":   time.Hour,
		"ptr":     []string{"/v", "/v"},
		"reducer": []string{"min", "max"},
		"from":    base,
	}, FormatStructured)
	require.NoError(t, err)

	expected := map[string]any{
		"1709251200000": []any{float64(1), float64(2)},
		"1709254800000": []any{float64(3), float64(4)},
	}
	assert.Equal(t, expected, res.Data)

	res, err = db.Query(ctx, Params{"group": 7200000, "ptr": "/v", "reducer": "sum"}, FormatText)
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	testutil.AssertEqualJSON(t, `{"1709251200000":[10]}`, res.Text())

	_, err = db.Query(ctx, Params{"ptr": "/v", "reducer": "median"}, FormatStructured)
	require.ErrorIs(t, err, ErrRequestRejected)
}

func TestGetAll(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, _ := setup(t)

	_, err := c.Create(ctx, "ts1")
	require.NoError(t, err)

	db := c.Database("ts1")
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err = db.Append(ctx, Document{"i": i}, &AppendOpts{Timestamp: pointer.ToTime(base.Add(time.Duration(i) * time.Second))})
		require.NoError(t, err)
	}

	res, err := db.GetAll(ctx, nil, FormatStructured)
	require.NoError(t, err)
	assert.Len(t, res.Data, 3)

	res, err = db.GetAll(ctx, &AllOpts{
		From: pointer.ToTime(base.Add(time.Second)),
	}, FormatStructured)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"2024-03-01T00:00:01Z": map[string]any{"i": float64(1)},
		"2024-03-01T00:00:02Z": map[string]any{"i": float64(2)},
	}, res.Data)

	res, err = db.GetAll(ctx, &AllOpts{
		To:    pointer.ToTime(base.Add(time.Second)),
		Limit: pointer.ToInt(1),
	}, FormatStructured)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"2024-03-01T00:00:00Z": map[string]any{"i": float64(0)},
	}, res.Data)
}

func TestInfoCompact(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, _ := setup(t)

	_, err := c.Create(ctx, "ts1")
	require.NoError(t, err)

	db := c.Database("ts1")

	res, err := db.Compact(ctx)
	require.NoError(t, err)
	testutil.AssertEqualJSON(t, `{"ok":true}`, res.Text())

	res, err = db.Info(ctx, FormatStructured)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doc_count": float64(0), "compactions": float64(1)}, res.Data)
}

func TestDatabasePermissive(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	c, s := setup(t)

	// no request is sent on open
	db := c.Database("missing")
	assert.Equal(t, 0, s.Requests())

	_, err := db.Info(ctx, FormatStructured)
	require.ErrorIs(t, err, ErrRequestRejected)

	_, err = db.Append(ctx, Document{"v": 1}, nil)
	require.ErrorIs(t, err, ErrRequestRejected)

	_, err = db.Compact(ctx)
	require.ErrorIs(t, err, ErrRequestRejected)
}

// countingTransport counts round trips passed to the default transport.
type countingTransport struct {
	n atomic.Int32
}

func (ct *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ct.n.Add(1)
	return http.DefaultTransport.RoundTrip(req)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	ct := new(countingTransport)
	c, _ := setup(t, WithHTTPClient(&http.Client{Transport: ct}))

	_, err := c.Create(ctx, "ts1")
	require.NoError(t, err)

	// list for the guard, then create
	assert.EqualValues(t, 2, ct.n.Load())
}

func TestConnectionFailed(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	m := NewMetrics()
	c, s := setup(t, WithMaxRetries(3), WithMetrics(m))
	s.Close()

	_, err := c.List(ctx)
	require.ErrorIs(t, err, ErrConnectionFailed)

	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.Attempts)
	assert.Error(t, ce.Err)

	_, err = c.Create(ctx, "ts1")
	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.NotErrorIs(t, err, ErrDatabaseExists)

	assert.Equal(t, map[string]map[string]int{
		"list": {"connection_failed": 2},
	}, m.GetResponses())
}

func TestCanceled(t *testing.T) {
	t.Parallel()

	c, s := setup(t, WithRetryDelay(time.Hour))
	s.Close()

	ctx, cancel := context.WithTimeout(testutil.Ctx(t), 50*time.Millisecond)
	defer cancel()

	start := time.Now()

	_, err := c.List(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "%v", err)
	assert.NotErrorIs(t, err, ErrConnectionFailed)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestNew(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:3133", c.BaseURL())

	c, err = New(WithHost("::1"), WithPort(8080))
	require.NoError(t, err)
	assert.Equal(t, "http://[::1]:8080", c.BaseURL())

	c, err = New(WithBaseURL("https://example.com/"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", c.BaseURL())

	for name, opts := range map[string][]Option{
		"EmptyHost":   {WithHost("")},
		"BadPort":     {WithPort(0)},
		"BadScheme":   {WithBaseURL("ftp://example.com")},
		"BadRetries":  {WithMaxRetries(0)},
		"BadDelay":    {WithRetryDelay(-time.Second)},
		"QueryInBase": {WithBaseURL("http://example.com/?a=b")},
	} {
		_, err = New(opts...)
		assert.Error(t, err, name)
	}
}
