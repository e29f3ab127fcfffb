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

package serieslytest

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// reducer aggregates values found by a JSON pointer within one group.
type reducer func(values []any) any

// reducers contains supported reducers by name.
var reducers = map[string]reducer{
	"any": func(values []any) any {
		if len(values) == 0 {
			return nil
		}

		return values[0]
	},
	"identity": func(values []any) any {
		return values
	},
	"count": func(values []any) any {
		return len(values)
	},
	"sum": func(values []any) any {
		var res float64
		for _, f := range numbers(values) {
			res += f
		}

		return res
	},
	"sumsq": func(values []any) any {
		var res float64
		for _, f := range numbers(values) {
			res += f * f
		}

		return res
	},
	"avg": func(values []any) any {
		nums := numbers(values)
		if len(nums) == 0 {
			return nil
		}

		var sum float64
		for _, f := range nums {
			sum += f
		}

		return sum / float64(len(nums))
	},
	"min": func(values []any) any {
		nums := numbers(values)
		if len(nums) == 0 {
			return nil
		}

		res := math.Inf(1)
		for _, f := range nums {
			res = math.Min(res, f)
		}

		return res
	},
	"max": func(values []any) any {
		nums := numbers(values)
		if len(nums) == 0 {
			return nil
		}

		res := math.Inf(-1)
		for _, f := range nums {
			res = math.Max(res, f)
		}

		return res
	},
}

// numbers returns numeric values, skipping everything else.
func numbers(values []any) []float64 {
	res := make([]float64, 0, len(values))

	for _, v := range values {
		switch v := v.(type) {
		case float64:
			res = append(res, v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				res = append(res, f)
			}
		}
	}

	return res
}

// handleQuery handles GET /{db}/_query.
//
// Documents are grouped by `group` milliseconds; for each group and each `ptr`/`reducer` pair
// the reduced value is returned. Response is an object keyed by group start in Unix milliseconds.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.rw.RLock()
	defer s.rw.RUnlock()

	db := s.lookup(w, r)
	if db == nil {
		return
	}

	q, err := parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err)
		return
	}

	from, to, ok := parseRange(w, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if !ok {
		return
	}

	groups := map[int64][][]any{}

	for _, d := range db.docs {
		if !inRange(d.t, from, to) {
			continue
		}

		ms := d.t.UnixMilli()
		g := ms - ms%q.group

		values := groups[g]
		if values == nil {
			values = make([][]any, len(q.ptrs))
			groups[g] = values
		}

		for i, ptr := range q.ptrs {
			if v, ok := resolvePointer(d.doc, ptr); ok {
				values[i] = append(values[i], v)
			}
		}
	}

	res := make(map[string][]any, len(groups))

	for g, values := range groups {
		row := make([]any, len(q.ptrs))
		for i := range q.ptrs {
			row[i] = q.reducers[i](values[i])
		}

		res[strconv.FormatInt(g, 10)] = row
	}

	writeJSON(w, http.StatusOK, res)
}

// query represents parsed `_query` parameters.
type query struct {
	group    int64
	ptrs     []string
	reducers []reducer
}

// parseQuery parses and validates `_query` parameters.
func parseQuery(v url.Values) (*query, error) {
	q := &query{
		group: 1,
		ptrs:  v["ptr"],
	}

	if g := v.Get("group"); g != "" {
		var err error
		if q.group, err = strconv.ParseInt(g, 10, 64); err != nil || q.group <= 0 {
			return nil, fmt.Errorf("invalid group %q", g)
		}
	}

	names := v["reducer"]

	if len(q.ptrs) == 0 {
		return nil, fmt.Errorf("at least one ptr is required")
	}

	if len(q.ptrs) != len(names) {
		return nil, fmt.Errorf("got %d ptrs and %d reducers", len(q.ptrs), len(names))
	}

	for _, name := range names {
		f := reducers[name]
		if f == nil {
			return nil, fmt.Errorf("unknown reducer %q", name)
		}

		q.reducers = append(q.reducers, f)
	}

	return q, nil
}

// resolvePointer returns the value at the given JSON pointer (RFC 6901).
func resolvePointer(doc map[string]any, ptr string) (any, bool) {
	if ptr == "" {
		return doc, true
	}

	if !strings.HasPrefix(ptr, "/") {
		return nil, false
	}

	var cur any = doc

	for _, token := range strings.Split(ptr[1:], "/") {
		token = strings.NewReplacer("~1", "/", "~0", "~").Replace(token)

		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[token]
			if !ok {
				return nil, false
			}

			cur = v

		case []any:
			i, err := strconv.Atoi(token)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}

			cur = c[i]

		default:
			return nil, false
		}
	}

	return cur, true
}
