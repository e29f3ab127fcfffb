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
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"time"

	"github.com/FerretDB/seriesly/internal/clienterrors"
)

// Params represents query parameters.
//
// Allowed keys are "from", "to", "group", "ptr" and "reducer".
// A value may be a string, a number, a bool, [time.Time], [time.Duration],
// or a slice of those; slices are sent as repeated parameters.
//
// Time values are sent in RFC 3339 format; durations are sent in milliseconds.
type Params map[string]any

// queryKeys contains allowed Params keys.
var queryKeys = map[string]struct{}{
	"from":    {},
	"to":      {},
	"group":   {},
	"ptr":     {},
	"reducer": {},
}

// encode validates parameters and converts them to URL values.
func (p Params) encode(op string) (url.Values, error) {
	if len(p) == 0 {
		return nil, clienterrors.NewInvalidRequest(op, "parameters must not be empty")
	}

	res := make(url.Values, len(p))

	for k, v := range p {
		if _, ok := queryKeys[k]; !ok {
			return nil, clienterrors.NewInvalidRequest(op, "unexpected parameter %q", k)
		}

		values, err := encodeValue(v)
		if err != nil {
			return nil, clienterrors.NewInvalidRequest(op, "parameter %q: %s", k, err)
		}

		res[k] = values
	}

	return res, nil
}

// encodeValue converts a parameter value to one or more strings.
func encodeValue(v any) ([]string, error) {
	if v == nil {
		return nil, fmt.Errorf("nil value")
	}

	if s, err := encodeScalar(v); err == nil {
		return []string{s}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("unsupported type %T", v)
	}

	if rv.Len() == 0 {
		return nil, fmt.Errorf("empty %T", v)
	}

	res := make([]string, rv.Len())

	for i := range res {
		e := rv.Index(i).Interface()
		if e == nil {
			return nil, fmt.Errorf("nil element %d", i)
		}

		s, err := encodeScalar(e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		res[i] = s
	}

	return res, nil
}

// encodeScalar converts a single parameter value to a string.
func encodeScalar(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case time.Duration:
		return strconv.FormatInt(v.Milliseconds(), 10), nil
	case fmt.Stringer:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}
