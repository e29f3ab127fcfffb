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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/FerretDB/seriesly/internal/transport"
	"github.com/FerretDB/seriesly/internal/util/lazyerrors"
)

// Format selects how a response body is presented in [Result].
type Format int

const (
	// FormatStructured decodes the JSON body into [Result.Data]. It is the default.
	FormatStructured Format = iota

	// FormatText leaves the body as-is; [Result.Data] is nil.
	FormatText
)

// String implements [fmt.Stringer].
func (f Format) String() string {
	switch f {
	case FormatStructured:
		return "structured"
	case FormatText:
		return "text"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat returns the Format with the given name.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "structured", "json":
		return FormatStructured, nil
	case "text", "raw":
		return FormatText, nil
	default:
		return 0, lazyerrors.Errorf("unknown format %q", s)
	}
}

// Result represents a successful response.
type Result struct {
	// StatusCode is the HTTP status code, always below 400.
	StatusCode int

	// Body is the raw response body.
	Body []byte

	// Data is the decoded body for FormatStructured; nil for FormatText or empty body.
	// JSON objects are decoded into map[string]any, arrays into []any, numbers into float64.
	Data any
}

// Text returns the raw response body as a string.
func (r *Result) Text() string {
	return string(r.Body)
}

// Decode decodes the JSON response body into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// newResult converts the transport response into Result in the given format.
func newResult(res *transport.Response, f Format) (*Result, error) {
	r := &Result{
		StatusCode: res.StatusCode,
		Body:       res.Body,
	}

	switch f {
	case FormatStructured:
		if len(bytes.TrimSpace(res.Body)) == 0 {
			return r, nil
		}

		if err := json.Unmarshal(res.Body, &r.Data); err != nil {
			return nil, lazyerrors.Error(err)
		}

	case FormatText:
		// nothing

	default:
		return nil, lazyerrors.Errorf("unexpected format %s", f)
	}

	return r, nil
}
