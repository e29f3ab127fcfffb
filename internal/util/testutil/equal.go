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

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertEqualJSON asserts that two JSON texts are semantically equal.
// Object keys order and whitespace are ignored.
func AssertEqualJSON(tb testing.TB, expected, actual string) bool {
	tb.Helper()

	expectedS := normalizeJSON(tb, expected)
	actualS := normalizeJSON(tb, actual)

	if expectedS == actualS {
		return true
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expectedS),
		FromFile: "expected",
		B:        difflib.SplitLines(actualS),
		ToFile:   "actual",
		Context:  1,
	})
	require.NoError(tb, err)

	msg := fmt.Sprintf("Not equal: \nexpected: %s\nactual  : %s\n%s", expected, actual, diff)

	return assert.Fail(tb, msg)
}

// normalizeJSON returns indented JSON with sorted object keys.
func normalizeJSON(tb testing.TB, s string) string {
	tb.Helper()

	var v any
	require.NoError(tb, json.Unmarshal([]byte(s), &v), "invalid JSON: %s", s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	require.NoError(tb, enc.Encode(v))

	return buf.String()
}
