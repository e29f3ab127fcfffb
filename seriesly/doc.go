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

// Package seriesly provides a client for the seriesly time-series database.
//
// A [Client] manages databases on one server:
//
//	c, err := seriesly.New(seriesly.WithHost("127.0.0.1"), seriesly.WithPort(3133))
//	if err != nil {
//		return err
//	}
//
//	if _, err = c.Create(ctx, "ts1"); err != nil {
//		return err
//	}
//
//	db := c.Database("ts1")
//	_, err = db.Append(ctx, seriesly.Document{"value": 42}, nil)
//
// Every request is retried if the server can't be reached;
// see [WithMaxRetries] and [WithRetryDelay].
// All returned errors can be matched with [errors.Is] against the Err* values of this package,
// or with [errors.As] against the error types.
package seriesly
