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

import "github.com/FerretDB/seriesly/internal/clienterrors"

// Sentinel errors for [errors.Is] matching.
var (
	ErrConnectionFailed = clienterrors.ErrConnectionFailed
	ErrRequestRejected  = clienterrors.ErrRequestRejected
	ErrDatabaseNotFound = clienterrors.ErrDatabaseNotFound
	ErrDatabaseExists   = clienterrors.ErrDatabaseExists
	ErrInvalidRequest   = clienterrors.ErrInvalidRequest
)

type (
	// ConnectionError is returned when the server could not be reached within the retry budget.
	ConnectionError = clienterrors.ConnectionError

	// RequestError is returned when the server responded with HTTP status >= 400.
	RequestError = clienterrors.RequestError

	// DatabaseError is returned when a database existence precondition is violated.
	DatabaseError = clienterrors.DatabaseError

	// DatabaseErrorCode distinguishes DatabaseError kinds.
	DatabaseErrorCode = clienterrors.DatabaseErrorCode

	// InvalidRequestError is returned for malformed input before any request is sent.
	InvalidRequestError = clienterrors.InvalidRequestError
)

// DatabaseError codes.
const (
	DatabaseNotFound = clienterrors.DatabaseNotFound
	DatabaseExists   = clienterrors.DatabaseExists
)
