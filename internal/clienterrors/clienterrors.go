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

// Package clienterrors provides the error taxonomy of the seriesly client.
//
// Every error returned to the caller either is one of the types below
// (matched with [errors.As]) or wraps one of the sentinel values (matched with [errors.Is]).
// The only exceptions are context cancellation errors, which are returned as-is.
package clienterrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for [errors.Is] matching.
var (
	// ErrConnectionFailed indicates that the connection could not be established
	// within the retry budget.
	ErrConnectionFailed = errors.New("seriesly: connection failed")

	// ErrRequestRejected indicates that the server responded with HTTP status >= 400.
	ErrRequestRejected = errors.New("seriesly: request rejected")

	// ErrDatabaseNotFound indicates that the database does not exist.
	ErrDatabaseNotFound = errors.New("seriesly: database not found")

	// ErrDatabaseExists indicates that the database already exists.
	ErrDatabaseExists = errors.New("seriesly: database already exists")

	// ErrInvalidRequest indicates malformed caller input detected before any network call.
	ErrInvalidRequest = errors.New("seriesly: invalid request")
)

// ConnectionError is returned when every connection attempt failed.
type ConnectionError struct {
	// Attempts is the number of connection attempts made.
	Attempts int

	// Err is the last underlying transport error.
	Err error
}

// Error implements error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("seriesly: connection failed after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the last underlying transport error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for [ErrConnectionFailed].
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// RequestError is returned when the server responded with HTTP status >= 400.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int

	// Body is the response body, usually a JSON or plain text error description.
	Body []byte
}

// Error implements error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf(
		"seriesly: %s %s rejected with status %d: %s",
		e.Method, e.Path, e.StatusCode, truncate(e.Body, 512),
	)
}

// Is implements error matching for [ErrRequestRejected].
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestRejected
}

// DatabaseErrorCode distinguishes existence precondition violations.
type DatabaseErrorCode int

const (
	// DatabaseNotFound is used when an existing database is required.
	DatabaseNotFound DatabaseErrorCode = iota + 1

	// DatabaseExists is used when an absent database is required.
	DatabaseExists
)

// String implements fmt.Stringer.
func (c DatabaseErrorCode) String() string {
	switch c {
	case DatabaseNotFound:
		return "DatabaseNotFound"
	case DatabaseExists:
		return "DatabaseExists"
	default:
		return fmt.Sprintf("DatabaseErrorCode(%d)", int(c))
	}
}

// DatabaseError is returned when an existence precondition is violated.
type DatabaseError struct {
	Code DatabaseErrorCode
	Name string
}

// NewDatabaseNotFound returns a new DatabaseError for the missing database.
func NewDatabaseNotFound(name string) *DatabaseError {
	return &DatabaseError{Code: DatabaseNotFound, Name: name}
}

// NewDatabaseExists returns a new DatabaseError for the existing database.
func NewDatabaseExists(name string) *DatabaseError {
	return &DatabaseError{Code: DatabaseExists, Name: name}
}

// Error implements error interface.
func (e *DatabaseError) Error() string {
	switch e.Code {
	case DatabaseNotFound:
		return fmt.Sprintf("seriesly: database %q not found", e.Name)
	case DatabaseExists:
		return fmt.Sprintf("seriesly: database %q already exists", e.Name)
	default:
		return fmt.Sprintf("seriesly: database %q: %s", e.Name, e.Code)
	}
}

// Is implements error matching for [ErrDatabaseNotFound] and [ErrDatabaseExists].
func (e *DatabaseError) Is(target error) bool {
	switch e.Code {
	case DatabaseNotFound:
		return target == ErrDatabaseNotFound
	case DatabaseExists:
		return target == ErrDatabaseExists
	default:
		return false
	}
}

// InvalidRequestError is returned for malformed caller input.
type InvalidRequestError struct {
	// Op is the operation name, e.g. "append" or "query".
	Op string

	// Reason describes what is wrong with the input.
	Reason string
}

// NewInvalidRequest returns a new InvalidRequestError with formatted reason.
func NewInvalidRequest(op, format string, a ...any) *InvalidRequestError {
	return &InvalidRequestError{
		Op:     op,
		Reason: fmt.Sprintf(format, a...),
	}
}

// Error implements error interface.
func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("seriesly: invalid %s request: %s", e.Op, e.Reason)
}

// Is implements error matching for [ErrInvalidRequest].
func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// truncate returns b as a string, truncated to n bytes.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}

	return string(b[:n]) + "..."
}

// check interfaces
var (
	_ error = (*ConnectionError)(nil)
	_ error = (*RequestError)(nil)
	_ error = (*DatabaseError)(nil)
	_ error = (*InvalidRequestError)(nil)
)
