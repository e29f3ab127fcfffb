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

// Package transport provides a single-round-trip HTTP transport for the seriesly client.
//
// Transport does not retry and does not interpret HTTP status codes;
// both are the job of the retry package.
package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
)

// Request represents a single request to the seriesly server.
type Request struct {
	Method string

	// Path is the escaped resource path starting with a slash, e.g. "/ts1/_query".
	Path string

	// Query contains query parameters; keys may be repeated.
	Query url.Values

	// Body is sent as JSON if not nil.
	Body []byte
}

// Response represents a raw response of the seriesly server.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport issues a single request and returns a raw response.
//
// It returns *UnavailableError only if the connection could not be established.
// HTTP error status codes are returned as regular responses.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// UnavailableError indicates that the server could not be reached.
type UnavailableError struct {
	Err error
}

// Error implements error interface.
func (e *UnavailableError) Error() string {
	return "transport unavailable: " + e.Err.Error()
}

// Unwrap returns the underlying network error.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable returns true if err is or wraps *UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// isConnectFailure returns true if err indicates that the connection was not established.
// Errors after connect (such as a reset while reading the response) return false:
// the server may have already received and processed the request.
func isConnectFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED)
}

// check interfaces
var (
	_ error = (*UnavailableError)(nil)
)
