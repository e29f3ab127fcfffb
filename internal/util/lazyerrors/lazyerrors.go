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

// Package lazyerrors provides error wrapping that records the caller's location.
//
// It is used for internal errors that should be diagnosable from the message alone.
// Errors that form part of the client's public contract are returned without it.
package lazyerrors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// located is an error annotated with the program counter of the function that created it.
type located struct {
	err error
	pc  uintptr
}

// Error implements error interface.
func (e located) Error() string {
	return "[" + location(e.pc) + "] " + e.err.Error()
}

// Unwrap returns the annotated error.
func (e located) Unwrap() error {
	return e.err
}

// location returns a short "file.go:line pkg.Func" string for pc.
func location(pc uintptr) string {
	if pc == 0 {
		return "unknown"
	}

	f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if f.File == "" {
		return "unknown"
	}

	_, file := filepath.Split(f.File)
	res := file + ":" + strconv.Itoa(f.Line)

	if f.Function != "" {
		res += " " + f.Function[strings.LastIndex(f.Function, "/")+1:]
	}

	return res
}

// caller returns the program counter of the caller of the exported function.
func caller() uintptr {
	pcs := make([]uintptr, 1)

	// skip runtime.Callers, caller, and the exported function
	if runtime.Callers(3, pcs) < 1 {
		return 0
	}

	return pcs[0]
}

// New returns a new error with the given text, annotated with the caller's location.
func New(s string) error {
	return located{err: errors.New(s), pc: caller()}
}

// Error annotates err with the caller's location.
//
// It panics if err is nil.
func Error(err error) error {
	if err == nil {
		panic("lazyerrors.Error: err is nil")
	}

	return located{err: err, pc: caller()}
}

// Errorf returns a formatted error annotated with the caller's location.
// The %w verb is supported.
func Errorf(format string, a ...any) error {
	return located{err: fmt.Errorf(format, a...), pc: caller()}
}
