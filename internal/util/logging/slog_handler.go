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

package logging

import (
	"context"
	"log/slog"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapHandler is a [slog.Handler] that writes records to a zap core.
//
// Groups are flattened into dotted field names.
type zapHandler struct {
	l      *zap.Logger
	prefix string
	fields []zap.Field
}

// NewSlogHandler returns a [slog.Handler] writing to the given zap logger.
func NewSlogHandler(l *zap.Logger) slog.Handler {
	return &zapHandler{l: l}
}

// Enabled implements [slog.Handler].
func (zh *zapHandler) Enabled(_ context.Context, l slog.Level) bool {
	return zh.l.Core().Enabled(zapLevel(l))
}

// Handle implements [slog.Handler].
func (zh *zapHandler) Handle(_ context.Context, r slog.Record) error {
	ce := zh.l.Check(zapLevel(r.Level), r.Message)
	if ce == nil {
		return nil
	}

	if !r.Time.IsZero() {
		ce.Time = r.Time
	}

	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		ce.Caller = zapcore.NewEntryCaller(f.PC, f.File, f.Line, f.File != "")
	}

	fields := make([]zap.Field, len(zh.fields), len(zh.fields)+r.NumAttrs())
	copy(fields, zh.fields)

	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, zh.prefix, a)
		return true
	})

	ce.Write(fields...)

	return nil
}

// WithAttrs implements [slog.Handler].
func (zh *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return zh
	}

	fields := make([]zap.Field, len(zh.fields), len(zh.fields)+len(attrs))
	copy(fields, zh.fields)

	for _, a := range attrs {
		fields = appendField(fields, zh.prefix, a)
	}

	return &zapHandler{
		l:      zh.l,
		prefix: zh.prefix,
		fields: fields,
	}
}

// WithGroup implements [slog.Handler].
func (zh *zapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return zh
	}

	return &zapHandler{
		l:      zh.l,
		prefix: zh.prefix + name + ".",
		fields: zh.fields,
	}
}

// appendField converts slog attribute to zap fields and appends them.
func appendField(fields []zap.Field, prefix string, a slog.Attr) []zap.Field {
	v := a.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}

		for _, ga := range v.Group() {
			fields = appendField(fields, p, ga)
		}

		return fields
	}

	if a.Key == "" {
		return fields
	}

	key := prefix + a.Key

	switch v.Kind() {
	case slog.KindString:
		return append(fields, zap.String(key, v.String()))
	case slog.KindInt64:
		return append(fields, zap.Int64(key, v.Int64()))
	case slog.KindUint64:
		return append(fields, zap.Uint64(key, v.Uint64()))
	case slog.KindFloat64:
		return append(fields, zap.Float64(key, v.Float64()))
	case slog.KindBool:
		return append(fields, zap.Bool(key, v.Bool()))
	case slog.KindDuration:
		return append(fields, zap.Duration(key, v.Duration()))
	case slog.KindTime:
		return append(fields, zap.Time(key, v.Time()))
	default:
		if err, ok := v.Any().(error); ok {
			return append(fields, zap.NamedError(key, err))
		}

		return append(fields, zap.Any(key, v.Any()))
	}
}

// zapLevel converts slog level to the closest zap level.
func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// discardHandler is a [slog.Handler] that drops every record.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

// check interfaces
var (
	_ slog.Handler = (*zapHandler)(nil)
	_ slog.Handler = discardHandler{}
)
