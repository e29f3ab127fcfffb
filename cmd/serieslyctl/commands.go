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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/araddon/dateparse"

	"github.com/FerretDB/seriesly/internal/dump"
	"github.com/FerretDB/seriesly/internal/util/lazyerrors"
	"github.com/FerretDB/seriesly/seriesly"
)

// command runs parsed commands against the client.
type command struct {
	c      *seriesly.Client
	cli    *flags
	format seriesly.Format
	stdin  io.Reader
	stdout io.Writer
	l      *slog.Logger
}

// run runs the command with the given kong name, e.g. "create <name>".
func (cmd *command) run(ctx context.Context, name string) error {
	cli := cmd.cli

	switch name {
	case "list":
		names, err := cmd.c.List(ctx)
		if err != nil {
			return err
		}

		for _, n := range names {
			if _, err = fmt.Fprintln(cmd.stdout, n); err != nil {
				return lazyerrors.Error(err)
			}
		}

		return nil

	case "create <name>":
		return cmd.print(cmd.c.Create(ctx, cli.Create.Name))

	case "drop <name>":
		return cmd.print(cmd.c.Drop(ctx, cli.Drop.Name))

	case "info <name>":
		return cmd.print(cmd.c.Database(cli.Info.Name).Info(ctx, cmd.format))

	case "append <name> <document>":
		return cmd.append(ctx)

	case "query <name>":
		return cmd.query(ctx)

	case "get <name> <key>":
		return cmd.print(cmd.c.Database(cli.Get.Name).Get(ctx, cli.Get.Key, cmd.format))

	case "all <name>":
		opts, err := allOpts(&cli.All.Range, cli.All.Limit)
		if err != nil {
			return err
		}

		return cmd.print(cmd.c.Database(cli.All.Name).GetAll(ctx, opts, cmd.format))

	case "compact <name>":
		return cmd.print(cmd.c.Database(cli.Compact.Name).Compact(ctx))

	case "dump <name> <file>":
		opts, err := allOpts(&cli.Dump.Range, cli.Dump.Limit)
		if err != nil {
			return err
		}

		n, err := dump.Export(ctx, cmd.c.Database(cli.Dump.Name), cli.Dump.File, opts, cmd.l)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.stdout, "Exported %d document(s) to %s.\n", n, cli.Dump.File)

		return err

	case "restore <file> <from> <name>":
		n, err := dump.Import(ctx, cli.Restore.File, cli.Restore.From, cmd.c.Database(cli.Restore.Name), cmd.l)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.stdout, "Imported %d document(s) from %s.\n", n, cli.Restore.File)

		return err

	default:
		return lazyerrors.Errorf("unhandled command %q", name)
	}
}

// append reads the document and appends it.
func (cmd *command) append(ctx context.Context) error {
	cli := cmd.cli

	b := []byte(cli.Append.Document)

	if cli.Append.Document == "-" {
		var err error
		if b, err = io.ReadAll(cmd.stdin); err != nil {
			return lazyerrors.Error(err)
		}
	}

	var doc seriesly.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("document must be a JSON object: %w", err)
	}

	ts, err := parseTime(cli.Append.TS)
	if err != nil {
		return err
	}

	return cmd.print(cmd.c.Database(cli.Append.Name).Append(ctx, doc, &seriesly.AppendOpts{Timestamp: ts}))
}

// query builds parameters from flags and runs the query.
func (cmd *command) query(ctx context.Context) error {
	cli := cmd.cli

	params := seriesly.Params{
		"group":   cli.Query.Group,
		"ptr":     cli.Query.Ptr,
		"reducer": cli.Query.Reducer,
	}

	from, err := parseTime(cli.Query.Range.From)
	if err != nil {
		return err
	}

	if from != nil {
		params["from"] = *from
	}

	to, err := parseTime(cli.Query.Range.To)
	if err != nil {
		return err
	}

	if to != nil {
		params["to"] = *to
	}

	return cmd.print(cmd.c.Database(cli.Query.Name).Query(ctx, params, cmd.format))
}

// print writes the result in the selected format.
func (cmd *command) print(res *seriesly.Result, err error) error {
	if err != nil {
		return err
	}

	if cmd.format == seriesly.FormatText || res.Data == nil {
		text := strings.TrimRight(res.Text(), "\n")
		if text == "" {
			return nil
		}

		_, err = fmt.Fprintln(cmd.stdout, text)

		return err
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")

	if err = enc.Encode(res.Data); err != nil {
		return lazyerrors.Error(err)
	}

	_, err = cmd.stdout.Write(buf.Bytes())

	return err
}

// allOpts returns GetAll options from flags.
func allOpts(r *rangeFlags, limit int) (*seriesly.AllOpts, error) {
	var opts seriesly.AllOpts
	var err error

	if opts.From, err = parseTime(r.From); err != nil {
		return nil, err
	}

	if opts.To, err = parseTime(r.To); err != nil {
		return nil, err
	}

	if limit >= 0 {
		opts.Limit = pointer.ToInt(limit)
	}

	return &opts, nil
}

// parseTime parses a human-readable timestamp in UTC, returning nil for an empty string.
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", s, err)
	}

	return pointer.ToTime(t), nil
}
