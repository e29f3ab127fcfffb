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

// Command serieslyctl manages seriesly databases and documents.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "golang.org/x/crypto/x509roots/fallback" // register root TLS certificates for minimal Docker images

	"github.com/FerretDB/seriesly/build/version"
	"github.com/FerretDB/seriesly/internal/config"
	"github.com/FerretDB/seriesly/internal/util/ctxutil"
	"github.com/FerretDB/seriesly/internal/util/logging"
	"github.com/FerretDB/seriesly/internal/util/must"
	"github.com/FerretDB/seriesly/internal/util/observability"
	"github.com/FerretDB/seriesly/seriesly"
)

// rangeFlags represents time range flags shared by several commands.
type rangeFlags struct {
	From string `help:"Lower bound, e.g. '2024-03-01 10:00' or RFC 3339."`
	To   string `help:"Upper bound, e.g. '2024-03-01 11:00' or RFC 3339."`
}

// flags represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
//nolint:vet // for readability
type flags struct {
	Config string `default:""           help:"YAML configuration file."                 short:"c"`
	Host   string `default:""           help:"Server host; overrides configuration file."`
	Port   int    `default:"0"          help:"Server port; overrides configuration file."`
	URL    string `default:""           help:"Server URL; overrides host and port."    name:"url"`
	Format string `default:"structured" help:"Output format: 'structured' or 'text'." enum:"structured,text"`

	Retries    int    `default:"0" help:"Total number of connection attempts; overrides configuration file."`
	RetryDelay string `default:""  help:"Delay between connection attempts, e.g. '500ms'; overrides configuration file."`

	Log struct {
		Level  string `default:"${default_log_level}" help:"${help_log_level}"`
		Format string `default:"console"              help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`

	OtelEndpoint string `default:"" help:"OpenTelemetry OTLP/HTTP endpoint, e.g. '127.0.0.1:4318'."`
	DebugMetrics bool   `default:"false" help:"Dump client metrics to stderr on exit."`

	List struct{} `cmd:"" help:"List databases."`

	Create struct {
		Name string `arg:"" help:"Database name."`
	} `cmd:"" help:"Create database."`

	Drop struct {
		Name string `arg:"" help:"Database name."`
	} `cmd:"" help:"Drop database."`

	Info struct {
		Name string `arg:"" help:"Database name."`
	} `cmd:"" help:"Show database information."`

	Append struct {
		Name     string `arg:"" help:"Database name."`
		Document string `arg:"" help:"JSON object; '-' reads it from stdin."`
		TS       string `help:"Document timestamp; the server assigns the current time if empty." name:"ts"`
	} `cmd:"" help:"Append document."`

	Query struct {
		Name    string        `arg:"" help:"Database name."`
		Group   time.Duration `default:"1m"  help:"Group interval."`
		Ptr     []string      `help:"JSON pointer of the value to reduce; repeatable." required:""`
		Reducer []string      `help:"Reducer for the corresponding pointer, e.g. 'sum' or 'avg'; repeatable." required:""`

		Range rangeFlags `embed:""`
	} `cmd:"" help:"Query documents."`

	Get struct {
		Name string `arg:"" help:"Database name."`
		Key  string `arg:"" help:"Document key (timestamp)."`
	} `cmd:"" help:"Get document."`

	All struct {
		Name  string `arg:"" help:"Database name."`
		Limit int    `default:"-1" help:"Maximum number of documents; unlimited if negative."`

		Range rangeFlags `embed:""`
	} `cmd:"" help:"Get all documents."`

	Compact struct {
		Name string `arg:"" help:"Database name."`
	} `cmd:"" help:"Compact database."`

	Dump struct {
		Name  string `arg:"" help:"Database name."`
		File  string `arg:"" help:"SQLite file." type:"path"`
		Limit int    `default:"-1" help:"Maximum number of documents; unlimited if negative."`

		Range rangeFlags `embed:""`
	} `cmd:"" help:"Export documents into SQLite file."`

	Restore struct {
		File string `arg:"" help:"SQLite file." type:"path"`
		From string `arg:"" help:"Database name in the file."`
		Name string `arg:"" help:"Target database name."`
	} `cmd:"" help:"Import documents from SQLite file."`

	Version struct{} `cmd:"" help:"Print version."`
}

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	kongOptions = []kong.Option{
		kong.Vars{
			"default_log_level": zap.WarnLevel.String(),

			"enum_log_format": strings.Join(logging.Formats, ","),

			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logging.Formats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),
		},
		kong.DefaultEnvars("SERIESLY"),
	}
)

func main() {
	var cli flags
	kongCtx := kong.Parse(&cli, kongOptions...)

	level, err := zapcore.ParseLevel(cli.Log.Level)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.Setup(level, cli.Log.Format)

	if _, err = maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
	}

	ctx, stop := ctxutil.SigTerm(context.Background())
	defer stop()

	err = run(ctx, &runOpts{
		cli:    &cli,
		cmd:    kongCtx.Command(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		l:      slog.New(logging.NewSlogHandler(logger)),
	})

	_ = logger.Sync()

	if err != nil {
		stop()
		kongCtx.FatalIfErrorf(err)
	}
}

// runOpts represents [run] options.
type runOpts struct {
	cli    *flags
	cmd    string
	stdin  io.Reader
	stdout io.Writer
	l      *slog.Logger
}

// run sets up the client and runs the given command.
func run(ctx context.Context, opts *runOpts) (err error) {
	if opts.cmd == "version" {
		return printVersion(opts.stdout)
	}

	tp, shutdown, err := observability.SetupOtel(ctx, &observability.OtelOpts{
		Service:  "serieslyctl",
		Version:  version.Get().Version,
		Endpoint: opts.cli.OtelEndpoint,
	})
	if err != nil {
		return err
	}

	defer func() {
		if e := shutdown(context.WithoutCancel(ctx)); e != nil && err == nil {
			err = e
		}
	}()

	m := seriesly.NewMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m)

	if opts.cli.DebugMetrics {
		defer dumpMetrics(os.Stderr, reg)
	}

	clientOpts, err := clientOptions(opts.cli)
	if err != nil {
		return err
	}

	clientOpts = append(clientOpts,
		seriesly.WithLogger(opts.l),
		seriesly.WithMetrics(m),
		seriesly.WithTracerProvider(tp),
	)

	c, err := seriesly.New(clientOpts...)
	if err != nil {
		return err
	}

	format := must.NotFail(seriesly.ParseFormat(opts.cli.Format))

	cmd := &command{
		c:      c,
		cli:    opts.cli,
		format: format,
		stdin:  opts.stdin,
		stdout: opts.stdout,
		l:      opts.l,
	}

	return cmd.run(ctx, opts.cmd)
}

// clientOptions returns client options from the configuration file and flags.
func clientOptions(cli *flags) ([]seriesly.Option, error) {
	cfg := config.Default()

	if cli.Config != "" {
		var err error
		if cfg, err = config.Load(cli.Config); err != nil {
			return nil, err
		}
	}

	if cli.Host != "" {
		cfg.Database.Host = cli.Host
	}

	if cli.Port != 0 {
		cfg.Database.Port = cli.Port
	}

	if cli.URL != "" {
		cfg.Database.URL = cli.URL
	}

	if cli.Retries != 0 {
		cfg.Retry.Max = cli.Retries
	}

	if cli.RetryDelay != "" {
		d, err := time.ParseDuration(cli.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid retry delay: %w", err)
		}

		cfg.Retry.Delay = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg.Options(), nil
}

// printVersion prints version information.
func printVersion(w io.Writer) error {
	info := version.Get()

	fmt.Fprintln(w, "version:", info.Version)
	fmt.Fprintln(w, "commit:", info.Commit)
	fmt.Fprintln(w, "branch:", info.Branch)
	fmt.Fprintln(w, "dirty:", info.Dirty)
	_, err := fmt.Fprintln(w, "devBuild:", info.DevBuild)

	return err
}

// dumpMetrics dumps all Prometheus metrics to w.
func dumpMetrics(w io.Writer, g prometheus.Gatherer) {
	mfs := must.NotFail(g.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(w, mf))
	}
}
