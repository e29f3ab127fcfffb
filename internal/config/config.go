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

// Package config provides the YAML configuration file of serieslyctl.
package config

import (
	"errors"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FerretDB/seriesly/internal/util/lazyerrors"
	"github.com/FerretDB/seriesly/seriesly"
)

// Config represents the configuration file.
//
//	database:
//	  host: 127.0.0.1
//	  port: 3133
//	  timeout: 30s
//	retry:
//	  max: 5
//	  delay: 5s
type Config struct {
	Database Database `yaml:"database"`
	Retry    Retry    `yaml:"retry"`
}

// Database represents server connection settings.
type Database struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// URL takes precedence over Host and Port if set.
	URL string `yaml:"url,omitempty"`

	Timeout time.Duration `yaml:"timeout"`
}

// Retry represents retry policy settings.
type Retry struct {
	Max   int           `yaml:"max"`
	Delay time.Duration `yaml:"delay"`
}

// Default returns the configuration with default values.
func Default() *Config {
	return &Config{
		Database: Database{
			Host:    seriesly.DefaultHost,
			Port:    seriesly.DefaultPort,
			Timeout: seriesly.DefaultTimeout,
		},
		Retry: Retry{
			Max:   seriesly.DefaultMaxRetries,
			Delay: seriesly.DefaultRetryDelay,
		},
	}
}

// Load reads the configuration file.
// Values missing in the file keep their defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	defer f.Close() //nolint:errcheck // we are only reading it

	return Decode(f)
}

// Decode reads the configuration from r.
// Unknown fields are rejected.
func Decode(r io.Reader) (*Config, error) {
	c := Default()

	d := yaml.NewDecoder(r)
	d.KnownFields(true)

	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, lazyerrors.Error(err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		if c.Database.Host == "" {
			return lazyerrors.New("database.host must not be empty")
		}

		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return lazyerrors.Errorf("database.port %d is out of range", c.Database.Port)
		}
	}

	if c.Database.Timeout < 0 {
		return lazyerrors.Errorf("database.timeout %s must not be negative", c.Database.Timeout)
	}

	if c.Retry.Max < 1 {
		return lazyerrors.Errorf("retry.max %d must be positive", c.Retry.Max)
	}

	if c.Retry.Delay < 0 {
		return lazyerrors.Errorf("retry.delay %s must not be negative", c.Retry.Delay)
	}

	return nil
}

// Options returns client options for the configuration.
func (c *Config) Options() []seriesly.Option {
	opts := []seriesly.Option{
		seriesly.WithTimeout(c.Database.Timeout),
		seriesly.WithMaxRetries(c.Retry.Max),
		seriesly.WithRetryDelay(c.Retry.Delay),
	}

	if c.Database.URL != "" {
		return append(opts, seriesly.WithBaseURL(c.Database.URL))
	}

	return append(opts, seriesly.WithHost(c.Database.Host), seriesly.WithPort(c.Database.Port))
}

// Marshal returns the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return b, nil
}
