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

// Package clientmetrics provides Prometheus metrics of the seriesly client.
package clientmetrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/FerretDB/seriesly/internal/util/must"
)

// Parts of Prometheus metric names.
const (
	namespace = "seriesly"
	subsystem = "client"
)

// Result label values that are not HTTP status classes.
const (
	ResultConnectionFailed = "connection_failed"
	ResultCanceled         = "canceled"
	ResultError            = "error"
)

// Metrics represents client metrics.
//
// It is safe for concurrent use.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Responses *prometheus.CounterVec
	Retries   *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
}

// New creates client metrics.
func New() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of client operations started.",
			},
			[]string{"op"},
		),
		Responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "responses_total",
				Help:      "Total number of client operations finished, by result.",
			},
			[]string{"op", "result"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "retries_total",
				Help:      "Total number of retries after connection failures.",
			},
			[]string{"op"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Client operation duration including retries.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"op"},
		),
	}
}

// StatusResult returns result label value for the given HTTP status code.
func StatusResult(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Requests.Describe(ch)
	m.Responses.Describe(ch)
	m.Retries.Describe(ch)
	m.Duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Requests.Collect(ch)
	m.Responses.Collect(ch)
	m.Retries.Collect(ch)
	m.Duration.Collect(ch)
}

// GetResponses returns a map with all response metrics:
//
// op (e.g. "create", "query") ->
// result (e.g. "2xx", "4xx", "connection_failed") ->
// count.
func (m *Metrics) GetResponses() map[string]map[string]int {
	metrics := make(chan prometheus.Metric)
	go func() {
		m.Responses.Collect(metrics)
		close(metrics)
	}()

	res := map[string]map[string]int{}

	for metric := range metrics {
		var content dto.Metric
		must.NoError(metric.Write(&content))

		var op, result string
		for _, label := range content.GetLabel() {
			switch label.GetName() {
			case "op":
				op = label.GetValue()
			case "result":
				result = label.GetValue()
			default:
				panic(fmt.Sprintf("%s is not a valid label. Allowed: [op, result]", label.GetName()))
			}
		}

		if _, ok := res[op]; !ok {
			res[op] = map[string]int{}
		}

		res[op][result] += int(content.GetCounter().GetValue())
	}

	return res
}

// check interfaces
var (
	_ prometheus.Collector = (*Metrics)(nil)
)
