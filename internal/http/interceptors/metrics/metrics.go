// Copyright 2018-2024 CERN
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
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package metrics instruments the HTTP handler chain with the common
// request metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DACCS-Climate/Magpie/pkg/prom/registry"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

const defaultPriority = 300

var inFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "http_in_flight_requests",
	Help: "A gauge of requests currently being served by the wrapped handler.",
})

var counter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_api_requests_total",
		Help: "A counter for requests to the wrapped handler.",
	},
	[]string{"code", "method"},
)

// duration is partitioned by the HTTP method. It uses custom buckets
// based on the expected request duration.
var duration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "A histogram of latencies for requests.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"method"},
)

// responseSize has no labels, making it a zero-dimensional
// ObserverVec.
var responseSize = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "A histogram of response sizes for requests.",
		Buckets: []float64{200, 500, 900, 1500},
	},
	[]string{},
)

// requestSize has no labels, making it a zero-dimensional
// ObserverVec.
var requestSize = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_size_bytes",
		Help:    "A histogram of request sizes for requests.",
		Buckets: []float64{200, 500, 900, 1500},
	},
	[]string{},
)

func init() {
	registry.Register("http_metrics", NewPromCollectors)
	global.RegisterMiddleware("metrics", New)
}

// NewPromCollectors returns the prometheus collectors of the HTTP layer.
func NewPromCollectors(_ context.Context, m map[string]interface{}) ([]prometheus.Collector, error) {
	return []prometheus.Collector{inFlightGauge, counter, duration, responseSize, requestSize}, nil
}

type config struct {
	Priority int `mapstructure:"priority"`
}

func (c *config) ApplyDefaults() {
	if c.Priority == 0 {
		c.Priority = defaultPriority
	}
}

// New returns a new HTTP middleware that instruments the wrapped
// handler with the request metrics.
func New(m map[string]interface{}) (global.Middleware, int, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, 0, err
	}

	chain := func(h http.Handler) http.Handler {
		return promhttp.InstrumentHandlerDuration(duration,
			promhttp.InstrumentHandlerCounter(counter,
				promhttp.InstrumentHandlerResponseSize(responseSize,
					promhttp.InstrumentHandlerRequestSize(requestSize,
						promhttp.InstrumentHandlerInFlight(inFlightGauge, h),
					),
				),
			),
		)
	}
	return chain, c.Priority, nil
}
