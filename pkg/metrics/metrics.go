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

// Package metrics exposes the access decision counters. The
// collectors register through the prom registry so the prometheus
// service picks them up.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DACCS-Climate/Magpie/pkg/prom/registry"
)

var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "magpie",
		Subsystem: "access",
		Name:      "decisions_total",
		Help:      "A counter for access decisions partitioned by service type, outcome and reason.",
	},
	[]string{"service_type", "allow", "reason"},
)

var resolveDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "magpie",
		Subsystem: "access",
		Name:      "resolve_duration_seconds",
		Help:      "A histogram of access resolution latencies.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	},
	[]string{"service_type"},
)

func init() {
	registry.Register("access_metrics", NewPromCollectors)
}

// NewPromCollectors returns the access decision collectors.
func NewPromCollectors(_ context.Context, m map[string]interface{}) ([]prometheus.Collector, error) {
	return []prometheus.Collector{decisions, resolveDuration}, nil
}

// RecordDecision counts one resolved access decision.
func RecordDecision(serviceType string, allow bool, reason string, elapsed time.Duration) {
	decisions.WithLabelValues(serviceType, strconv.FormatBool(allow), reason).Inc()
	resolveDuration.WithLabelValues(serviceType).Observe(elapsed.Seconds())
}
