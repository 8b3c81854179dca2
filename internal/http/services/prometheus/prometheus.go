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

// Package prometheus serves the metrics endpoint. It collects the Go
// runtime and process collectors plus every collector registered in
// the prom registry, the decision and HTTP metrics among them.
package prometheus

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/DACCS-Climate/Magpie/pkg/prom/registry"
	"github.com/DACCS-Climate/Magpie/pkg/rhttp/global"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

func init() {
	global.Register("prometheus", New)
}

type config struct {
	Prefix     string                            `mapstructure:"prefix"`
	Collectors map[string]map[string]interface{} `mapstructure:"collectors"`
}

func (c *config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "metrics"
	}
}

// New returns a new prometheus service.
func New(m map[string]interface{}, log *zerolog.Logger) (global.Service, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, err
	}

	reg := promclient.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.Wrap(err, "prometheus: error registering go collector")
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, errors.Wrap(err, "prometheus: error registering process collector")
	}

	ctx := context.Background()
	for name, f := range registry.NewFuncs {
		cols, err := f(ctx, c.Collectors[name])
		if err != nil {
			return nil, errors.Wrapf(err, "prometheus: error creating collectors: %s", name)
		}
		for _, col := range cols {
			if err := reg.Register(col); err != nil {
				return nil, errors.Wrapf(err, "prometheus: error registering collectors: %s", name)
			}
		}
	}

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return &svc{prefix: c.Prefix, h: h}, nil
}

type svc struct {
	prefix string
	h      http.Handler
}

func (s *svc) Prefix() string { return s.prefix }

func (s *svc) Handler() http.Handler { return s.h }

func (s *svc) Close() error { return nil }

func (s *svc) Unprotected() []string { return []string{"/"} }
