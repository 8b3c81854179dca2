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

// Package registry keeps the register of custom prometheus collectors.
package registry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// NewFunc is the function that custom prometheus collectors
// should register at init time.
type NewFunc func(context.Context, map[string]interface{}) ([]prometheus.Collector, error)

// NewFuncs is a map containing all the registered collectors.
var NewFuncs = map[string]NewFunc{}

// Register registers a new prometheus collector new function.
// Not safe for concurrent use. Safe for use from package init.
func Register(name string, f NewFunc) {
	NewFuncs[name] = f
}
