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

package admin

import (
	"fmt"

	"github.com/pkg/errors"

	identityregistry "github.com/DACCS-Climate/Magpie/pkg/identity/manager/registry"
	permissionregistry "github.com/DACCS-Climate/Magpie/pkg/permission/manager/registry"
	resourceregistry "github.com/DACCS-Climate/Magpie/pkg/resource/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

// driverConfig selects one store driver and carries the per driver
// configuration. The sql drivers fall back to the shared database
// coordinates when their config is empty.
type driverConfig struct {
	Driver  string                            `mapstructure:"driver"`
	Drivers map[string]map[string]interface{} `mapstructure:"drivers"`
}

type storesConfig struct {
	Identity   driverConfig `mapstructure:"identity"`
	Resource   driverConfig `mapstructure:"resource"`
	Permission driverConfig `mapstructure:"permission"`
}

func (c *driverConfig) init() {
	if c.Driver == "" {
		c.Driver = "sql"
	}
}

// NewFromConfig builds an Admin with the store drivers the
// configuration selects, defaulting to the sql drivers.
func NewFromConfig(m map[string]interface{}) (*Admin, error) {
	var c storesConfig
	if err := cfg.Decode(m, &c); err != nil {
		return nil, errors.Wrap(err, "admin: error decoding config")
	}
	c.Identity.init()
	c.Resource.init()
	c.Permission.init()

	fi, ok := identityregistry.NewFuncs[c.Identity.Driver]
	if !ok {
		return nil, fmt.Errorf("admin: identity driver not found: %s", c.Identity.Driver)
	}
	identities, err := fi(c.Identity.Drivers[c.Identity.Driver])
	if err != nil {
		return nil, errors.Wrap(err, "admin: error creating identity store")
	}

	fr, ok := resourceregistry.NewFuncs[c.Resource.Driver]
	if !ok {
		return nil, fmt.Errorf("admin: resource driver not found: %s", c.Resource.Driver)
	}
	resources, err := fr(c.Resource.Drivers[c.Resource.Driver])
	if err != nil {
		return nil, errors.Wrap(err, "admin: error creating resource store")
	}

	fp, ok := permissionregistry.NewFuncs[c.Permission.Driver]
	if !ok {
		return nil, fmt.Errorf("admin: permission driver not found: %s", c.Permission.Driver)
	}
	permissions, err := fp(c.Permission.Drivers[c.Permission.Driver])
	if err != nil {
		return nil, errors.Wrap(err, "admin: error creating permission store")
	}

	return New(identities, resources, permissions), nil
}
