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

package main

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/DACCS-Climate/Magpie/pkg/admin"
	"github.com/DACCS-Climate/Magpie/pkg/db"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
)

type bootstrapConf struct {
	// SkipSchema leaves the database alone, for setups that manage the
	// schema themselves or run on the memory drivers.
	SkipSchema    bool                   `mapstructure:"skip_schema"`
	AdminUser     string                 `mapstructure:"admin_user"`
	AdminPassword string                 `mapstructure:"admin_password"`
	AdminEmail    string                 `mapstructure:"admin_email"`
	Stores        map[string]interface{} `mapstructure:"stores"`
	Services      []serviceConf          `mapstructure:"services"`
}

type serviceConf struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
	URL  string `mapstructure:"url"`
}

// bootstrap brings the stores to the state the configuration asks for
// before the server takes traffic: the schema, the well-known groups,
// the admin account and the protected services. Every step is
// idempotent so restarts and reloads converge on the same state.
func bootstrap(ctx context.Context, mainConf map[string]interface{}, log *zerolog.Logger) error {
	var c bootstrapConf
	if err := mapstructure.Decode(mainConf["bootstrap"], &c); err != nil {
		return errors.Wrap(err, "error decoding bootstrap config")
	}

	if !c.SkipSchema {
		driver := sharedconf.GetDBDriver("")
		d, err := db.Open(driver, sharedconf.GetDBDSN(""))
		if err != nil {
			return errors.Wrap(err, "error opening the database")
		}
		if err := db.InitSchema(ctx, d, driver); err != nil {
			return errors.Wrap(err, "error initializing the database schema")
		}
		log.Info().Msgf("database schema ready on %s", driver)
	}

	// building the identity store seeds the well-known groups.
	a, err := admin.NewFromConfig(c.Stores)
	if err != nil {
		return errors.Wrap(err, "error creating the stores")
	}

	if c.AdminUser != "" {
		if err := ensureAdminUser(ctx, a, &c, log); err != nil {
			return err
		}
	}

	for _, sc := range c.Services {
		if err := ensureService(ctx, a, sc, log); err != nil {
			return err
		}
	}

	return nil
}

func ensureAdminUser(ctx context.Context, a *admin.Admin, c *bootstrapConf, log *zerolog.Logger) error {
	if _, err := a.GetUser(ctx, c.AdminUser); err == nil {
		return nil
	} else if _, ok := err.(errtypes.IsNotFound); !ok {
		return errors.Wrap(err, "error looking up the admin user")
	}

	if _, err := a.CreateUser(ctx, c.AdminUser, c.AdminEmail, c.AdminPassword, sharedconf.GetAdminGroup()); err != nil {
		return errors.Wrap(err, "error creating the admin user")
	}
	log.Info().Msgf("admin user %q created", c.AdminUser)
	return nil
}

func ensureService(ctx context.Context, a *admin.Admin, sc serviceConf, log *zerolog.Logger) error {
	if _, err := a.CreateService(ctx, sc.Name, sc.Type, sc.URL); err != nil {
		if _, ok := err.(errtypes.IsAlreadyExists); ok {
			log.Debug().Msgf("service %q already registered", sc.Name)
			return nil
		}
		return errors.Wrapf(err, "error registering service %q", sc.Name)
	}
	log.Info().Msgf("service %q of type %q registered", sc.Name, sc.Type)
	return nil
}
