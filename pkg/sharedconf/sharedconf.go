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

// Package sharedconf holds configuration shared among the daemon and
// every service and driver: the token secret, the names of the
// well-known groups and the default database coordinates.
package sharedconf

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// The zero state carries the defaults so drivers work without the
// daemon having decoded a [shared] section, as in tests.
var sharedConf = defaults()

type conf struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminGroup        string `mapstructure:"admin_group"`
	AnonymousGroup    string `mapstructure:"anonymous_group"`
	UsersGroup        string `mapstructure:"users_group"`
	UserNameMaxLength int    `mapstructure:"user_name_max_length"`
	DBDriver          string `mapstructure:"db_driver"`
	DBDSN             string `mapstructure:"db_dsn"`
}

func defaults() *conf {
	return &conf{
		JWTSecret:         "changemeplease",
		AdminGroup:        "administrators",
		AnonymousGroup:    "anonymous",
		UsersGroup:        "users",
		UserNameMaxLength: 64,
		DBDriver:          "sqlite3",
		DBDSN:             "file:magpie.db?_foreign_keys=on",
	}
}

// Decode decodes the configuration map into the package state. Keys
// set to an empty value fall back to the defaults.
func Decode(v map[string]interface{}) error {
	if err := mapstructure.Decode(v, sharedConf); err != nil {
		return errors.Wrap(err, "sharedconf: error decoding conf")
	}

	def := defaults()
	if sharedConf.JWTSecret == "" {
		sharedConf.JWTSecret = def.JWTSecret
	}

	if sharedConf.AdminGroup == "" {
		sharedConf.AdminGroup = def.AdminGroup
	}

	if sharedConf.AnonymousGroup == "" {
		sharedConf.AnonymousGroup = def.AnonymousGroup
	}

	if sharedConf.UsersGroup == "" {
		sharedConf.UsersGroup = def.UsersGroup
	}

	if sharedConf.UserNameMaxLength <= 0 {
		sharedConf.UserNameMaxLength = def.UserNameMaxLength
	}

	if sharedConf.DBDriver == "" {
		sharedConf.DBDriver = def.DBDriver
	}

	if sharedConf.DBDSN == "" {
		sharedConf.DBDSN = def.DBDSN
	}

	return nil
}

// GetJWTSecret returns the package level configured jwt secret if not overwritten.
func GetJWTSecret(val string) string {
	if val == "" {
		return sharedConf.JWTSecret
	}
	return val
}

// GetAdminGroup returns the name of the group whose members bypass
// access resolution.
func GetAdminGroup() string {
	return sharedConf.AdminGroup
}

// GetAnonymousGroup returns the name of the group every request,
// authenticated or not, is an implicit member of.
func GetAnonymousGroup() string {
	return sharedConf.AnonymousGroup
}

// GetUsersGroup returns the name of the group new users join by default.
func GetUsersGroup() string {
	return sharedConf.UsersGroup
}

// GetUserNameMaxLength returns the maximum length accepted for user names.
func GetUserNameMaxLength() int {
	return sharedConf.UserNameMaxLength
}

// GetDBDriver returns the package level configured database driver if not overwritten.
func GetDBDriver(val string) string {
	if val == "" {
		return sharedConf.DBDriver
	}
	return val
}

// GetDBDSN returns the package level configured database DSN if not overwritten.
func GetDBDSN(val string) string {
	if val == "" {
		return sharedConf.DBDSN
	}
	return val
}
