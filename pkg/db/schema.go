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

package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// The groups table is quoted in every statement because GROUPS is a
// reserved word in MySQL 8. sqlite accepts the backtick quoting.

var sqliteSchema = []string{
	"CREATE TABLE IF NOT EXISTS users (" +
		" id INTEGER PRIMARY KEY AUTOINCREMENT," +
		" user_name TEXT NOT NULL UNIQUE," +
		" email TEXT NOT NULL DEFAULT ''," +
		" password_hash TEXT NOT NULL DEFAULT ''" +
		")",
	"CREATE TABLE IF NOT EXISTS `groups` (" +
		" id INTEGER PRIMARY KEY AUTOINCREMENT," +
		" group_name TEXT NOT NULL UNIQUE" +
		")",
	"CREATE TABLE IF NOT EXISTS user_groups (" +
		" user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE," +
		" group_id INTEGER NOT NULL REFERENCES `groups` (id) ON DELETE CASCADE," +
		" PRIMARY KEY (user_id, group_id)" +
		")",
	"CREATE TABLE IF NOT EXISTS resources (" +
		" id INTEGER PRIMARY KEY AUTOINCREMENT," +
		" resource_name TEXT NOT NULL," +
		" resource_type TEXT NOT NULL," +
		" parent_id INTEGER REFERENCES resources (id) ON DELETE CASCADE," +
		" root_service_id INTEGER NOT NULL DEFAULT 0," +
		" owner_user_id INTEGER REFERENCES users (id) ON DELETE SET NULL," +
		" owner_group_id INTEGER REFERENCES `groups` (id) ON DELETE SET NULL," +
		" UNIQUE (parent_id, resource_name)" +
		")",
	"CREATE INDEX IF NOT EXISTS ix_resources_parent ON resources (parent_id)",
	"CREATE INDEX IF NOT EXISTS ix_resources_root ON resources (root_service_id)",
	"CREATE TABLE IF NOT EXISTS services (" +
		" resource_id INTEGER PRIMARY KEY REFERENCES resources (id) ON DELETE CASCADE," +
		" service_type TEXT NOT NULL," +
		" service_url TEXT NOT NULL DEFAULT ''" +
		")",
	"CREATE TABLE IF NOT EXISTS permissions (" +
		" id INTEGER PRIMARY KEY AUTOINCREMENT," +
		" user_id INTEGER REFERENCES users (id) ON DELETE CASCADE," +
		" group_id INTEGER REFERENCES `groups` (id) ON DELETE CASCADE," +
		" resource_id INTEGER NOT NULL REFERENCES resources (id) ON DELETE CASCADE," +
		" perm_name TEXT NOT NULL," +
		" access TEXT NOT NULL," +
		" scope TEXT NOT NULL," +
		" UNIQUE (user_id, resource_id, perm_name)," +
		" UNIQUE (group_id, resource_id, perm_name)" +
		")",
	"CREATE INDEX IF NOT EXISTS ix_permissions_resource ON permissions (resource_id)",
	"CREATE TABLE IF NOT EXISTS external_identities (" +
		" provider_name TEXT NOT NULL," +
		" external_id TEXT NOT NULL," +
		" external_user_name TEXT NOT NULL DEFAULT ''," +
		" user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE," +
		" PRIMARY KEY (provider_name, external_id)" +
		")",
}

var mysqlSchema = []string{
	"CREATE TABLE IF NOT EXISTS users (" +
		" id BIGINT NOT NULL AUTO_INCREMENT," +
		" user_name VARCHAR(64) NOT NULL," +
		" email VARCHAR(255) NOT NULL DEFAULT ''," +
		" password_hash VARCHAR(255) NOT NULL DEFAULT ''," +
		" PRIMARY KEY (id)," +
		" UNIQUE KEY ux_users_name (user_name)" +
		") ENGINE = InnoDB DEFAULT CHARSET = utf8mb4",
	"CREATE TABLE IF NOT EXISTS `groups` (" +
		" id BIGINT NOT NULL AUTO_INCREMENT," +
		" group_name VARCHAR(64) NOT NULL," +
		" PRIMARY KEY (id)," +
		" UNIQUE KEY ux_groups_name (group_name)" +
		") ENGINE = InnoDB DEFAULT CHARSET = utf8mb4",
	"CREATE TABLE IF NOT EXISTS user_groups (" +
		" user_id BIGINT NOT NULL," +
		" group_id BIGINT NOT NULL," +
		" PRIMARY KEY (user_id, group_id)," +
		" CONSTRAINT fk_ug_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE," +
		" CONSTRAINT fk_ug_group FOREIGN KEY (group_id) REFERENCES `groups` (id) ON DELETE CASCADE" +
		") ENGINE = InnoDB DEFAULT CHARSET = utf8mb4",
	"CREATE TABLE IF NOT EXISTS resources (" +
		" id BIGINT NOT NULL AUTO_INCREMENT," +
		" resource_name VARCHAR(255) NOT NULL," +
		" resource_type VARCHAR(32) NOT NULL," +
		" parent_id BIGINT NULL," +
		" root_service_id BIGINT NOT NULL DEFAULT 0," +
		" owner_user_id BIGINT NULL," +
		" owner_group_id BIGINT NULL," +
		" PRIMARY KEY (id)," +
		" UNIQUE KEY ux_resources_sibling (parent_id, resource_name)," +
		" KEY ix_resources_root (root_service_id)," +
		" CONSTRAINT fk_res_parent FOREIGN KEY (parent_id) REFERENCES resources (id) ON DELETE CASCADE," +
		" CONSTRAINT fk_res_owner_user FOREIGN KEY (owner_user_id) REFERENCES users (id) ON DELETE SET NULL," +
		" CONSTRAINT fk_res_owner_group FOREIGN KEY (owner_group_id) REFERENCES `groups` (id) ON DELETE SET NULL" +
		") ENGINE = InnoDB DEFAULT CHARSET = utf8mb4",
	"CREATE TABLE IF NOT EXISTS services (" +
		" resource_id BIGINT NOT NULL," +
		" service_type VARCHAR(32) NOT NULL," +
		" service_url VARCHAR(1024) NOT NULL DEFAULT ''," +
		" PRIMARY KEY (resource_id)," +
		" CONSTRAINT fk_svc_resource FOREIGN KEY (resource_id) REFERENCES resources (id) ON DELETE CASCADE" +
		") ENGINE = InnoDB DEFAULT CHARSET = utf8mb4",
	"CREATE TABLE IF NOT EXISTS permissions (" +
		" id BIGINT NOT NULL AUTO_INCREMENT," +
		" user_id BIGINT NULL," +
		" group_id BIGINT NULL," +
		" resource_id BIGINT NOT NULL," +
		" perm_name VARCHAR(64) NOT NULL," +
		" access VARCHAR(8) NOT NULL," +
		" scope VARCHAR(16) NOT NULL," +
		" PRIMARY KEY (id)," +
		" UNIQUE KEY ux_perm_user (user_id, resource_id, perm_name)," +
		" UNIQUE KEY ux_perm_group (group_id, resource_id, perm_name)," +
		" KEY ix_perm_resource (resource_id)," +
		" CONSTRAINT fk_perm_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE," +
		" CONSTRAINT fk_perm_group FOREIGN KEY (group_id) REFERENCES `groups` (id) ON DELETE CASCADE," +
		" CONSTRAINT fk_perm_resource FOREIGN KEY (resource_id) REFERENCES resources (id) ON DELETE CASCADE" +
		") ENGINE = InnoDB DEFAULT CHARSET = utf8mb4",
	"CREATE TABLE IF NOT EXISTS external_identities (" +
		" provider_name VARCHAR(64) NOT NULL," +
		" external_id VARCHAR(255) NOT NULL," +
		" external_user_name VARCHAR(255) NOT NULL DEFAULT ''," +
		" user_id BIGINT NOT NULL," +
		" PRIMARY KEY (provider_name, external_id)," +
		" CONSTRAINT fk_extid_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE" +
		") ENGINE = InnoDB DEFAULT CHARSET = utf8mb4",
}

// InitSchema creates the tables used by the sql drivers when they do
// not exist yet.
func InitSchema(ctx context.Context, d *sql.DB, driverName string) error {
	var stmts []string
	switch driverName {
	case "sqlite3":
		stmts = sqliteSchema
	case "mysql":
		stmts = mysqlSchema
	default:
		return errors.Errorf("db: no schema for driver %s", driverName)
	}

	if driverName == "sqlite3" {
		if _, err := d.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return errors.Wrap(err, "db: error enabling foreign keys")
		}
	}

	for _, stmt := range stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "db: error executing %q", stmt[:min(len(stmt), 40)])
		}
	}
	return nil
}
