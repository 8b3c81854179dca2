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

// Package sql persists permission entries in a relational database.
// It is written against mysql and is exercised against sqlite in the
// tests, so statements stick to the shared subset of both dialects.
package sql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/DACCS-Climate/Magpie/pkg/db"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/permission"
	"github.com/DACCS-Climate/Magpie/pkg/permission/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
)

func init() {
	registry.Register("sql", New)
}

type config struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

func (c *config) ApplyDefaults() {
	c.Driver = sharedconf.GetDBDriver(c.Driver)
	c.DSN = sharedconf.GetDBDSN(c.DSN)
}

// New returns a permission manager connected to the configured
// database.
func New(m map[string]interface{}) (permission.Manager, error) {
	var c config
	if err := cfg.Decode(m, &c); err != nil {
		return nil, err
	}
	d, err := db.Open(c.Driver, c.DSN)
	if err != nil {
		return nil, err
	}
	return NewFromDB(c.Driver, d)
}

// NewFromDB returns a permission manager using the given handle.
func NewFromDB(driver string, d *sql.DB) (permission.Manager, error) {
	return &mgr{driver: driver, db: d}, nil
}

type mgr struct {
	driver string
	db     *sql.DB
}

const entryColumns = "id, user_id, group_id, resource_id, perm_name, access, scope"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*permission.Entry, error) {
	var e permission.Entry
	var user, group sql.NullInt64
	if err := s.Scan(&e.ID, &user, &group, &e.ResourceID, &e.Name, &e.Access, &e.Scope); err != nil {
		return nil, err
	}
	e.UserID = user.Int64
	e.GroupID = group.Int64
	return &e, nil
}

func validate(e *permission.Entry) error {
	if (e.UserID == 0) == (e.GroupID == 0) {
		return errtypes.BadRequest("entry needs exactly one of user and group")
	}
	if e.ResourceID == 0 {
		return errtypes.BadRequest("entry needs a resource")
	}
	if e.Name == "" {
		return errtypes.BadRequest("entry needs a permission name")
	}
	if !e.Access.Valid() {
		return errtypes.BadRequest("unknown access: " + string(e.Access))
	}
	if !e.Scope.Valid() {
		return errtypes.BadRequest("unknown scope: " + string(e.Scope))
	}
	return nil
}

// principalWhere matches one entry by principal, resource and name.
// The args follow the same order for both branches.
func principalWhere(e *permission.Entry) (string, []interface{}) {
	if e.UserID != 0 {
		return "user_id = ? AND resource_id = ? AND perm_name = ?",
			[]interface{}{e.UserID, e.ResourceID, e.Name}
	}
	return "group_id = ? AND resource_id = ? AND perm_name = ?",
		[]interface{}{e.GroupID, e.ResourceID, e.Name}
}

func (m *mgr) Upsert(ctx context.Context, e *permission.Entry) (*permission.Entry, error) {
	if err := validate(e); err != nil {
		return nil, err
	}

	where, args := principalWhere(e)
	err := db.WithRetry(ctx, func() error {
		return db.Transact(ctx, m.db, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx,
				"UPDATE permissions SET access = ?, scope = ? WHERE "+where,
				append([]interface{}{e.Access, e.Scope}, args...)...)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n > 0 {
				return nil
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO permissions (user_id, group_id, resource_id, perm_name, access, scope) VALUES (?, ?, ?, ?, ?, ?)",
				nullable(e.UserID), nullable(e.GroupID), e.ResourceID, e.Name, e.Access, e.Scope)
			return err
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "sql: error upserting permission entry")
	}

	row := m.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM permissions WHERE "+where, args...)
	stored, err := scanEntry(row)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error reading back permission entry")
	}
	return stored, nil
}

func (m *mgr) Clear(ctx context.Context, e *permission.Entry) error {
	where, args := principalWhere(e)
	res, err := m.db.ExecContext(ctx, "DELETE FROM permissions WHERE "+where, args...)
	if err != nil {
		return errors.Wrap(err, "sql: error clearing permission entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sql: error clearing permission entry")
	}
	if n == 0 {
		return errtypes.NotFound("permission entry not found")
	}
	return nil
}

func (m *mgr) ListForUser(ctx context.Context, userID int64) ([]*permission.Entry, error) {
	return m.list(ctx, "user_id = ?", userID)
}

func (m *mgr) ListForGroup(ctx context.Context, groupID int64) ([]*permission.Entry, error) {
	return m.list(ctx, "group_id = ?", groupID)
}

func (m *mgr) ListForResource(ctx context.Context, resourceID int64) ([]*permission.Entry, error) {
	return m.list(ctx, "resource_id = ?", resourceID)
}

func (m *mgr) ListOnPath(ctx context.Context, userID int64, groupIDs, resourceIDs []int64, name string) ([]*permission.Entry, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}

	var principals []string
	args := []interface{}{name}
	args = append(args, db.Int64Args(resourceIDs)...)
	if userID != 0 {
		principals = append(principals, "user_id = ?")
		args = append(args, userID)
	}
	if len(groupIDs) != 0 {
		principals = append(principals, "group_id IN ("+db.Placeholders(len(groupIDs))+")")
		args = append(args, db.Int64Args(groupIDs)...)
	}
	if len(principals) == 0 {
		return nil, nil
	}

	query := "SELECT " + entryColumns + " FROM permissions" +
		" WHERE perm_name = ? AND resource_id IN (" + db.Placeholders(len(resourceIDs)) + ")" +
		" AND (" + strings.Join(principals, " OR ") + ") ORDER BY id"
	return m.query(ctx, query, args...)
}

func (m *mgr) ClearForResources(ctx context.Context, resourceIDs []int64) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	_, err := m.db.ExecContext(ctx,
		"DELETE FROM permissions WHERE resource_id IN ("+db.Placeholders(len(resourceIDs))+")",
		db.Int64Args(resourceIDs)...)
	return errors.Wrap(err, "sql: error clearing permissions for resources")
}

func (m *mgr) ClearForUser(ctx context.Context, userID int64) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM permissions WHERE user_id = ?", userID)
	return errors.Wrap(err, "sql: error clearing permissions for user")
}

func (m *mgr) ClearForGroup(ctx context.Context, groupID int64) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM permissions WHERE group_id = ?", groupID)
	return errors.Wrap(err, "sql: error clearing permissions for group")
}

func (m *mgr) list(ctx context.Context, where string, arg interface{}) ([]*permission.Entry, error) {
	return m.query(ctx, "SELECT "+entryColumns+" FROM permissions WHERE "+where+" ORDER BY id", arg)
}

func (m *mgr) query(ctx context.Context, query string, args ...interface{}) ([]*permission.Entry, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error listing permission entries")
	}
	defer rows.Close()

	var out []*permission.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sql: error scanning permission entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
