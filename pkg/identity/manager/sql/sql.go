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

// Package sql persists users, groups and identity links in a
// relational database. It is written against mysql and is exercised
// against sqlite in the tests, so statements stick to the shared
// subset of both dialects.
package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/pkg/errors"

	"github.com/DACCS-Climate/Magpie/pkg/db"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	"github.com/DACCS-Climate/Magpie/pkg/identity/manager/registry"
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

// New returns an identity manager connected to the configured
// database.
func New(m map[string]interface{}) (identity.Manager, error) {
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

// NewFromDB returns an identity manager using the given handle. The
// well-known groups are created when missing.
func NewFromDB(driver string, d *sql.DB) (identity.Manager, error) {
	m := &mgr{driver: driver, db: d}
	ctx := context.Background()
	for _, name := range []string{
		sharedconf.GetAnonymousGroup(),
		sharedconf.GetAdminGroup(),
		sharedconf.GetUsersGroup(),
	} {
		if _, err := m.ensureGroup(ctx, name); err != nil {
			return nil, errors.Wrap(err, "sql: error seeding well-known groups")
		}
	}
	return m, nil
}

type mgr struct {
	driver string
	db     *sql.DB
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*identity.User, error) {
	var u identity.User
	if err := s.Scan(&u.ID, &u.Name, &u.Email); err != nil {
		return nil, err
	}
	return &u, nil
}

func (m *mgr) ensureGroup(ctx context.Context, name string) (int64, error) {
	var id int64
	err := m.db.QueryRowContext(ctx, "SELECT id FROM `groups` WHERE group_name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := m.db.ExecContext(ctx, "INSERT INTO `groups` (group_name) VALUES (?)", name)
	if db.IsDuplicate(err) {
		err = m.db.QueryRowContext(ctx, "SELECT id FROM `groups` WHERE group_name = ?", name).Scan(&id)
		return id, err
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (m *mgr) userID(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM users WHERE user_name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, errtypes.NotFound("user " + name)
	}
	if err != nil {
		return 0, errors.Wrap(err, "sql: error getting user id")
	}
	return id, nil
}

func (m *mgr) groupID(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM `groups` WHERE group_name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, errtypes.NotFound("group " + name)
	}
	if err != nil {
		return 0, errors.Wrap(err, "sql: error getting group id")
	}
	return id, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (m *mgr) CreateUser(ctx context.Context, name, email, password string) (*identity.User, error) {
	if err := identity.ValidateName(name); err != nil {
		return nil, err
	}

	var hash string
	if password != "" {
		var err error
		if hash, err = argon2id.CreateHash(password, argon2id.DefaultParams); err != nil {
			return nil, errtypes.InternalError("hashing password: " + err.Error())
		}
	}

	usersGroup, err := m.groupID(ctx, m.db, sharedconf.GetUsersGroup())
	if err != nil {
		return nil, err
	}

	var id int64
	err = db.Transact(ctx, m.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (user_name, email, password_hash) VALUES (?, ?, ?)",
			name, email, hash)
		if db.IsDuplicate(err) {
			return errtypes.AlreadyExists("user " + name)
		}
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO user_groups (user_id, group_id) VALUES (?, ?)", id, usersGroup)
		return err
	})
	if err != nil {
		if _, ok := err.(errtypes.AlreadyExists); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, "sql: error creating user")
	}
	return &identity.User{ID: id, Name: name, Email: email}, nil
}

func (m *mgr) GetUser(ctx context.Context, name string) (*identity.User, error) {
	row := m.db.QueryRowContext(ctx, "SELECT id, user_name, email FROM users WHERE user_name = ?", name)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errtypes.NotFound("user " + name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sql: error getting user")
	}
	return u, nil
}

func (m *mgr) GetUserByID(ctx context.Context, id int64) (*identity.User, error) {
	row := m.db.QueryRowContext(ctx, "SELECT id, user_name, email FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errtypes.NotFound(fmt.Sprintf("user %d", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, "sql: error getting user")
	}
	return u, nil
}

func (m *mgr) ListUsers(ctx context.Context) ([]*identity.User, error) {
	return m.queryUsers(ctx, "SELECT id, user_name, email FROM users ORDER BY user_name")
}

func (m *mgr) DeleteUser(ctx context.Context, name string) error {
	// Memberships, identity links and permission entries hang off
	// the user row through cascading foreign keys.
	res, err := m.db.ExecContext(ctx, "DELETE FROM users WHERE user_name = ?", name)
	if err != nil {
		return errors.Wrap(err, "sql: error deleting user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sql: error deleting user")
	}
	if n == 0 {
		return errtypes.NotFound("user " + name)
	}
	return nil
}

func (m *mgr) CreateGroup(ctx context.Context, name string) (*identity.Group, error) {
	if err := identity.ValidateName(name); err != nil {
		return nil, err
	}
	res, err := m.db.ExecContext(ctx, "INSERT INTO `groups` (group_name) VALUES (?)", name)
	if db.IsDuplicate(err) {
		return nil, errtypes.AlreadyExists("group " + name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sql: error creating group")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "sql: error creating group")
	}
	return &identity.Group{ID: id, Name: name}, nil
}

func (m *mgr) GetGroup(ctx context.Context, name string) (*identity.Group, error) {
	id, err := m.groupID(ctx, m.db, name)
	if err != nil {
		return nil, err
	}
	return &identity.Group{ID: id, Name: name}, nil
}

func (m *mgr) GetGroupByID(ctx context.Context, id int64) (*identity.Group, error) {
	var g identity.Group
	err := m.db.QueryRowContext(ctx, "SELECT id, group_name FROM `groups` WHERE id = ?", id).Scan(&g.ID, &g.Name)
	if err == sql.ErrNoRows {
		return nil, errtypes.NotFound(fmt.Sprintf("group %d", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, "sql: error getting group")
	}
	return &g, nil
}

func (m *mgr) ListGroups(ctx context.Context) ([]*identity.Group, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT id, group_name FROM `groups` ORDER BY group_name")
	if err != nil {
		return nil, errors.Wrap(err, "sql: error listing groups")
	}
	defer rows.Close()

	var groups []*identity.Group
	for rows.Next() {
		var g identity.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, errors.Wrap(err, "sql: error scanning group")
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

func (m *mgr) DeleteGroup(ctx context.Context, name string) error {
	if isProtectedGroup(name) {
		return errtypes.PolicyViolation("group " + name + " cannot be deleted")
	}
	res, err := m.db.ExecContext(ctx, "DELETE FROM `groups` WHERE group_name = ?", name)
	if err != nil {
		return errors.Wrap(err, "sql: error deleting group")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sql: error deleting group")
	}
	if n == 0 {
		return errtypes.NotFound("group " + name)
	}
	return nil
}

func (m *mgr) AddMember(ctx context.Context, userName, groupName string) error {
	userID, err := m.userID(ctx, m.db, userName)
	if err != nil {
		return err
	}
	groupID, err := m.groupID(ctx, m.db, groupName)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx,
		"INSERT INTO user_groups (user_id, group_id) VALUES (?, ?)", userID, groupID)
	if db.IsDuplicate(err) {
		return errtypes.AlreadyExists("user " + userName + " in group " + groupName)
	}
	return errors.Wrap(err, "sql: error adding member")
}

func (m *mgr) RemoveMember(ctx context.Context, userName, groupName string) error {
	userID, err := m.userID(ctx, m.db, userName)
	if err != nil {
		return err
	}
	groupID, err := m.groupID(ctx, m.db, groupName)
	if err != nil {
		return err
	}
	res, err := m.db.ExecContext(ctx,
		"DELETE FROM user_groups WHERE user_id = ? AND group_id = ?", userID, groupID)
	if err != nil {
		return errors.Wrap(err, "sql: error removing member")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sql: error removing member")
	}
	if n == 0 {
		return errtypes.NotFound("user " + userName + " in group " + groupName)
	}
	return nil
}

func (m *mgr) ListMembers(ctx context.Context, groupName string) ([]*identity.User, error) {
	groupID, err := m.groupID(ctx, m.db, groupName)
	if err != nil {
		return nil, err
	}
	return m.queryUsers(ctx,
		"SELECT u.id, u.user_name, u.email FROM users u"+
			" JOIN user_groups ug ON ug.user_id = u.id"+
			" WHERE ug.group_id = ? ORDER BY u.user_name", groupID)
}

func (m *mgr) ListGroupsForUser(ctx context.Context, userName string) ([]*identity.Group, error) {
	userID, err := m.userID(ctx, m.db, userName)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		"SELECT g.id, g.group_name FROM `groups` g"+
			" JOIN user_groups ug ON ug.group_id = g.id"+
			" WHERE ug.user_id = ? ORDER BY g.group_name", userID)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error listing groups for user")
	}
	defer rows.Close()

	var groups []*identity.Group
	for rows.Next() {
		var g identity.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, errors.Wrap(err, "sql: error scanning group")
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

func (m *mgr) IsInGroup(ctx context.Context, userName, groupName string) (bool, error) {
	userID, err := m.userID(ctx, m.db, userName)
	if err != nil {
		return false, err
	}
	groupID, err := m.groupID(ctx, m.db, groupName)
	if err != nil {
		return false, err
	}
	var one int
	err = m.db.QueryRowContext(ctx,
		"SELECT 1 FROM user_groups WHERE user_id = ? AND group_id = ?", userID, groupID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "sql: error checking membership")
	}
	return true, nil
}

func (m *mgr) ResolvePrincipal(ctx context.Context, userName string) (*identity.PrincipalSet, error) {
	u, err := m.GetUser(ctx, userName)
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
		"SELECT g.id, g.group_name FROM `groups` g"+
			" JOIN user_groups ug ON ug.group_id = g.id"+
			" WHERE ug.user_id = ? ORDER BY g.id", u.ID)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error resolving principal")
	}
	defer rows.Close()

	pset := &identity.PrincipalSet{User: u}
	adminGroup := sharedconf.GetAdminGroup()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, errors.Wrap(err, "sql: error resolving principal")
		}
		pset.GroupIDs = append(pset.GroupIDs, id)
		if name == adminGroup {
			pset.Admin = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sql: error resolving principal")
	}

	anonID, err := m.groupID(ctx, m.db, sharedconf.GetAnonymousGroup())
	if err != nil {
		return nil, err
	}
	if !pset.HasGroup(anonID) {
		pset.GroupIDs = append(pset.GroupIDs, anonID)
	}
	return pset, nil
}

func (m *mgr) ResolveAnonymous(ctx context.Context) (*identity.PrincipalSet, error) {
	anonID, err := m.groupID(ctx, m.db, sharedconf.GetAnonymousGroup())
	if err != nil {
		return nil, err
	}
	return &identity.PrincipalSet{GroupIDs: []int64{anonID}}, nil
}

func (m *mgr) VerifyPassword(ctx context.Context, name, password string) (*identity.User, error) {
	var u identity.User
	var hash string
	err := m.db.QueryRowContext(ctx,
		"SELECT id, user_name, email, password_hash FROM users WHERE user_name = ?", name).
		Scan(&u.ID, &u.Name, &u.Email, &hash)
	if err == sql.ErrNoRows || (err == nil && hash == "") {
		return nil, errtypes.InvalidCredentials(name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sql: error verifying password")
	}
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return nil, errtypes.InternalError("comparing password: " + err.Error())
	}
	if !match {
		return nil, errtypes.InvalidCredentials(name)
	}
	return &u, nil
}

func (m *mgr) SetPassword(ctx context.Context, name, password string) error {
	if password == "" {
		return errtypes.BadRequest("empty password")
	}
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return errtypes.InternalError("hashing password: " + err.Error())
	}
	res, err := m.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE user_name = ?", hash, name)
	if err != nil {
		return errors.Wrap(err, "sql: error setting password")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sql: error setting password")
	}
	if n == 0 {
		return errtypes.NotFound("user " + name)
	}
	return nil
}

func (m *mgr) LinkIdentity(ctx context.Context, provider, externalID, externalName, userName string) error {
	if provider == "" || externalID == "" {
		return errtypes.BadRequest("empty provider or external id")
	}
	userID, err := m.userID(ctx, m.db, userName)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx,
		"INSERT INTO external_identities (provider_name, external_id, external_user_name, user_id) VALUES (?, ?, ?, ?)",
		provider, externalID, externalName, userID)
	if db.IsDuplicate(err) {
		return errtypes.AlreadyExists("identity " + provider + ":" + externalID)
	}
	return errors.Wrap(err, "sql: error linking identity")
}

func (m *mgr) UnlinkIdentity(ctx context.Context, provider, externalID string) error {
	res, err := m.db.ExecContext(ctx,
		"DELETE FROM external_identities WHERE provider_name = ? AND external_id = ?",
		provider, externalID)
	if err != nil {
		return errors.Wrap(err, "sql: error unlinking identity")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sql: error unlinking identity")
	}
	if n == 0 {
		return errtypes.NotFound("identity " + provider + ":" + externalID)
	}
	return nil
}

func (m *mgr) GetUserByIdentity(ctx context.Context, provider, externalID string) (*identity.User, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT u.id, u.user_name, u.email FROM users u"+
			" JOIN external_identities x ON x.user_id = u.id"+
			" WHERE x.provider_name = ? AND x.external_id = ?", provider, externalID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errtypes.NotFound("identity " + provider + ":" + externalID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sql: error getting user by identity")
	}
	return u, nil
}

func (m *mgr) ListIdentities(ctx context.Context, userName string) ([]*identity.ExternalIdentity, error) {
	userID, err := m.userID(ctx, m.db, userName)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		"SELECT provider_name, external_id, external_user_name, user_id FROM external_identities"+
			" WHERE user_id = ? ORDER BY provider_name, external_id", userID)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error listing identities")
	}
	defer rows.Close()

	var links []*identity.ExternalIdentity
	for rows.Next() {
		var link identity.ExternalIdentity
		if err := rows.Scan(&link.Provider, &link.ExternalID, &link.ExternalName, &link.UserID); err != nil {
			return nil, errors.Wrap(err, "sql: error scanning identity")
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

func (m *mgr) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*identity.User, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error listing users")
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sql: error scanning user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func isProtectedGroup(name string) bool {
	return name == sharedconf.GetAnonymousGroup() ||
		name == sharedconf.GetAdminGroup() ||
		name == sharedconf.GetUsersGroup()
}
