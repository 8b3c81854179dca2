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

// Package sql persists the resource trees in a relational database.
// It is written against mysql and is exercised against sqlite in the
// tests, so statements stick to the shared subset of both dialects.
package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/DACCS-Climate/Magpie/pkg/db"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/resource"
	"github.com/DACCS-Climate/Magpie/pkg/resource/manager/registry"
	"github.com/DACCS-Climate/Magpie/pkg/service"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
	"github.com/DACCS-Climate/Magpie/pkg/utils/cfg"
	"github.com/pkg/errors"
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

// New returns a resource manager connected to the configured
// database.
func New(m map[string]interface{}) (resource.Manager, error) {
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

// NewFromDB returns a resource manager using the given handle.
func NewFromDB(driver string, d *sql.DB) (resource.Manager, error) {
	return &mgr{driver: driver, db: d}, nil
}

type mgr struct {
	driver string
	db     *sql.DB
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const resourceColumns = "id, resource_name, resource_type, parent_id, root_service_id, owner_user_id, owner_group_id"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(s scanner) (*resource.Resource, error) {
	var r resource.Resource
	var parent, ownerUser, ownerGroup sql.NullInt64
	if err := s.Scan(&r.ID, &r.Name, &r.Type, &parent, &r.RootServiceID, &ownerUser, &ownerGroup); err != nil {
		return nil, err
	}
	r.ParentID = parent.Int64
	r.OwnerUserID = ownerUser.Int64
	r.OwnerGroupID = ownerGroup.Int64
	return &r, nil
}

func (m *mgr) getResource(ctx context.Context, q querier, id int64) (*resource.Resource, error) {
	row := q.QueryRowContext(ctx, "SELECT "+resourceColumns+" FROM resources WHERE id = ?", id)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, errtypes.NotFound(fmt.Sprintf("resource %d", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, "sql: error getting resource")
	}
	return r, nil
}

func (m *mgr) getService(ctx context.Context, q querier, where string, arg interface{}) (*resource.Service, error) {
	row := q.QueryRowContext(ctx,
		"SELECT r.id, r.resource_name, r.parent_id, r.root_service_id, r.owner_user_id, r.owner_group_id, s.service_type, s.service_url"+
			" FROM resources r JOIN services s ON s.resource_id = r.id WHERE "+where, arg)
	svc, err := scanService(row)
	if err == sql.ErrNoRows {
		return nil, errtypes.NotFound(fmt.Sprintf("service %v", arg))
	}
	if err != nil {
		return nil, errors.Wrap(err, "sql: error getting service")
	}
	return svc, nil
}

func scanService(s scanner) (*resource.Service, error) {
	var svc resource.Service
	var parent, ownerUser, ownerGroup sql.NullInt64
	if err := s.Scan(&svc.ID, &svc.Name, &parent, &svc.RootServiceID, &ownerUser, &ownerGroup, &svc.ServiceType, &svc.URL); err != nil {
		return nil, err
	}
	svc.Type = resource.TypeService
	svc.ParentID = parent.Int64
	svc.OwnerUserID = ownerUser.Int64
	svc.OwnerGroupID = ownerGroup.Int64
	return &svc, nil
}

func (m *mgr) CreateService(ctx context.Context, name, serviceType, url string) (*resource.Service, error) {
	if err := resource.ValidateName(name); err != nil {
		return nil, err
	}
	if _, ok := service.Lookup(serviceType); !ok {
		return nil, errtypes.BadRequest("unknown service type: " + serviceType)
	}

	var svc *resource.Service
	err := db.Transact(ctx, m.db, func(tx *sql.Tx) error {
		// service names are unique across trees; the sibling unique
		// key does not cover roots because their parent is NULL
		var existing int64
		err := tx.QueryRowContext(ctx,
			"SELECT r.id FROM resources r JOIN services s ON s.resource_id = r.id WHERE r.resource_name = ?",
			name).Scan(&existing)
		if err == nil {
			return errtypes.AlreadyExists("service " + name)
		}
		if err != sql.ErrNoRows {
			return errors.Wrap(err, "sql: error checking service name")
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO resources (resource_name, resource_type, parent_id, root_service_id) VALUES (?, ?, NULL, 0)",
			name, resource.TypeService)
		if err != nil {
			return errors.Wrap(err, "sql: error inserting service resource")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "sql: error getting inserted id")
		}
		if _, err := tx.ExecContext(ctx, "UPDATE resources SET root_service_id = ? WHERE id = ?", id, id); err != nil {
			return errors.Wrap(err, "sql: error setting root service id")
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO services (resource_id, service_type, service_url) VALUES (?, ?, ?)",
			id, serviceType, url); err != nil {
			return errors.Wrap(err, "sql: error inserting service attributes")
		}

		svc = &resource.Service{
			Resource: resource.Resource{
				ID:            id,
				Name:          name,
				Type:          resource.TypeService,
				RootServiceID: id,
			},
			ServiceType: serviceType,
			URL:         url,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (m *mgr) GetService(ctx context.Context, id int64) (*resource.Service, error) {
	return m.getService(ctx, m.db, "r.id = ?", id)
}

func (m *mgr) GetServiceByName(ctx context.Context, name string) (*resource.Service, error) {
	return m.getService(ctx, m.db, "r.resource_name = ?", name)
}

func (m *mgr) ListServices(ctx context.Context, serviceType string) ([]*resource.Service, error) {
	query := "SELECT r.id, r.resource_name, r.parent_id, r.root_service_id, r.owner_user_id, r.owner_group_id, s.service_type, s.service_url" +
		" FROM resources r JOIN services s ON s.resource_id = r.id"
	var args []interface{}
	if serviceType != "" {
		query += " WHERE s.service_type = ?"
		args = append(args, serviceType)
	}
	query += " ORDER BY r.resource_name"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error listing services")
	}
	defer rows.Close()

	var svcs []*resource.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sql: error scanning service")
		}
		svcs = append(svcs, svc)
	}
	return svcs, rows.Err()
}

func (m *mgr) CreateResource(ctx context.Context, parentID int64, name string, t resource.Type) (*resource.Resource, error) {
	if err := resource.ValidateName(name); err != nil {
		return nil, err
	}
	if !t.Valid() || t == resource.TypeService {
		return nil, errtypes.BadRequest("invalid resource type: " + string(t))
	}

	var out *resource.Resource
	err := db.Transact(ctx, m.db, func(tx *sql.Tx) error {
		parent, err := m.getResource(ctx, tx, parentID)
		if err != nil {
			return err
		}
		if err := m.checkChildType(ctx, tx, parent, t); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO resources (resource_name, resource_type, parent_id, root_service_id) VALUES (?, ?, ?, ?)",
			name, t, parentID, parent.RootServiceID)
		if db.IsDuplicate(err) {
			return errtypes.AlreadyExists(fmt.Sprintf("resource %s below %d", name, parentID))
		}
		if err != nil {
			return errors.Wrap(err, "sql: error inserting resource")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "sql: error getting inserted id")
		}

		out = &resource.Resource{
			ID:            id,
			Name:          name,
			Type:          t,
			ParentID:      parentID,
			RootServiceID: parent.RootServiceID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *mgr) GetResource(ctx context.Context, id int64) (*resource.Resource, error) {
	return m.getResource(ctx, m.db, id)
}

func (m *mgr) ListChildren(ctx context.Context, id int64) ([]*resource.Resource, error) {
	if _, err := m.getResource(ctx, m.db, id); err != nil {
		return nil, err
	}
	return m.children(ctx, m.db, []int64{id})
}

func (m *mgr) children(ctx context.Context, q querier, parents []int64) ([]*resource.Resource, error) {
	query := "SELECT " + resourceColumns + " FROM resources WHERE parent_id IN (" +
		db.Placeholders(len(parents)) + ") ORDER BY parent_id, resource_name"
	rows, err := q.QueryContext(ctx, query, db.Int64Args(parents)...)
	if err != nil {
		return nil, errors.Wrap(err, "sql: error listing children")
	}
	defer rows.Close()

	var kids []*resource.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sql: error scanning resource")
		}
		kids = append(kids, r)
	}
	return kids, rows.Err()
}

func (m *mgr) Subtree(ctx context.Context, id int64) ([]*resource.Resource, error) {
	return m.subtree(ctx, m.db, id)
}

func (m *mgr) subtree(ctx context.Context, q querier, id int64) ([]*resource.Resource, error) {
	root, err := m.getResource(ctx, q, id)
	if err != nil {
		return nil, err
	}
	all := []*resource.Resource{root}
	level := []int64{id}
	for len(level) > 0 {
		kids, err := m.children(ctx, q, level)
		if err != nil {
			return nil, err
		}
		level = level[:0]
		for _, kid := range kids {
			all = append(all, kid)
			level = append(level, kid.ID)
		}
	}
	return all, nil
}

func (m *mgr) Ancestors(ctx context.Context, id int64) ([]*resource.Resource, error) {
	r, err := m.getResource(ctx, m.db, id)
	if err != nil {
		return nil, err
	}
	chain := []*resource.Resource{r}
	for r.ParentID != 0 {
		r, err = m.getResource(ctx, m.db, r.ParentID)
		if err != nil {
			return nil, err
		}
		chain = append([]*resource.Resource{r}, chain...)
	}
	return chain, nil
}

func (m *mgr) LookupPath(ctx context.Context, rootID int64, names []string) ([]*resource.Resource, []string, error) {
	r, err := m.getResource(ctx, m.db, rootID)
	if err != nil {
		return nil, nil, err
	}
	chain := []*resource.Resource{r}
	for i, name := range names {
		row := m.db.QueryRowContext(ctx,
			"SELECT "+resourceColumns+" FROM resources WHERE parent_id = ? AND resource_name = ?",
			r.ID, name)
		next, err := scanResource(row)
		if err == sql.ErrNoRows {
			return chain, names[i:], nil
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "sql: error walking path")
		}
		r = next
		chain = append(chain, r)
	}
	return chain, nil, nil
}

func (m *mgr) Rename(ctx context.Context, id int64, name string) error {
	if err := resource.ValidateName(name); err != nil {
		return err
	}
	return db.Transact(ctx, m.db, func(tx *sql.Tx) error {
		r, err := m.getResource(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.Name == name {
			return nil
		}
		if r.IsRoot() {
			var existing int64
			err := tx.QueryRowContext(ctx,
				"SELECT r.id FROM resources r JOIN services s ON s.resource_id = r.id WHERE r.resource_name = ?",
				name).Scan(&existing)
			if err == nil {
				return errtypes.AlreadyExists("service " + name)
			}
			if err != sql.ErrNoRows {
				return errors.Wrap(err, "sql: error checking service name")
			}
		}
		_, err = tx.ExecContext(ctx, "UPDATE resources SET resource_name = ? WHERE id = ?", name, id)
		if db.IsDuplicate(err) {
			return errtypes.AlreadyExists(fmt.Sprintf("resource %s below %d", name, r.ParentID))
		}
		return errors.Wrap(err, "sql: error renaming resource")
	})
}

func (m *mgr) Move(ctx context.Context, id, newParentID int64) error {
	return db.Transact(ctx, m.db, func(tx *sql.Tx) error {
		r, err := m.getResource(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.IsRoot() {
			return errtypes.BadRequest("cannot move a service root")
		}
		parent, err := m.getResource(ctx, tx, newParentID)
		if err != nil {
			return err
		}
		if parent.RootServiceID != r.RootServiceID {
			return errtypes.PolicyViolation("cannot move across services")
		}
		for p := parent; ; {
			if p.ID == id {
				return errtypes.PolicyViolation("cannot move below own subtree")
			}
			if p.ParentID == 0 {
				break
			}
			if p, err = m.getResource(ctx, tx, p.ParentID); err != nil {
				return err
			}
		}
		if err := m.checkChildType(ctx, tx, parent, r.Type); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "UPDATE resources SET parent_id = ? WHERE id = ?", newParentID, id)
		if db.IsDuplicate(err) {
			return errtypes.AlreadyExists(fmt.Sprintf("resource %s below %d", r.Name, newParentID))
		}
		return errors.Wrap(err, "sql: error moving resource")
	})
}

func (m *mgr) DeleteSubtree(ctx context.Context, id int64) ([]int64, error) {
	var ids []int64
	err := db.Transact(ctx, m.db, func(tx *sql.Tx) error {
		all, err := m.subtree(ctx, tx, id)
		if err != nil {
			return err
		}
		// delete leaves first so no orphan is ever visible
		for i := len(all) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, "DELETE FROM resources WHERE id = ?", all[i].ID); err != nil {
				return errors.Wrap(err, "sql: error deleting resource")
			}
		}
		ids = make([]int64, len(all))
		for i, r := range all {
			ids[i] = r.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *mgr) SetOwner(ctx context.Context, id, ownerUserID, ownerGroupID int64) error {
	if _, err := m.getResource(ctx, m.db, id); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx,
		"UPDATE resources SET owner_user_id = ?, owner_group_id = ? WHERE id = ?",
		nullable(ownerUserID), nullable(ownerGroupID), id)
	return errors.Wrap(err, "sql: error setting owner")
}

func (m *mgr) CountOwnedByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM resources WHERE owner_user_id = ?", userID).Scan(&count)
	return count, errors.Wrap(err, "sql: error counting owned resources")
}

func (m *mgr) ReleaseOwnedByUser(ctx context.Context, userID int64) error {
	_, err := m.db.ExecContext(ctx, "UPDATE resources SET owner_user_id = NULL WHERE owner_user_id = ?", userID)
	return errors.Wrap(err, "sql: error releasing ownership")
}

func (m *mgr) ReleaseOwnedByGroup(ctx context.Context, groupID int64) error {
	_, err := m.db.ExecContext(ctx, "UPDATE resources SET owner_group_id = NULL WHERE owner_group_id = ?", groupID)
	return errors.Wrap(err, "sql: error releasing ownership")
}

func (m *mgr) checkChildType(ctx context.Context, q querier, parent *resource.Resource, t resource.Type) error {
	var serviceType string
	err := q.QueryRowContext(ctx, "SELECT service_type FROM services WHERE resource_id = ?", parent.RootServiceID).Scan(&serviceType)
	if err == sql.ErrNoRows {
		return errtypes.InternalError(fmt.Sprintf("resource %d has no root service", parent.ID))
	}
	if err != nil {
		return errors.Wrap(err, "sql: error getting root service type")
	}
	desc, ok := service.Lookup(serviceType)
	if !ok {
		return errtypes.InternalError("unknown service type: " + serviceType)
	}
	if !desc.ChildAllowed(parent.Type, t) {
		return errtypes.PolicyViolation(fmt.Sprintf("service type %s does not allow %s below %s",
			serviceType, t, parent.Type))
	}
	return nil
}

func nullable(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
