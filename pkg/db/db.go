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

// Package db manages the database handles shared by the sql drivers
// and owns the schema they operate on.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	mu    sync.Mutex
	conns = make(map[string]*sql.DB)
)

// Open returns a handle to the given database. Handles are shared per
// (driver, dsn) pair so every driver in the process reuses one
// connection pool.
func Open(driverName, dsn string) (*sql.DB, error) {
	mu.Lock()
	defer mu.Unlock()

	key := driverName + "://" + dsn
	if d, ok := conns[key]; ok {
		return d, nil
	}

	d, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "db: error opening %s database", driverName)
	}

	d.SetConnMaxLifetime(time.Hour)
	d.SetMaxOpenConns(10)
	d.SetMaxIdleConns(5)
	if driverName == "sqlite3" {
		// sqlite serializes writers, a single connection avoids busy errors.
		d.SetMaxOpenConns(1)
	}

	conns[key] = d
	return d, nil
}

// Transact runs fn inside a transaction. The transaction is rolled
// back when fn returns an error and committed otherwise.
func Transact(ctx context.Context, d *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "db: error starting transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "db: error rolling back transaction: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "db: error committing transaction")
}

// IsDuplicate reports whether the error is a unique constraint
// violation.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint &&
			(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

// Placeholders returns n comma separated ? markers for an IN clause.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// Int64Args widens ids into the argument slice ExecContext and
// QueryContext expect.
func Int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// IsTransient reports whether the error is a connection failure,
// deadlock or busy condition that may succeed when retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		// 1205 lock wait timeout, 1213 deadlock.
		return me.Number == 1205 || me.Number == 1213
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// WithRetry runs op and retries it once after a short pause when it
// fails with a transient store error. Any other error aborts
// immediately.
func WithRetry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 1), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
