// Copyright 2023 StreamNative, Inc.
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

// Package relational stores counters as rows of a SQL table and advances them with
// conditional updates. MySQL, PostgreSQL and SQLite are supported.
package relational

import (
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"time"

	// database/sql drivers, one per Dialect
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/store"
)

const DefaultTableName = "range"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,53}$`)

type options struct {
	tableName       string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

type Option func(*options) error

// WithTableName sets the logical table name. The physical table is prefixed with
// store.KeyPrefix.
func WithTableName(name string) Option {
	return func(o *options) error {
		if !identifier.MatchString(name) {
			return errors.Wrapf(common.ErrInvalidConfiguration, "invalid table name %q", name)
		}
		o.tableName = name
		return nil
	}
}

func WithMaxOpenConns(n int) Option {
	return func(o *options) error {
		o.maxOpenConns = n
		return nil
	}
}

func WithMaxIdleConns(n int) Option {
	return func(o *options) error {
		o.maxIdleConns = n
		return nil
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) error {
		o.connMaxLifetime = d
		return nil
	}
}

// Table implements store.Table over database/sql.
type Table struct {
	db        *sql.DB
	ownsDB    bool
	dialect   Dialect
	tableName string
	queries   queries
}

// Open connects to the database described by dsn. The connection pool is closed with
// the Table.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Table, error) {
	o, err := newOptions(dialect, opts)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, errors.Wrapf(common.ErrInvalidConfiguration, "can not open %s database: %v", dialect, err)
	}

	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(o.connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Append(common.BackendUnavailable(err), db.Close())
	}

	t := newTable(db, dialect, o)
	t.ownsDB = true
	return t, nil
}

// New uses an existing connection pool, which stays open when the Table is closed.
func New(db *sql.DB, dialect Dialect, opts ...Option) (*Table, error) {
	if db == nil {
		return nil, errors.Wrap(common.ErrInvalidConfiguration, "db cannot be nil")
	}
	o, err := newOptions(dialect, opts)
	if err != nil {
		return nil, err
	}
	return newTable(db, dialect, o), nil
}

func newOptions(dialect Dialect, opts []Option) (options, error) {
	o := options{
		tableName:    DefaultTableName,
		maxOpenConns: 10,
		maxIdleConns: 2,
	}
	errs := dialect.validate()
	for _, opt := range opts {
		errs = multierr.Append(errs, opt(&o))
	}
	return o, errs
}

func newTable(db *sql.DB, dialect Dialect, o options) *Table {
	tableName := store.KeyPrefix + o.tableName
	return &Table{
		db:        db,
		dialect:   dialect,
		tableName: tableName,
		queries:   dialect.queries(tableName),
	}
}

// TableName is the physical table name.
func (t *Table) TableName() string {
	return t.tableName
}

// EnsureTable creates the counters table when it does not exist yet.
func (t *Table) EnsureTable(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, t.queries.createTable); err != nil {
		return common.BackendUnavailable(errors.Wrapf(err, "failed to create table %s", t.tableName))
	}
	slog.Debug(
		"Counters table is ready",
		slog.String("table", t.tableName),
		slog.String("dialect", string(t.dialect)),
	)
	return nil
}

func (t *Table) Load(ctx context.Context, name string) (int64, bool, error) {
	var value int64
	err := t.db.QueryRowContext(ctx, t.queries.selectValue, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (t *Table) Insert(ctx context.Context, name string, value int64) error {
	now := time.Now().UTC()
	_, err := t.db.ExecContext(ctx, t.queries.insertValue, name, value, now, now)
	return err
}

func (t *Table) CompareAndSet(ctx context.Context, name string, oldValue, newValue int64) (bool, error) {
	res, err := t.db.ExecContext(ctx, t.queries.updateValue, newValue, time.Now().UTC(), name, oldValue)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (t *Table) Close() error {
	if !t.ownsDB {
		return nil
	}
	return t.db.Close()
}
