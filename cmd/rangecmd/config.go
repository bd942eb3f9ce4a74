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

package rangecmd

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/lease"
	"github.com/streamnative/sequence/store"
	"github.com/streamnative/sequence/store/boltstore"
	"github.com/streamnative/sequence/store/etcdstore"
	"github.com/streamnative/sequence/store/pebblestore"
	"github.com/streamnative/sequence/store/redisstore"
	"github.com/streamnative/sequence/store/relational"
)

const DefaultCounterName = "default"

const (
	StoreMemory   = "memory"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StoreEtcd     = "etcd"
	StorePebble   = "pebble"
	StoreBolt     = "bolt"
)

type SQLConfig struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	Table           string        `mapstructure:"table" yaml:"table"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns" yaml:"maxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime" yaml:"connMaxLifetime"`
}

// Config selects the counter store and the lease parameters. It can be loaded from a
// YAML file, command line flags override the file.
type Config struct {
	Store        string `mapstructure:"store" yaml:"store"`
	Name         string `mapstructure:"name" yaml:"name"`
	Step         int64  `mapstructure:"step" yaml:"step"`
	MaxRetries   int    `mapstructure:"maxRetries" yaml:"maxRetries"`
	InitialValue int64  `mapstructure:"initialValue" yaml:"initialValue"`

	SQL    SQLConfig           `mapstructure:"sql" yaml:"sql"`
	Redis  redisstore.Options  `mapstructure:"redis" yaml:"redis"`
	Etcd   etcdstore.Config    `mapstructure:"etcd" yaml:"etcd"`
	Pebble pebblestore.Options `mapstructure:"pebble" yaml:"pebble"`
	Bolt   boltstore.Options   `mapstructure:"bolt" yaml:"bolt"`
}

func NewConfig() Config {
	return Config{
		Store:      StoreMemory,
		Name:       DefaultCounterName,
		Step:       lease.DefaultStep,
		MaxRetries: store.DefaultMaxRetries,
		SQL: SQLConfig{
			Table:        relational.DefaultTableName,
			MaxOpenConns: 10,
		},
	}
}

// OpenStore connects to the configured backend. The caller owns the returned Store.
func OpenStore(ctx context.Context, conf Config) (store.Store, error) {
	if conf.Store == StoreRedis {
		return redisstore.Dial(ctx, conf.Redis)
	}

	table, err := openTable(ctx, conf)
	if err != nil {
		return nil, err
	}

	st, err := store.NewOptimistic(table,
		store.WithMaxRetries(conf.MaxRetries),
		store.WithInitialValue(conf.InitialValue),
	)
	if err != nil {
		_ = table.Close()
		return nil, err
	}
	return st, nil
}

func openTable(ctx context.Context, conf Config) (store.Table, error) {
	switch conf.Store {
	case StoreMemory:
		return store.NewMemoryTable(), nil
	case StoreMySQL, StorePostgres, StoreSQLite:
		return openRelational(ctx, conf)
	case StoreEtcd:
		return etcdstore.Dial(ctx, conf.Etcd)
	case StorePebble:
		return pebblestore.Open(conf.Pebble)
	case StoreBolt:
		return boltstore.Open(conf.Bolt)
	}
	return nil, errors.Wrapf(common.ErrInvalidConfiguration, "unknown store %q", conf.Store)
}

func openRelational(ctx context.Context, conf Config) (store.Table, error) {
	dialect, err := relational.ParseDialect(conf.Store)
	if err != nil {
		return nil, err
	}
	if conf.SQL.DSN == "" {
		return nil, errors.Wrapf(common.ErrInvalidConfiguration, "a dsn is required for store %q", conf.Store)
	}

	table, err := relational.Open(ctx, dialect, conf.SQL.DSN,
		relational.WithTableName(conf.SQL.Table),
		relational.WithMaxOpenConns(conf.SQL.MaxOpenConns),
		relational.WithConnMaxLifetime(conf.SQL.ConnMaxLifetime),
	)
	if err != nil {
		return nil, err
	}
	if err := table.EnsureTable(ctx); err != nil {
		_ = table.Close()
		return nil, err
	}
	return table, nil
}
