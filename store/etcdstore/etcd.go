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

// Package etcdstore keeps counters as etcd keys and advances them with compare-and-swap
// transactions.
package etcdstore

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/store"
)

const DefaultKeyPrefix = "/" + store.KeyPrefix

type Config struct {
	Endpoints   []string      `mapstructure:"endpoints" yaml:"endpoints"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"password"`
	DialTimeout time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout"`
	KeyPrefix   string        `mapstructure:"keyPrefix" yaml:"keyPrefix"`
}

// Table implements store.Table on an etcd key space.
type Table struct {
	kv     clientv3.KV
	prefix string
	closer io.Closer
}

func Dial(ctx context.Context, config Config) (*Table, error) {
	if len(config.Endpoints) == 0 {
		return nil, errors.Wrap(common.ErrInvalidConfiguration, "at least one etcd endpoint is required")
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		Username:    config.Username,
		Password:    config.Password,
		DialTimeout: config.DialTimeout,
		Context:     ctx,
	})
	if err != nil {
		return nil, common.BackendUnavailable(err)
	}

	slog.Debug("Connected to etcd", slog.Any("endpoints", config.Endpoints))
	t := New(client, config.KeyPrefix)
	t.closer = client
	return t, nil
}

// New uses an existing client, which stays open when the Table is closed. An empty
// prefix selects DefaultKeyPrefix.
func New(kv clientv3.KV, prefix string) *Table {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Table{kv: kv, prefix: prefix}
}

func (t *Table) key(name string) string {
	return t.prefix + name
}

func encode(value int64) string {
	return strconv.FormatInt(value, 10)
}

func decode(name string, raw []byte) (int64, error) {
	value, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(common.ErrCounterCorruption, "counter %q holds %q", name, raw)
	}
	return value, nil
}

func (t *Table) Load(ctx context.Context, name string) (int64, bool, error) {
	resp, err := t.kv.Get(ctx, t.key(name))
	if err != nil {
		return 0, false, err
	}
	if len(resp.Kvs) == 0 {
		return 0, false, nil
	}
	value, err := decode(name, resp.Kvs[0].Value)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (t *Table) Insert(ctx context.Context, name string, value int64) error {
	key := t.key(name)
	_, err := t.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, encode(value))).
		Commit()
	return err
}

func (t *Table) CompareAndSet(ctx context.Context, name string, oldValue, newValue int64) (bool, error) {
	key := t.key(name)
	resp, err := t.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", encode(oldValue))).
		Then(clientv3.OpPut(key, encode(newValue))).
		Commit()
	if err != nil {
		return false, err
	}
	return resp.Succeeded, nil
}

func (t *Table) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
