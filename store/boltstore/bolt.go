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

// Package boltstore keeps counters in a bbolt file. Every operation runs in a bbolt
// transaction, and the file lock keeps other processes out while the store is open.
package boltstore

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/store"
)

const DefaultBucket = store.KeyPrefix + "range"

type Options struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// LockTimeout bounds the wait for the file lock held by another process.
	LockTimeout time.Duration `mapstructure:"lockTimeout" yaml:"lockTimeout"`
}

type Table struct {
	db     *bolt.DB
	bucket []byte
}

func Open(options Options) (*Table, error) {
	if options.Path == "" {
		return nil, errors.Wrap(common.ErrInvalidConfiguration, "bolt file path is required")
	}
	if options.Bucket == "" {
		options.Bucket = DefaultBucket
	}
	if options.LockTimeout == 0 {
		options.LockTimeout = time.Second
	}

	db, err := bolt.Open(options.Path, 0o644, &bolt.Options{Timeout: options.LockTimeout})
	if err != nil {
		return nil, common.BackendUnavailable(errors.Wrapf(err, "failed to open %s", options.Path))
	}

	t := &Table{db: db, bucket: []byte(options.Bucket)}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(t.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, common.BackendUnavailable(err)
	}

	slog.Debug(
		"Opened bolt counter store",
		slog.String("path", options.Path),
		slog.String("bucket", options.Bucket),
	)
	return t, nil
}

func read(b *bolt.Bucket, name string) (int64, bool, error) {
	raw := b.Get([]byte(name))
	if raw == nil {
		return 0, false, nil
	}
	if len(raw) != 8 {
		return 0, false, errors.Wrapf(common.ErrCounterCorruption,
			"counter %q holds %d bytes", name, len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw)), true, nil
}

func write(b *bolt.Bucket, name string, value int64) error {
	return b.Put([]byte(name), binary.BigEndian.AppendUint64(nil, uint64(value)))
}

func (t *Table) Load(_ context.Context, name string) (value int64, found bool, err error) {
	err = t.db.View(func(tx *bolt.Tx) error {
		value, found, err = read(tx.Bucket(t.bucket), name)
		return err
	})
	return value, found, err
}

func (t *Table) Insert(_ context.Context, name string, value int64) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if _, found, err := read(b, name); err != nil || found {
			return err
		}
		return write(b, name, value)
	})
}

func (t *Table) CompareAndSet(_ context.Context, name string, oldValue, newValue int64) (swapped bool, err error) {
	err = t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		current, found, err := read(b, name)
		if err != nil || !found || current != oldValue {
			return err
		}
		swapped = true
		return write(b, name, newValue)
	})
	return swapped && err == nil, err
}

func (t *Table) Close() error {
	return t.db.Close()
}
