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

// Package pebblestore keeps counters in an embedded pebble database. It serves a single
// process: the compare-and-set is serialized in memory, not across processes.
package pebblestore

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/common/metrics"
	"github.com/streamnative/sequence/store"
)

type Options struct {
	Dir string `mapstructure:"dir" yaml:"dir"`

	// InMemory keeps the database in memory only, for tests and dry runs.
	InMemory bool `mapstructure:"inMemory" yaml:"inMemory"`
}

// Table implements store.Table on a pebble database.
type Table struct {
	sync.Mutex

	db        *pebble.DB
	dbMetrics func() *pebble.Metrics
	gauges    []io.Closer
}

func Open(options Options) (*Table, error) {
	if options.Dir == "" && !options.InMemory {
		return nil, errors.Wrap(common.ErrInvalidConfiguration, "pebble data directory is required")
	}

	pbOptions := &pebble.Options{
		FS: vfs.Default,
		Logger: &pebbleLogger{
			slog.With(slog.String("component", "pebble")),
		},
		FormatMajorVersion: pebble.FormatNewest,
	}
	dir := options.Dir
	if options.InMemory {
		pbOptions.FS = vfs.NewMem()
		if dir == "" {
			dir = "sequence"
		}
	}

	db, err := pebble.Open(dir, pbOptions)
	if err != nil {
		return nil, common.BackendUnavailable(errors.Wrapf(err, "failed to open database at %s", dir))
	}

	t := &Table{db: db}

	// Shared by every gauge callback
	t.dbMetrics = common.Memoize(func() *pebble.Metrics {
		return t.db.Metrics()
	}, 5*time.Second)

	labels := map[string]any{"store": "pebble"}
	t.gauges = []io.Closer{
		metrics.NewGauge("sequence_store_pebble_disk_space",
			"The total size of all the db files",
			metrics.Bytes, labels, func() int64 {
				return int64(t.dbMetrics().DiskSpaceUsage())
			}),
		metrics.NewGauge("sequence_store_pebble_memtable_size",
			"The size of the memtable",
			metrics.Bytes, labels, func() int64 {
				return int64(t.dbMetrics().MemTable.Size)
			}),
	}

	slog.Info(
		"Opened pebble counter store",
		slog.String("dir", options.Dir),
		slog.Bool("in-memory", options.InMemory),
	)
	return t, nil
}

func key(name string) []byte {
	return []byte(store.KeyPrefix + name)
}

func encode(value int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(value))
}

func (t *Table) get(name string) (int64, bool, error) {
	raw, closer, err := t.db.Get(key(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()

	if len(raw) != 8 {
		return 0, false, errors.Wrapf(common.ErrCounterCorruption,
			"counter %q holds %d bytes", name, len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw)), true, nil
}

func (t *Table) Load(_ context.Context, name string) (int64, bool, error) {
	return t.get(name)
}

func (t *Table) Insert(_ context.Context, name string, value int64) error {
	t.Lock()
	defer t.Unlock()

	if _, found, err := t.get(name); err != nil || found {
		return err
	}
	return t.db.Set(key(name), encode(value), pebble.Sync)
}

func (t *Table) CompareAndSet(_ context.Context, name string, oldValue, newValue int64) (bool, error) {
	t.Lock()
	defer t.Unlock()

	current, found, err := t.get(name)
	if err != nil || !found || current != oldValue {
		return false, err
	}
	if err := t.db.Set(key(name), encode(newValue), pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Table) Close() error {
	var err error
	for _, g := range t.gauges {
		err = multierr.Append(err, g.Close())
	}
	return multierr.Append(err, t.db.Close())
}
