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

package store

import (
	"context"
	"io"
	"math"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/sequence/common"
)

func zeroBackOff(context.Context) backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// flakyTable loses the first conditional writes, and counts every call.
type flakyTable struct {
	Table

	failures atomic.Int64
	loads    atomic.Int64
	inserts  atomic.Int64
	writes   atomic.Int64
	loadErr  error
}

func newFlakyTable(failures int64) *flakyTable {
	t := &flakyTable{Table: NewMemoryTable()}
	t.failures.Store(failures)
	return t
}

func (t *flakyTable) Load(ctx context.Context, name string) (int64, bool, error) {
	t.loads.Add(1)
	if t.loadErr != nil {
		return 0, false, t.loadErr
	}
	return t.Table.Load(ctx, name)
}

func (t *flakyTable) Insert(ctx context.Context, name string, value int64) error {
	t.inserts.Add(1)
	return t.Table.Insert(ctx, name, value)
}

func (t *flakyTable) CompareAndSet(ctx context.Context, name string, oldValue, newValue int64) (bool, error) {
	t.writes.Add(1)
	if t.failures.Add(-1) >= 0 {
		return false, nil
	}
	return t.Table.CompareAndSet(ctx, name, oldValue, newValue)
}

func TestOptimisticRetriesConflicts(t *testing.T) {
	for _, test := range []struct {
		name       string
		failures   int64
		maxRetries int
		isErr      bool
	}{
		{"no-conflict", 0, 1, false},
		{"bound-above-failures", 3, 4, false},
		{"bound-well-above-failures", 3, 100, false},
		{"bound-equals-failures", 3, 3, true},
		{"bound-below-failures", 3, 2, true},
	} {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			table := newFlakyTable(test.failures)
			require.NoError(t, table.Table.Insert(ctx, "orders", 0))

			st, err := NewOptimistic(table, WithMaxRetries(test.maxRetries), WithConflictBackOff(zeroBackOff))
			require.NoError(t, err)

			upper, err := st.Advance(ctx, "orders", 1000)
			if test.isErr {
				assert.ErrorIs(t, err, common.ErrRetriesExhausted)
				assert.EqualValues(t, test.maxRetries, table.writes.Load())
				return
			}

			require.NoError(t, err)
			assert.EqualValues(t, 1000, upper)
			assert.EqualValues(t, test.failures+1, table.writes.Load())
			assert.EqualValues(t, test.failures+1, table.loads.Load())
		})
	}
}

func TestOptimisticBootstrapConsumesOneAttempt(t *testing.T) {
	ctx := context.Background()
	table := newFlakyTable(0)

	st, err := NewOptimistic(table, WithMaxRetries(2), WithConflictBackOff(zeroBackOff))
	require.NoError(t, err)

	upper, err := st.Advance(ctx, "fresh", 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, upper)
	assert.EqualValues(t, 1, table.inserts.Load())
	assert.EqualValues(t, 2, table.loads.Load())
	assert.EqualValues(t, 1, table.writes.Load())

	// With a single attempt, creating the record uses the whole budget
	st, err = NewOptimistic(newFlakyTable(0), WithMaxRetries(1), WithConflictBackOff(zeroBackOff))
	require.NoError(t, err)
	_, err = st.Advance(ctx, "fresh", 1000)
	assert.ErrorIs(t, err, common.ErrRetriesExhausted)
}

func TestOptimisticInitialValue(t *testing.T) {
	st, err := NewOptimistic(NewMemoryTable(), WithInitialValue(5000), WithConflictBackOff(zeroBackOff))
	require.NoError(t, err)

	upper, err := st.Advance(context.Background(), "orders", 100)
	require.NoError(t, err)
	assert.EqualValues(t, 5100, upper)
}

func TestOptimisticRoundTrip(t *testing.T) {
	st, err := NewOptimistic(NewMemoryTable(), WithConflictBackOff(zeroBackOff))
	require.NoError(t, err)

	var ranges [][2]int64
	for i := 0; i < 3; i++ {
		upper, err := st.Advance(context.Background(), "orders", 1000)
		require.NoError(t, err)
		ranges = append(ranges, [2]int64{upper - 1000 + 1, upper})
	}
	assert.Equal(t, [][2]int64{{1, 1000}, {1001, 2000}, {2001, 3000}}, ranges)
}

func TestOptimisticCorruption(t *testing.T) {
	for _, test := range []struct {
		name   string
		stored int64
	}{
		{"negative", -1},
		{"near-overflow", math.MaxInt64 - DefaultSafetyMargin + 1},
		{"max", math.MaxInt64},
	} {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			table := newFlakyTable(0)
			require.NoError(t, table.Table.Insert(ctx, "orders", test.stored))

			st, err := NewOptimistic(table, WithConflictBackOff(zeroBackOff))
			require.NoError(t, err)

			_, err = st.Advance(ctx, "orders", 1000)
			assert.ErrorIs(t, err, common.ErrCounterCorruption)
			assert.EqualValues(t, 0, table.writes.Load(), "corrupted counters are never written")
		})
	}

	assert.NoError(t, CheckStoredValue("orders", math.MaxInt64-DefaultSafetyMargin, DefaultSafetyMargin))
}

func TestOptimisticBackendUnavailable(t *testing.T) {
	table := newFlakyTable(0)
	table.loadErr = io.ErrUnexpectedEOF

	st, err := NewOptimistic(table)
	require.NoError(t, err)

	_, err = st.Advance(context.Background(), "orders", 1000)
	assert.ErrorIs(t, err, common.ErrBackendUnavailable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.EqualValues(t, 1, table.loads.Load(), "transport failures are not retried")
}

func TestOptimisticTableErrorsKeepTheirClass(t *testing.T) {
	for _, test := range []struct {
		name     string
		loadErr  error
		expected error
	}{
		{"corruption", errors.Wrap(common.ErrCounterCorruption, "counter holds garbage"), common.ErrCounterCorruption},
		{"invalid", errors.Wrap(common.ErrInvalidConfiguration, "bad counter name"), common.ErrInvalidConfiguration},
	} {
		t.Run(test.name, func(t *testing.T) {
			table := newFlakyTable(0)
			table.loadErr = test.loadErr

			st, err := NewOptimistic(table, WithConflictBackOff(zeroBackOff))
			require.NoError(t, err)

			_, err = st.Advance(context.Background(), "orders", 1000)
			assert.ErrorIs(t, err, test.expected)
			assert.NotErrorIs(t, err, common.ErrBackendUnavailable)
			assert.EqualValues(t, 1, table.loads.Load())
		})
	}
}

func TestOptimisticInvalidArguments(t *testing.T) {
	_, err := NewOptimistic(nil, WithMaxRetries(0), WithInitialValue(-1))
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	assert.ErrorContains(t, err, "max retries")
	assert.ErrorContains(t, err, "initial value")
	assert.ErrorContains(t, err, "table cannot be nil")

	st, err := NewOptimistic(NewMemoryTable(), WithSafetyMargin(10))
	require.NoError(t, err)

	for _, test := range []struct {
		name string
		step int64
	}{
		{"", 10},
		{"orders", 0},
		{"orders", -5},
		{"orders", 11},
	} {
		_, err := st.Advance(context.Background(), test.name, test.step)
		assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	}
}

func TestOptimisticCancelledWhileBackingOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	table := newFlakyTable(math.MaxInt32)
	require.NoError(t, table.Table.Insert(ctx, "orders", 0))

	st, err := NewOptimistic(table)
	require.NoError(t, err)

	cancel()
	_, err = st.Advance(ctx, "orders", 1000)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, table.writes.Load())
}
