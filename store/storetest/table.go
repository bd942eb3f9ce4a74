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

// Package storetest holds the behavior every store.Table implementation must honor.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/streamnative/sequence/store"
)

// ZeroBackOff skips the pause between optimistic attempts.
func ZeroBackOff(context.Context) backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

// RunTableTests exercises a fresh Table returned by newTable for each sub-test.
func RunTableTests(t *testing.T, newTable func(t *testing.T) store.Table) {
	t.Helper()

	t.Run("LoadMissing", func(t *testing.T) {
		table := newTable(t)
		_, found, err := table.Load(context.Background(), uuid.NewString())
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("InsertIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		table := newTable(t)
		name := uuid.NewString()

		require.NoError(t, table.Insert(ctx, name, 5))
		require.NoError(t, table.Insert(ctx, name, 10))

		value, found, err := table.Load(ctx, name)
		require.NoError(t, err)
		assert.True(t, found)
		assert.EqualValues(t, 5, value)
	})

	t.Run("CompareAndSet", func(t *testing.T) {
		ctx := context.Background()
		table := newTable(t)
		name := uuid.NewString()

		ok, err := table.CompareAndSet(ctx, name, 0, 10)
		require.NoError(t, err)
		assert.False(t, ok, "missing record must not be updated")

		require.NoError(t, table.Insert(ctx, name, 0))

		ok, err = table.CompareAndSet(ctx, name, 0, 10)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = table.CompareAndSet(ctx, name, 0, 20)
		require.NoError(t, err)
		assert.False(t, ok, "stale expected value must be rejected")

		value, _, err := table.Load(ctx, name)
		require.NoError(t, err)
		assert.EqualValues(t, 10, value)
	})

	t.Run("AdvanceRoundTrip", func(t *testing.T) {
		st, err := store.NewOptimistic(newTable(t), store.WithConflictBackOff(ZeroBackOff))
		require.NoError(t, err)
		defer st.Close()

		name := uuid.NewString()
		for _, expected := range []int64{1000, 2000, 3000} {
			upper, err := st.Advance(context.Background(), name, 1000)
			require.NoError(t, err)
			assert.Equal(t, expected, upper)
		}
	})

	t.Run("ConcurrentAdvanceNeverOverlaps", func(t *testing.T) {
		st, err := store.NewOptimistic(newTable(t),
			store.WithMaxRetries(1000),
			store.WithConflictBackOff(ZeroBackOff))
		require.NoError(t, err)
		defer st.Close()

		const workers = 4
		const advances = 25
		const step = 10
		name := uuid.NewString()

		var mu sync.Mutex
		uppers := map[int64]struct{}{}

		var eg errgroup.Group
		for i := 0; i < workers; i++ {
			eg.Go(func() error {
				for j := 0; j < advances; j++ {
					upper, err := st.Advance(context.Background(), name, step)
					if err != nil {
						return err
					}
					mu.Lock()
					uppers[upper] = struct{}{}
					mu.Unlock()
				}
				return nil
			})
		}
		require.NoError(t, eg.Wait())

		// Distinct upper bounds with a fixed step mean disjoint intervals
		require.Len(t, uppers, workers*advances)
		for i := int64(1); i <= workers*advances; i++ {
			assert.Contains(t, uppers, i*step)
		}
	})
}
