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

package lease

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/store"
)

type fakeStore struct {
	sync.Mutex
	value int64
	err   error

	calls   atomic.Int64
	entered chan struct{}
	gate    chan struct{}
}

func (s *fakeStore) Advance(_ context.Context, name string, step int64) (int64, error) {
	if err := store.ValidateAdvance(name, step); err != nil {
		return 0, err
	}
	s.calls.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}

	s.Lock()
	defer s.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.value += step
	return s.value, nil
}

func (s *fakeStore) setErr(err error) {
	s.Lock()
	defer s.Unlock()
	s.err = err
}

func (*fakeStore) Close() error {
	return nil
}

func newTestCache(t *testing.T, st store.Store, step int64) *Cache {
	t.Helper()
	c, err := NewCache(st, "orders", WithStep(step))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close())
	})
	return c
}

func TestNewCacheValidation(t *testing.T) {
	_, err := NewCache(&fakeStore{}, "", WithStep(10))
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	_, err = NewCache(&fakeStore{}, "orders", WithStep(0))
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	_, err = NewCache(nil, "orders")
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	c, err := NewCache(&fakeStore{}, "orders")
	require.NoError(t, err)
	assert.Equal(t, DefaultStep, c.Step())
	assert.Equal(t, "orders", c.Name())
	assert.NoError(t, c.Close())
}

func TestDispenseSequential(t *testing.T) {
	st := &fakeStore{}
	c := newTestCache(t, st, 3)

	_, ok := c.Current()
	assert.False(t, ok)

	for expected := int64(1); expected <= 10; expected++ {
		value, err := c.Dispense(context.Background())
		require.NoError(t, err)
		assert.Equal(t, expected, value)
	}
	assert.EqualValues(t, 4, st.calls.Load())

	snapshot, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, Snapshot{Low: 10, High: 12, Next: 11}, snapshot)
}

func TestDispenseFirstRangeConcurrently(t *testing.T) {
	st := &fakeStore{}
	c := newTestCache(t, st, 1000)

	values := make([]int64, 1000)
	var eg errgroup.Group
	for i := range values {
		eg.Go(func() error {
			value, err := c.Dispense(context.Background())
			values[i] = value
			return err
		})
	}
	require.NoError(t, eg.Wait())

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, value := range values {
		assert.EqualValues(t, i+1, value)
	}
	assert.EqualValues(t, 1, st.calls.Load())

	snapshot, ok := c.Current()
	require.True(t, ok)
	assert.EqualValues(t, 1001, snapshot.Next)
	assert.False(t, snapshot.Exhausted)
}

func TestSingleRefillPerExhaustion(t *testing.T) {
	st := &fakeStore{}
	c := newTestCache(t, st, 100)

	for i := 0; i < 100; i++ {
		_, err := c.Dispense(context.Background())
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, st.calls.Load())

	st.entered = make(chan struct{}, 1)
	st.gate = make(chan struct{})

	const waiters = 50
	values := make(chan int64, waiters)
	var eg errgroup.Group
	for i := 0; i < waiters; i++ {
		eg.Go(func() error {
			value, err := c.Dispense(context.Background())
			values <- value
			return err
		})
	}

	<-st.entered
	// Let the other callers pile up behind the refill in progress
	time.Sleep(50 * time.Millisecond)
	close(st.gate)

	require.NoError(t, eg.Wait())
	close(values)

	assert.EqualValues(t, 2, st.calls.Load())
	seen := map[int64]bool{}
	for value := range values {
		assert.False(t, seen[value], "duplicate value %d", value)
		seen[value] = true
		assert.GreaterOrEqual(t, value, int64(101))
		assert.LessOrEqual(t, value, int64(100+waiters))
	}
	assert.Len(t, seen, waiters)
}

func TestDispenseGaplessUnderContention(t *testing.T) {
	st := &fakeStore{}
	c := newTestCache(t, st, 7)

	const goroutines = 16
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, goroutines*perGoroutine)

	var eg errgroup.Group
	for i := 0; i < goroutines; i++ {
		eg.Go(func() error {
			for j := 0; j < perGoroutine; j++ {
				value, err := c.Dispense(context.Background())
				if err != nil {
					return err
				}
				mu.Lock()
				seen[value] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	require.Len(t, seen, goroutines*perGoroutine)
	for v := int64(1); v <= goroutines*perGoroutine; v++ {
		_, ok := seen[v]
		require.True(t, ok, "missing value %d", v)
	}
	assert.EqualValues(t, (goroutines*perGoroutine+6)/7, st.calls.Load())
}

func TestRefillFailureIsNotPermanent(t *testing.T) {
	st := &fakeStore{}
	c := newTestCache(t, st, 2)

	for i := 0; i < 2; i++ {
		_, err := c.Dispense(context.Background())
		require.NoError(t, err)
	}

	st.setErr(common.ErrRetriesExhausted)
	for i := 0; i < 3; i++ {
		_, err := c.Dispense(context.Background())
		assert.ErrorIs(t, err, common.ErrRetriesExhausted)
	}

	snapshot, ok := c.Current()
	require.True(t, ok)
	assert.True(t, snapshot.Exhausted)

	st.setErr(nil)
	value, err := c.Dispense(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, value)
}

func TestRefillFailureReachesBlockedCallers(t *testing.T) {
	st := &fakeStore{}
	c := newTestCache(t, st, 5)

	for i := 0; i < 5; i++ {
		_, err := c.Dispense(context.Background())
		require.NoError(t, err)
	}

	st.setErr(common.BackendUnavailable(io.ErrUnexpectedEOF))
	st.entered = make(chan struct{}, 100)
	st.gate = make(chan struct{})
	close(st.gate)

	const waiters = 20
	var failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Dispense(context.Background())
			if assert.ErrorIs(t, err, common.ErrBackendUnavailable) {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, waiters, failed.Load())
	// No caller retries a failed refill on its own
	assert.LessOrEqual(t, st.calls.Load(), int64(waiters))
}

func TestStoreReturningImpossibleBound(t *testing.T) {
	st := &fakeStore{value: -500}
	c := newTestCache(t, st, 100)

	_, err := c.Dispense(context.Background())
	assert.ErrorIs(t, err, common.ErrCounterCorruption)
}
