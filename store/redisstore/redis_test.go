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

package redisstore

import (
	"context"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/streamnative/sequence/common"
)

type replyError string

func (e replyError) Error() string { return string(e) }

func (replyError) RedisError() {}

type fakeRedis struct {
	sync.Mutex
	values map[string]int64
	err    error
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]int64)}
}

func (f *fakeRedis) IncrBy(_ context.Context, key string, value int64) *redis.IntCmd {
	f.Lock()
	defer f.Unlock()

	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.values[key] > math.MaxInt64-value {
		return redis.NewIntResult(0, replyError("ERR increment or decrement would overflow"))
	}
	f.values[key] += value
	return redis.NewIntResult(f.values[key], nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestAdvance(t *testing.T) {
	client := newFakeRedis()
	s, err := New(client)
	require.NoError(t, err)

	for _, expected := range []int64{1000, 2000, 3000} {
		upper, err := s.Advance(context.Background(), "orders", 1000)
		require.NoError(t, err)
		assert.Equal(t, expected, upper)
	}
	assert.EqualValues(t, 3000, client.values["sequence_orders"])

	require.NoError(t, s.Close())
	assert.True(t, client.closed)
}

func TestAdvanceCorruption(t *testing.T) {
	for _, test := range []struct {
		name   string
		stored int64
	}{
		{"negative", -1},
		{"near-overflow", math.MaxInt64 - 50_000_000},
		{"overflow", math.MaxInt64 - 10},
	} {
		t.Run(test.name, func(t *testing.T) {
			client := newFakeRedis()
			client.values[Key("orders")] = test.stored
			s, err := New(client)
			require.NoError(t, err)

			_, err = s.Advance(context.Background(), "orders", 1000)
			assert.ErrorIs(t, err, common.ErrCounterCorruption)
		})
	}

	client := newFakeRedis()
	client.err = replyError("ERR value is not an integer or out of range")
	s, err := New(client)
	require.NoError(t, err)
	_, err = s.Advance(context.Background(), "orders", 1000)
	assert.ErrorIs(t, err, common.ErrCounterCorruption)
}

func TestAdvanceBackendUnavailable(t *testing.T) {
	client := newFakeRedis()
	client.err = io.ErrUnexpectedEOF
	s, err := New(client)
	require.NoError(t, err)

	_, err = s.Advance(context.Background(), "orders", 1000)
	assert.ErrorIs(t, err, common.ErrBackendUnavailable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestInvalidArguments(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	_, err = New(newFakeRedis(), WithSafetyMargin(0))
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	s, err := New(newFakeRedis())
	require.NoError(t, err)
	_, err = s.Advance(context.Background(), "", 1000)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	_, err = s.Advance(context.Background(), "orders", 0)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	_, err = Dial(context.Background(), Options{})
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestRedisServer(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}

	s, err := Dial(context.Background(), Options{Addrs: strings.Split(addr, ",")})
	require.NoError(t, err)
	defer s.Close()

	name := uuid.NewString()
	const workers, perWorker, step = 8, 50, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	g := errgroup.Group{}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := 0; j < perWorker; j++ {
				upper, err := s.Advance(context.Background(), name, step)
				if err != nil {
					return err
				}
				mu.Lock()
				seen[upper] = true
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, workers*perWorker)
	for i := int64(1); i <= workers*perWorker; i++ {
		assert.True(t, seen[i*step])
	}
}
