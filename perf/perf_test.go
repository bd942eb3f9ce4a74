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

package perf

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/lease"
	"github.com/streamnative/sequence/sequence"
	"github.com/streamnative/sequence/store"
)

type repeating struct {
	next atomic.Int64
}

// NextValue hands out every value twice.
func (r *repeating) NextValue(context.Context) (int64, error) {
	return r.next.Add(1) / 2, nil
}

func (*repeating) Close() error {
	return nil
}

func TestRunSnowflake(t *testing.T) {
	seq, err := sequence.NewSnowflake()
	require.NoError(t, err)

	p, err := New(Config{Count: 10_001, Concurrency: 4}, seq)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10_001, res.Count)
	assert.Zero(t, res.Duplicates)
	assert.Positive(t, res.Rate())
	assert.LessOrEqual(t, res.P50, res.Max)
}

func TestRunRange(t *testing.T) {
	st, err := store.NewOptimistic(store.NewMemoryTable())
	require.NoError(t, err)
	seq, err := sequence.NewRange(st, "bench", lease.WithStep(64))
	require.NoError(t, err)
	defer seq.Close()

	p, err := New(Config{Count: 5000, Concurrency: 8}, seq)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Duplicates)
}

func TestRunDetectsDuplicates(t *testing.T) {
	p, err := New(Config{Count: 100, Concurrency: 1}, &repeating{})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 49, res.Duplicates)
}

func TestRunRateLimited(t *testing.T) {
	seq, err := sequence.NewSnowflake()
	require.NoError(t, err)

	// The burst covers the first 100 calls, the remaining 50 take about half a second
	p, err := New(Config{Count: 150, Concurrency: 2, RequestRate: 100}, seq)
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Elapsed, 400*time.Millisecond)
}

func TestInvalidConfig(t *testing.T) {
	for _, config := range []Config{
		{Count: 0, Concurrency: 1},
		{Count: 1, Concurrency: 0},
		{Count: 1, Concurrency: 1, RequestRate: -1},
	} {
		_, err := New(config, &repeating{})
		assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	}
}
