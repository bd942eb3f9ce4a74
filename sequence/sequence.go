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

// Package sequence hands out unique 64-bit identifiers through a single NextValue call,
// backed either by a bit-packed snowflake generator or by ranges leased from a shared
// counter store.
package sequence

import (
	"context"
	"io"

	"go.uber.org/multierr"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/lease"
	"github.com/streamnative/sequence/snowflake"
	"github.com/streamnative/sequence/store"
)

var (
	ErrInvalidConfiguration = common.ErrInvalidConfiguration
	ErrClockRegression      = common.ErrClockRegression
	ErrRetriesExhausted     = common.ErrRetriesExhausted
	ErrCounterCorruption    = common.ErrCounterCorruption
	ErrBackendUnavailable   = common.ErrBackendUnavailable
)

// Sequence returns a fresh identifier on every successful call and never repeats one.
// It is safe for concurrent use.
type Sequence interface {
	io.Closer

	NextValue(ctx context.Context) (int64, error)
}

type snowflakeSequence struct {
	generator *snowflake.Generator
}

func NewSnowflake(opts ...snowflake.Option) (Sequence, error) {
	g, err := snowflake.New(opts...)
	if err != nil {
		return nil, err
	}
	return &snowflakeSequence{generator: g}, nil
}

func (s *snowflakeSequence) NextValue(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.generator.Next()
}

func (*snowflakeSequence) Close() error {
	return nil
}

type rangeSequence struct {
	cache *lease.Cache
	store store.Store
}

// NewRange dispenses values leased from the counter called name. The returned Sequence
// owns st and closes it.
func NewRange(st store.Store, name string, opts ...lease.Option) (Sequence, error) {
	c, err := lease.NewCache(st, name, opts...)
	if err != nil {
		return nil, err
	}
	return &rangeSequence{cache: c, store: st}, nil
}

func (s *rangeSequence) NextValue(ctx context.Context) (int64, error) {
	return s.cache.Dispense(ctx)
}

func (s *rangeSequence) Close() error {
	return multierr.Combine(s.cache.Close(), s.store.Close())
}
