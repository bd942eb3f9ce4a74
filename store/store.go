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

// Package store holds the durable side of range leasing: a Store advances a named
// counter by a step and returns the new upper bound, so that the caller owns the
// interval [upper-step+1, upper].
package store

import (
	"context"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/streamnative/sequence/common"
)

const (
	// KeyPrefix namespaces counters in shared key spaces and tables.
	KeyPrefix = "sequence_"

	// DefaultSafetyMargin is the distance from math.MaxInt64 under which a stored counter
	// is considered corrupted.
	DefaultSafetyMargin int64 = 100_000_000
)

// Store advances counters. Two successful Advance calls for the same name never return
// overlapping intervals, whatever the number of callers or processes. Implementations
// are safe for concurrent use.
type Store interface {
	io.Closer

	// Advance atomically adds step to the counter and returns the new value.
	Advance(ctx context.Context, name string, step int64) (int64, error)
}

// ValidateAdvance checks the arguments shared by every Store implementation.
func ValidateAdvance(name string, step int64) error {
	if name == "" {
		return errors.Wrap(common.ErrInvalidConfiguration, "counter name cannot be empty")
	}
	if step <= 0 {
		return errors.Wrapf(common.ErrInvalidConfiguration, "step must be positive, got %d", step)
	}
	return nil
}

// CheckStoredValue rejects counters that are negative or that could overflow once
// advanced.
func CheckStoredValue(name string, value int64, margin int64) error {
	if value < 0 {
		return errors.Wrapf(common.ErrCounterCorruption,
			"counter %q holds a negative value %d", name, value)
	}
	if value > math.MaxInt64-margin {
		return errors.Wrapf(common.ErrCounterCorruption,
			"counter %q value %d is within %d of overflow", name, value, margin)
	}
	return nil
}
