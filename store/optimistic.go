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
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/common/metrics"
)

const DefaultMaxRetries = 100

// Table is a durable map from counter name to its last allocated value, offering the
// primitives of an optimistic read-modify-write cycle.
type Table interface {
	io.Closer

	// Load returns the stored value. found is false when no record exists.
	Load(ctx context.Context, name string) (value int64, found bool, err error)

	// Insert creates the record with the given value. An already existing record is
	// left untouched and is not an error.
	Insert(ctx context.Context, name string, value int64) error

	// CompareAndSet stores newValue only if the record still holds oldValue, and reports
	// whether it did.
	CompareAndSet(ctx context.Context, name string, oldValue, newValue int64) (bool, error)
}

type optimisticOptions struct {
	maxRetries      int
	initialValue    int64
	safetyMargin    int64
	conflictBackOff func(ctx context.Context) backoff.BackOff
}

// OptimisticOption configures NewOptimistic.
type OptimisticOption func(*optimisticOptions) error

// WithMaxRetries bounds the number of read-compute-write attempts of one Advance call.
// Creating a missing record consumes one attempt.
func WithMaxRetries(maxRetries int) OptimisticOption {
	return func(o *optimisticOptions) error {
		if maxRetries <= 0 {
			return errors.Wrapf(common.ErrInvalidConfiguration, "max retries must be positive, got %d", maxRetries)
		}
		o.maxRetries = maxRetries
		return nil
	}
}

// WithInitialValue is the value new counters are created with. The first interval
// handed out is [initial+1, initial+step].
func WithInitialValue(initial int64) OptimisticOption {
	return func(o *optimisticOptions) error {
		if initial < 0 {
			return errors.Wrapf(common.ErrInvalidConfiguration, "initial value cannot be negative, got %d", initial)
		}
		o.initialValue = initial
		return nil
	}
}

func WithSafetyMargin(margin int64) OptimisticOption {
	return func(o *optimisticOptions) error {
		if margin <= 0 {
			return errors.Wrapf(common.ErrInvalidConfiguration, "safety margin must be positive, got %d", margin)
		}
		o.safetyMargin = margin
		return nil
	}
}

// WithConflictBackOff sets the pause taken after a lost conditional write.
func WithConflictBackOff(f func(ctx context.Context) backoff.BackOff) OptimisticOption {
	return func(o *optimisticOptions) error {
		if f == nil {
			return errors.Wrap(common.ErrInvalidConfiguration, "conflict backoff cannot be nil")
		}
		o.conflictBackOff = f
		return nil
	}
}

// Optimistic realizes Store on top of a Table with compare-and-set retries.
type Optimistic struct {
	table        Table
	maxRetries   int
	initialValue int64
	safetyMargin int64
	backOff      func(ctx context.Context) backoff.BackOff

	advanceLatency metrics.LatencyHistogram
	attempts       metrics.Histogram
	conflicts      metrics.Counter
}

func NewOptimistic(table Table, opts ...OptimisticOption) (*Optimistic, error) {
	o := optimisticOptions{
		maxRetries:      DefaultMaxRetries,
		safetyMargin:    DefaultSafetyMargin,
		conflictBackOff: common.NewConflictBackOff,
	}
	var errs error
	for _, opt := range opts {
		errs = multierr.Append(errs, opt(&o))
	}
	if table == nil {
		errs = multierr.Append(errs, errors.Wrap(common.ErrInvalidConfiguration, "table cannot be nil"))
	}
	if errs != nil {
		return nil, errs
	}

	return &Optimistic{
		table:        table,
		maxRetries:   o.maxRetries,
		initialValue: o.initialValue,
		safetyMargin: o.safetyMargin,
		backOff:      o.conflictBackOff,

		advanceLatency: metrics.NewLatencyHistogram(metrics.StoreAdvanceLatency,
			"Latency of a successful counter advance", nil),
		attempts: metrics.NewCountHistogram(metrics.StoreAdvanceAttempts,
			"Attempts needed by one counter advance", nil),
		conflicts: metrics.NewCounter("sequence_store_conflicts",
			"Conditional writes lost to a concurrent writer", metrics.Dimensionless, nil),
	}, nil
}

func (s *Optimistic) Advance(ctx context.Context, name string, step int64) (int64, error) {
	if err := ValidateAdvance(name, step); err != nil {
		return 0, err
	}
	if step > s.safetyMargin {
		return 0, errors.Wrapf(common.ErrInvalidConfiguration,
			"step %d is larger than the safety margin %d", step, s.safetyMargin)
	}

	timer := s.advanceLatency.Timer()
	b := s.backOff(ctx)

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		stored, found, err := s.table.Load(ctx, name)
		if err != nil {
			return 0, common.BackendUnavailable(err)
		}

		if !found {
			// The record is created but not trusted until it is read back
			slog.Debug(
				"Creating counter",
				slog.String("counter", name),
				slog.Int64("initial-value", s.initialValue),
			)
			if err := s.table.Insert(ctx, name, s.initialValue); err != nil {
				return 0, common.BackendUnavailable(err)
			}
			continue
		}

		if err := CheckStoredValue(name, stored, s.safetyMargin); err != nil {
			return 0, err
		}

		upper := stored + step
		ok, err := s.table.CompareAndSet(ctx, name, stored, upper)
		if err != nil {
			return 0, common.BackendUnavailable(err)
		}
		if ok {
			timer.Done()
			s.attempts.Record(attempt)
			return upper, nil
		}

		s.conflicts.Inc()
		slog.Debug(
			"Lost the race to advance counter",
			slog.String("counter", name),
			slog.Int64("stored", stored),
			slog.Int("attempt", attempt),
		)
		if attempt < s.maxRetries {
			if err := wait(ctx, b); err != nil {
				return 0, err
			}
		}
	}

	s.attempts.Record(s.maxRetries)
	return 0, errors.Wrapf(common.ErrRetriesExhausted,
		"counter %q could not be advanced in %d attempts", name, s.maxRetries)
}

func wait(ctx context.Context, b backoff.BackOff) error {
	next := b.NextBackOff()
	if next == backoff.Stop {
		return ctx.Err()
	}
	if next <= 0 {
		return nil
	}

	timer := time.NewTimer(next)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Optimistic) Close() error {
	return s.table.Close()
}
