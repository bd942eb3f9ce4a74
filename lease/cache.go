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

// Package lease dispenses identifiers from contiguous ranges leased from a store.Store.
package lease

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/common/metrics"
	"github.com/streamnative/sequence/store"
)

const DefaultStep int64 = 1000

type options struct {
	step int64
}

// Option configures a Cache at construction time.
type Option func(*options) error

// WithStep sets the size of every leased range.
func WithStep(step int64) Option {
	return func(o *options) error {
		if step <= 0 {
			return errors.Wrapf(common.ErrInvalidConfiguration, "step must be positive, got %d", step)
		}
		o.step = step
		return nil
	}
}

// Cache holds the active Range of one counter. Dispense claims values without locking
// and only serializes callers when the range runs out, so that a single Advance is
// issued per exhaustion no matter how many callers observe it.
type Cache struct {
	store store.Store
	name  string
	step  int64

	current atomic.Pointer[Range]

	refillLock sync.Mutex
	// failures counts failed refills. Callers sample it before waiting for the lock to
	// tell whether the refill they waited on failed.
	failures atomic.Uint64
	lastErr  error

	dispensed      metrics.Counter
	refills        metrics.Counter
	refillFailures metrics.Counter
	remaining      io.Closer
}

func NewCache(st store.Store, name string, opts ...Option) (*Cache, error) {
	o := options{step: DefaultStep}
	var errs error
	for _, opt := range opts {
		errs = multierr.Append(errs, opt(&o))
	}
	if st == nil {
		errs = multierr.Append(errs, errors.Wrap(common.ErrInvalidConfiguration, "store cannot be nil"))
	}
	errs = multierr.Append(errs, store.ValidateAdvance(name, o.step))
	if errs != nil {
		return nil, errs
	}

	labels := metrics.LabelsForCounter(name)
	c := &Cache{
		store: st,
		name:  name,
		step:  o.step,

		dispensed: metrics.NewCounter("sequence_lease_dispensed",
			"The number of values handed out from leased ranges", metrics.Dimensionless, labels),
		refills: metrics.NewCounter("sequence_lease_refills",
			"The number of ranges leased from the store", metrics.Dimensionless, labels),
		refillFailures: metrics.NewCounter("sequence_lease_refill_failures",
			"The number of failed attempts to lease a range", metrics.Dimensionless, labels),
	}
	c.remaining = metrics.NewGauge("sequence_lease_remaining",
		"Values left in the active range", metrics.Dimensionless, labels,
		func() int64 {
			if r := c.current.Load(); r != nil {
				return r.Remaining()
			}
			return 0
		})
	return c, nil
}

func (c *Cache) Name() string {
	return c.name
}

func (c *Cache) Step() int64 {
	return c.step
}

// Dispense returns the next value of the counter. Values of a range are handed out
// exactly once. When the store fails, every caller waiting on that refill receives the
// error and the next call tries again.
func (c *Cache) Dispense(ctx context.Context) (int64, error) {
	for {
		r := c.current.Load()
		if r != nil {
			if value, ok := r.claim(); ok {
				c.dispensed.Inc()
				return value, nil
			}
		}

		if err := c.refill(ctx, r); err != nil {
			return 0, err
		}
	}
}

// refill installs a new range in place of stale, unless another caller already did.
func (c *Cache) refill(ctx context.Context, stale *Range) error {
	failures := c.failures.Load()

	c.refillLock.Lock()
	defer c.refillLock.Unlock()

	if c.current.Load() != stale {
		return nil
	}
	if c.failures.Load() != failures {
		return c.lastErr
	}

	upper, err := c.store.Advance(ctx, c.name, c.step)
	if err == nil && upper < c.step {
		err = errors.Wrapf(common.ErrCounterCorruption,
			"counter %q advanced to %d, below the step %d", c.name, upper, c.step)
	}
	if err != nil {
		c.lastErr = err
		c.failures.Add(1)
		c.refillFailures.Inc()
		slog.Warn(
			"Failed to lease a new range",
			slog.String("counter", c.name),
			slog.Any("error", err),
		)
		return err
	}

	next := newRange(upper-c.step+1, upper)
	c.current.Store(next)
	c.refills.Inc()
	slog.Debug(
		"Leased a new range",
		slog.String("counter", c.name),
		slog.Int64("low", next.Low),
		slog.Int64("high", next.High),
	)
	return nil
}

// Current returns the state of the active range. ok is false before the first lease.
func (c *Cache) Current() (snapshot Snapshot, ok bool) {
	r := c.current.Load()
	if r == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		Low:       r.Low,
		High:      r.High,
		Next:      min(r.cursor.Load(), r.High+1),
		Exhausted: r.Exhausted(),
	}, true
}

// Close stops reporting metrics for this cache. The store is left open.
func (c *Cache) Close() error {
	return c.remaining.Close()
}
