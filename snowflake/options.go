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

package snowflake

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/sequence/common"
)

// DefaultEpoch is 2018-01-01T00:00:00Z in milliseconds.
const DefaultEpoch int64 = 1514736000000

type options struct {
	dataCenterID int64
	workerID     int64
	epoch        int64
	clock        common.Clock
}

// Option configures a Generator at construction time.
type Option interface {
	apply(opts options) (options, error)
}

type optionFunc func(options) (options, error)

func (f optionFunc) apply(o options) (options, error) {
	return f(o)
}

// WithDataCenterID sets the data center coordinate, in [0, MaxDataCenterID].
func WithDataCenterID(id int64) Option {
	return optionFunc(func(o options) (options, error) {
		if id < 0 || id > MaxDataCenterID {
			return o, errors.Wrapf(common.ErrInvalidConfiguration,
				"data center id %d is outside [0, %d]", id, MaxDataCenterID)
		}
		o.dataCenterID = id
		return o, nil
	})
}

// WithWorkerID sets the worker coordinate, in [0, MaxWorkerID].
func WithWorkerID(id int64) Option {
	return optionFunc(func(o options) (options, error) {
		if id < 0 || id > MaxWorkerID {
			return o, errors.Wrapf(common.ErrInvalidConfiguration,
				"worker id %d is outside [0, %d]", id, MaxWorkerID)
		}
		o.workerID = id
		return o, nil
	})
}

// WithEpoch overrides DefaultEpoch. The epoch cannot be in the future.
func WithEpoch(epoch time.Time) Option {
	return optionFunc(func(o options) (options, error) {
		if epoch.UnixMilli() < 0 {
			return o, errors.Wrapf(common.ErrInvalidConfiguration, "epoch %s is before 1970", epoch)
		}
		o.epoch = epoch.UnixMilli()
		return o, nil
	})
}

// WithClock replaces the system clock, mostly useful in tests.
func WithClock(clock common.Clock) Option {
	return optionFunc(func(o options) (options, error) {
		if clock == nil {
			return o, errors.Wrap(common.ErrInvalidConfiguration, "clock cannot be nil")
		}
		o.clock = clock
		return o, nil
	})
}

func newOptions(opts []Option) (options, error) {
	o := options{
		epoch: DefaultEpoch,
		clock: common.SystemClock(),
	}
	var errs error
	for _, opt := range opts {
		var err error
		if o, err = opt.apply(o); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return o, errs
	}

	if now := o.clock.NowMillis(); o.epoch > now {
		return o, errors.Wrapf(common.ErrInvalidConfiguration,
			"epoch %d is in the future (now %d)", o.epoch, now)
	}
	return o, nil
}
