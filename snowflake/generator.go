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
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/common/metrics"
)

const (
	TimestampBits  = 41
	DataCenterBits = 5
	WorkerBits     = 5
	SequenceBits   = 12

	MaxDataCenterID int64 = -1 ^ (-1 << DataCenterBits)
	MaxWorkerID     int64 = -1 ^ (-1 << WorkerBits)
	MaxSequence     int64 = -1 ^ (-1 << SequenceBits)

	workerShift     = SequenceBits
	dataCenterShift = SequenceBits + WorkerBits
	timestampShift  = SequenceBits + WorkerBits + DataCenterBits
)

// Generator is the bit-packed identifier generator. It is safe for concurrent use.
type Generator struct {
	sync.Mutex

	clock        common.Clock
	epoch        int64
	dataCenterID int64
	workerID     int64

	lastTimestamp int64
	sequence      int64

	generated        metrics.Counter
	clockRegressions metrics.Counter
}

func New(opts ...Option) (*Generator, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	labels := map[string]any{
		"datacenter": int(o.dataCenterID),
		"worker":     int(o.workerID),
	}
	return &Generator{
		clock:         o.clock,
		epoch:         o.epoch,
		dataCenterID:  o.dataCenterID,
		workerID:      o.workerID,
		lastTimestamp: -1,

		generated: metrics.NewCounter("sequence_snowflake_generated",
			"The number of identifiers generated", metrics.Dimensionless, labels),
		clockRegressions: metrics.NewCounter("sequence_snowflake_clock_regressions",
			"The number of calls rejected because the clock moved backwards", metrics.Dimensionless, labels),
	}, nil
}

// Next returns a fresh identifier. It fails with common.ErrClockRegression when the
// clock is behind the last generated identifier; later calls succeed again once the
// clock has caught up.
func (g *Generator) Next() (int64, error) {
	g.Lock()
	defer g.Unlock()

	now := g.clock.NowMillis()
	if floor := max(g.lastTimestamp, g.epoch); now < floor {
		g.clockRegressions.Inc()
		slog.Warn(
			"Clock moved backwards, refusing to generate id",
			slog.Int64("now", now),
			slog.Int64("last-timestamp", floor),
		)
		return 0, errors.Wrapf(common.ErrClockRegression,
			"clock at %d ms is %d ms behind the last generated timestamp", now, floor-now)
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & MaxSequence
		if g.sequence == 0 {
			// 4096 ids were already handed out in this millisecond
			now = g.waitNextMillis(g.lastTimestamp)
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = now
	g.generated.Inc()

	return ((now - g.epoch) << timestampShift) |
		(g.dataCenterID << dataCenterShift) |
		(g.workerID << workerShift) |
		g.sequence, nil
}

// waitNextMillis spins on the clock until it passes last.
func (g *Generator) waitNextMillis(last int64) int64 {
	now := g.clock.NowMillis()
	for now <= last {
		now = g.clock.NowMillis()
	}
	return now
}

func (g *Generator) Epoch() time.Time {
	return time.UnixMilli(g.epoch)
}

func (g *Generator) DataCenterID() int64 {
	return g.dataCenterID
}

func (g *Generator) WorkerID() int64 {
	return g.workerID
}

// Decompose splits an identifier produced by this generator.
func (g *Generator) Decompose(id int64) Parts {
	return Decompose(id, g.epoch)
}

// Parts are the fields packed into an identifier.
type Parts struct {
	Timestamp    time.Time
	DataCenterID int64
	WorkerID     int64
	Sequence     int64
}

// Decompose splits id assuming it was generated with the given epoch, in milliseconds.
func Decompose(id int64, epoch int64) Parts {
	return Parts{
		Timestamp:    time.UnixMilli((id >> timestampShift) + epoch).UTC(),
		DataCenterID: (id >> dataCenterShift) & MaxDataCenterID,
		WorkerID:     (id >> workerShift) & MaxWorkerID,
		Sequence:     id & MaxSequence,
	}
}
