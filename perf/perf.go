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

// Package perf measures the throughput and latency of a sequence and checks that the
// values it hands out are unique.
package perf

import (
	"context"
	"log/slog"
	"time"

	"github.com/bmizerany/perks/quantile"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/sequence"
)

type Config struct {
	Count       int
	Concurrency int

	// RequestRate caps the calls per second across all workers. Zero means unlimited.
	RequestRate float64
}

// Result of a run. Latencies are in milliseconds.
type Result struct {
	Count      int
	Duplicates int
	Elapsed    time.Duration

	P50, P95, P99, P999, Max float64
}

func (r Result) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Count) / r.Elapsed.Seconds()
}

type Perf struct {
	config Config
	seq    sequence.Sequence
}

func New(config Config, seq sequence.Sequence) (*Perf, error) {
	if config.Count <= 0 || config.Concurrency <= 0 {
		return nil, errors.Wrapf(common.ErrInvalidConfiguration,
			"count (%d) and concurrency (%d) must be positive", config.Count, config.Concurrency)
	}
	if config.RequestRate < 0 {
		return nil, errors.Wrapf(common.ErrInvalidConfiguration, "rate cannot be negative, got %f", config.RequestRate)
	}
	return &Perf{config: config, seq: seq}, nil
}

func (p *Perf) Run(ctx context.Context) (Result, error) {
	slog.Info(
		"Starting sequence benchmark",
		slog.Int("count", p.config.Count),
		slog.Int("concurrency", p.config.Concurrency),
		slog.Float64("rate", p.config.RequestRate),
	)

	var limiter *rate.Limiter
	if p.config.RequestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.config.RequestRate), max(1, int(p.config.RequestRate)))
	}

	latencyCh := make(chan float64, 1024)
	q := quantile.NewTargeted(0.50, 0.95, 0.99, 0.999, 1.0)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for l := range latencyCh {
			q.Insert(l)
		}
	}()

	values := make([][]int64, p.config.Concurrency)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < p.config.Concurrency; w++ {
		n := p.config.Count / p.config.Concurrency
		if w < p.config.Count%p.config.Concurrency {
			n++
		}
		values[w] = make([]int64, 0, n)

		g.Go(func() error {
			for i := 0; i < n; i++ {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return err
					}
				}

				callStart := time.Now()
				v, err := p.seq.NextValue(ctx)
				if err != nil {
					return err
				}
				latencyCh <- float64(time.Since(callStart).Microseconds()) / 1000.0
				values[w] = append(values[w], v)
			}
			return nil
		})
	}

	err := g.Wait()
	elapsed := time.Since(start)
	close(latencyCh)
	<-collected
	if err != nil {
		return Result{}, err
	}

	seen := make(map[int64]struct{}, p.config.Count)
	duplicates := 0
	for _, vs := range values {
		for _, v := range vs {
			if _, found := seen[v]; found {
				duplicates++
			}
			seen[v] = struct{}{}
		}
	}

	res := Result{
		Count:      p.config.Count,
		Duplicates: duplicates,
		Elapsed:    elapsed,
		P50:        q.Query(0.5),
		P95:        q.Query(0.95),
		P99:        q.Query(0.99),
		P999:       q.Query(0.999),
		Max:        q.Query(1.0),
	}
	if duplicates > 0 {
		slog.Error(
			"Sequence returned duplicated values",
			slog.Int("duplicates", duplicates),
		)
	}
	return res, nil
}
