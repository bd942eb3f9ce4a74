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

package bench

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/streamnative/sequence/cmd/flag"
	"github.com/streamnative/sequence/cmd/rangecmd"
	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/perf"
	"github.com/streamnative/sequence/sequence"
	"github.com/streamnative/sequence/snowflake"
)

const (
	StrategySnowflake = "snowflake"
	StrategyRange     = "range"
)

var (
	strategy     string
	configFile   string
	dataCenterID int64
	workerID     int64
	config       = perf.Config{}

	Cmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a sequence",
		Long:  `Generate identifiers from concurrent workers, report throughput and latency, and check that no value was handed out twice`,
		Args:  cobra.NoArgs,
		RunE:  exec,
	}
)

func init() {
	Cmd.Flags().StringVar(&strategy, "strategy", StrategySnowflake, "Sequence strategy: snowflake or range")
	Cmd.Flags().IntVarP(&config.Count, "count", "n", 1_000_000, "Number of identifiers to generate")
	Cmd.Flags().IntVarP(&config.Concurrency, "concurrency", "c", 8, "Number of concurrent workers")
	Cmd.Flags().Float64VarP(&config.RequestRate, "rate", "r", 0, "Maximum calls per second, 0 for unlimited")
	flag.Coordinates(Cmd, &dataCenterID, &workerID)
	rangecmd.AddStoreFlags(Cmd, &configFile)
}

func open(cmd *cobra.Command) (sequence.Sequence, error) {
	switch strategy {
	case StrategySnowflake:
		return sequence.NewSnowflake(
			snowflake.WithDataCenterID(dataCenterID),
			snowflake.WithWorkerID(workerID),
		)
	case StrategyRange:
		conf, err := rangecmd.LoadConfig(cmd.Flags(), configFile)
		if err != nil {
			return nil, err
		}
		return rangecmd.Open(cmd, conf)
	}
	return nil, errors.Wrapf(common.ErrInvalidConfiguration, "unknown strategy %q", strategy)
}

func exec(cmd *cobra.Command, _ []string) (err error) {
	seq, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, seq.Close())
	}()

	p, err := perf.New(config, seq)
	if err != nil {
		return err
	}

	res, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"Generated %s ids in %s (%s ids/s) - duplicates: %d\n"+
			"Latency ms: 50%% %5.3f - 95%% %5.3f - 99%% %5.3f - 99.9%% %5.3f - max %6.3f\n",
		humanize.Comma(int64(res.Count)),
		res.Elapsed.Round(time.Millisecond),
		humanize.CommafWithDigits(res.Rate(), 1),
		res.Duplicates,
		res.P50, res.P95, res.P99, res.P999, res.Max,
	)
	if err != nil {
		return err
	}
	if res.Duplicates > 0 {
		return errors.Errorf("%d duplicated ids", res.Duplicates)
	}
	return nil
}
