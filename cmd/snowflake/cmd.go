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
	"bufio"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/streamnative/sequence/cmd/flag"
	"github.com/streamnative/sequence/common"
	sf "github.com/streamnative/sequence/snowflake"
)

type config struct {
	dataCenterID int64
	workerID     int64
	epoch        int64
	count        int
	format       sf.Format
}

var (
	conf = config{}

	Cmd = &cobra.Command{
		Use:   "snowflake",
		Short: "Generate bit-packed identifiers",
		Long:  `Generate time ordered identifiers packing a timestamp, a data center id, a worker id and a per-millisecond sequence`,
		Args:  cobra.NoArgs,
		RunE:  exec,
	}
)

func init() {
	flag.Coordinates(Cmd, &conf.dataCenterID, &conf.workerID)
	flag.Epoch(Cmd, &conf.epoch)
	flag.Count(Cmd, &conf.count)
	flag.Format(Cmd, &conf.format)
}

func exec(cmd *cobra.Command, _ []string) error {
	if conf.count <= 0 {
		return errors.Wrapf(common.ErrInvalidConfiguration, "count must be positive, got %d", conf.count)
	}

	g, err := sf.New(
		sf.WithDataCenterID(conf.dataCenterID),
		sf.WithWorkerID(conf.workerID),
		sf.WithEpoch(time.UnixMilli(conf.epoch)),
	)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	for i := 0; i < conf.count; i++ {
		id, err := g.Next()
		if err != nil {
			_ = out.Flush()
			return err
		}
		if _, err := fmt.Fprintln(out, sf.Encode(id, conf.format)); err != nil {
			return err
		}
	}
	return out.Flush()
}
