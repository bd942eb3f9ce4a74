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

package decode

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamnative/sequence/cmd/flag"
	"github.com/streamnative/sequence/snowflake"
)

var (
	format snowflake.Format
	epoch  int64

	Cmd = &cobra.Command{
		Use:   "decode <id>...",
		Short: "Decompose bit-packed identifiers",
		Long:  `Print the timestamp, data center id, worker id and sequence packed into snowflake identifiers`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  exec,
	}
)

func init() {
	flag.Format(Cmd, &format)
	flag.Epoch(Cmd, &epoch)
}

func exec(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		id, err := snowflake.Decode(arg, format)
		if err != nil {
			return err
		}

		parts := snowflake.Decompose(id, epoch)
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d timestamp=%s datacenter=%d worker=%d sequence=%d\n",
			id, parts.Timestamp.Format(time.RFC3339Nano), parts.DataCenterID, parts.WorkerID, parts.Sequence); err != nil {
			return err
		}
	}
	return nil
}
