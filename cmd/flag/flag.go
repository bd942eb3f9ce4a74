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

package flag

import (
	"github.com/spf13/cobra"

	"github.com/streamnative/sequence/snowflake"
)

func Count(cmd *cobra.Command, conf *int) {
	cmd.Flags().IntVarP(conf, "count", "n", 1, "Number of identifiers to generate")
}

func Format(cmd *cobra.Command, conf *snowflake.Format) {
	*conf = snowflake.Decimal
	cmd.Flags().Var(conf, "format", "Identifier format: decimal, base2, base32, base36, base58 or base64")
}

func Epoch(cmd *cobra.Command, conf *int64) {
	cmd.Flags().Int64Var(conf, "epoch", snowflake.DefaultEpoch, "Custom epoch in milliseconds since 1970")
}

func Coordinates(cmd *cobra.Command, dataCenterID *int64, workerID *int64) {
	cmd.Flags().Int64Var(dataCenterID, "datacenter-id", 0, "Data center id [0-31]")
	cmd.Flags().Int64Var(workerID, "worker-id", 0, "Worker id [0-31]")
}
