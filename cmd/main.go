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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/multierr"

	"github.com/streamnative/sequence/cmd/bench"
	"github.com/streamnative/sequence/cmd/decode"
	"github.com/streamnative/sequence/cmd/rangecmd"
	"github.com/streamnative/sequence/cmd/snowflake"
	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/common/logging"
	"github.com/streamnative/sequence/common/metrics"
)

var (
	logLevelStr    string
	metricsAddr    string
	metricsService *metrics.Server

	profileEnable      bool
	profileBindAddress string
	profilingServer    *common.ProfilingServer

	rootCmd = &cobra.Command{
		Use:                "sequence",
		Short:              "Unique identifier generator",
		Long:               `Generate unique 64-bit identifiers with bit-packed snowflake ids or with ranges leased from a shared counter store`,
		PersistentPreRunE:  configure,
		PersistentPostRunE: shutdown,
		SilenceUsage:       true,
	}
)

type LogLevelError string

func (l LogLevelError) Error() string {
	return fmt.Sprintf("unknown log level (%s)", string(l))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevelStr, "log-level", "l", logging.DefaultLogLevel.String(), "Set logging level [debug|info|warn|error]")
	rootCmd.PersistentFlags().BoolVarP(&logging.LogJSON, "log-json", "j", false, "Print logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, disabled when empty")
	rootCmd.PersistentFlags().BoolVar(&profileEnable, "profile", false, "Enable pprof profiler")
	rootCmd.PersistentFlags().StringVar(&profileBindAddress, "profile-bind-address", "127.0.0.1:6060", "Bind address for pprof")

	rootCmd.AddCommand(snowflake.Cmd)
	rootCmd.AddCommand(decode.Cmd)
	rootCmd.AddCommand(rangecmd.Cmd)
	rootCmd.AddCommand(bench.Cmd)
}

func configure(*cobra.Command, []string) error {
	level, err := logging.ParseLogLevel(logLevelStr)
	if err != nil {
		return LogLevelError(logLevelStr)
	}
	logging.LogLevel = level
	logging.ConfigureLogger()

	if metricsAddr != "" {
		if metricsService, err = metrics.Start(metricsAddr); err != nil {
			return err
		}
	}
	if profileEnable {
		if profilingServer, err = common.StartProfiling(profileBindAddress); err != nil {
			return err
		}
	}
	return nil
}

func shutdown(*cobra.Command, []string) error {
	var err error
	if metricsService != nil {
		err = multierr.Append(err, metricsService.Close())
		metricsService = nil
	}
	if profilingServer != nil {
		err = multierr.Append(err, profilingServer.Close())
		profilingServer = nil
	}
	return err
}

func main() {
	common.DoWithLabels(map[string]string{
		"sequence": "main",
	}, func() {
		if _, err := maxprocs.Set(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := rootCmd.Execute(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	})
}
