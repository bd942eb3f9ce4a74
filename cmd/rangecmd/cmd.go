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

package rangecmd

import (
	"bufio"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/streamnative/sequence/cmd/flag"
	"github.com/streamnative/sequence/common"
	"github.com/streamnative/sequence/lease"
	"github.com/streamnative/sequence/sequence"
)

var (
	configFile string
	count      int

	Cmd = &cobra.Command{
		Use:   "range",
		Short: "Dispense identifiers leased from a counter store",
		Long: `Dispense identifiers from ranges leased from a shared counter. Every process leasing
from the same counter receives non overlapping values.`,
		Args: cobra.NoArgs,
		RunE: exec,
	}
)

func init() {
	AddStoreFlags(Cmd, &configFile)
	flag.Count(Cmd, &count)
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"store":          "store",
	"name":           "name",
	"step":           "step",
	"retries":        "maxRetries",
	"initial-value":  "initialValue",
	"dsn":            "sql.dsn",
	"table":          "sql.table",
	"redis-addr":     "redis.addrs",
	"etcd-endpoints": "etcd.endpoints",
	"pebble-dir":     "pebble.dir",
	"bolt-path":      "bolt.path",
}

// AddStoreFlags registers the flags selecting a counter store. Their defaults come from
// NewConfig.
func AddStoreFlags(cmd *cobra.Command, configFile *string) {
	defaults := NewConfig()
	f := cmd.Flags()
	f.StringVarP(configFile, "conf", "f", "", "YAML configuration file")
	f.String("store", defaults.Store, "Counter store: memory, mysql, postgres, sqlite, redis, etcd, pebble or bolt")
	f.String("name", defaults.Name, "Counter name")
	f.Int64("step", defaults.Step, "Number of identifiers leased per store round trip")
	f.Int("retries", defaults.MaxRetries, "Maximum attempts of an optimistic counter advance")
	f.Int64("initial-value", defaults.InitialValue, "Value of a counter created on first use")
	f.String("dsn", "", "Data source name of the mysql, postgres or sqlite store")
	f.String("table", defaults.SQL.Table, "Logical table name of the sql stores")
	f.StringSlice("redis-addr", nil, "Redis addresses")
	f.StringSlice("etcd-endpoints", nil, "Etcd endpoints")
	f.String("pebble-dir", "", "Data directory of the pebble store")
	f.String("bolt-path", "", "Database file of the bolt store")
}

// LoadConfig merges defaults, the optional YAML file and the flags that were set.
func LoadConfig(flags *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.New()

	defaults := NewConfig()
	v.SetDefault("store", defaults.Store)
	v.SetDefault("name", defaults.Name)
	v.SetDefault("step", defaults.Step)
	v.SetDefault("maxRetries", defaults.MaxRetries)
	v.SetDefault("sql.table", defaults.SQL.Table)
	v.SetDefault("sql.maxOpenConns", defaults.SQL.MaxOpenConns)

	// Only flags set explicitly take precedence over the file
	var errs error
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			errs = multierr.Append(errs, v.BindPFlag(key, f))
		}
	})
	if errs != nil {
		return Config{}, errs
	}

	if configFile != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read %s", configFile)
		}
	}

	conf := Config{}
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return Config{}, errors.Wrap(err, "failed to load range config")
	}
	return conf, nil
}

func exec(cmd *cobra.Command, _ []string) error {
	if count <= 0 {
		return errors.Wrapf(common.ErrInvalidConfiguration, "count must be positive, got %d", count)
	}

	conf, err := LoadConfig(cmd.Flags(), configFile)
	if err != nil {
		return err
	}

	seq, err := Open(cmd, conf)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	for i := 0; i < count; i++ {
		value, err := seq.NextValue(cmd.Context())
		if err != nil {
			return multierr.Combine(err, out.Flush(), seq.Close())
		}
		if _, err := fmt.Fprintln(out, value); err != nil {
			return multierr.Append(err, seq.Close())
		}
	}
	return multierr.Combine(out.Flush(), seq.Close())
}

// Open builds the leased range sequence described by conf.
func Open(cmd *cobra.Command, conf Config) (sequence.Sequence, error) {
	st, err := OpenStore(cmd.Context(), conf)
	if err != nil {
		return nil, err
	}

	seq, err := sequence.NewRange(st, conf.Name, lease.WithStep(conf.Step))
	if err != nil {
		return nil, multierr.Append(err, st.Close())
	}
	return seq, nil
}
