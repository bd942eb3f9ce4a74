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
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/sequence/common"
)

func TestCmd(t *testing.T) {
	for _, test := range []struct {
		name     string
		args     []string
		expected string
	}{
		{"snowflake", []string{"--strategy=snowflake", "-n", "20000", "-c", "4"}, "Generated 20,000 ids"},
		{"range-memory", []string{"--strategy=range", "--store=memory", "--step=100", "-n", "5000", "-c", "8"}, "Generated 5,000 ids"},
		{"range-pebble", []string{"--strategy=range", "--store=pebble", "--pebble-dir=" + filepath.Join(t.TempDir(), "db"),
			"--step=10", "-n", "500", "-c", "4"}, "Generated 500 ids"},
	} {
		t.Run(test.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			Cmd.SetOut(out)
			Cmd.SetArgs(test.args)
			require.NoError(t, Cmd.Execute())
			assert.Contains(t, out.String(), test.expected)
			assert.Contains(t, out.String(), "duplicates: 0")
		})
	}
}

func TestCmdInvalid(t *testing.T) {
	Cmd.SetOut(&bytes.Buffer{})

	Cmd.SetArgs([]string{"--strategy=lottery"})
	assert.ErrorIs(t, Cmd.Execute(), common.ErrInvalidConfiguration)

	Cmd.SetArgs([]string{"--strategy=snowflake", "-c", "0"})
	assert.ErrorIs(t, Cmd.Execute(), common.ErrInvalidConfiguration)
}
