/*
Copyright 2022 Codenotary Inc. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package command

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codenotary/docload/pkg/dump"
	"github.com/codenotary/docload/pkg/load"
)

func newTestCommand(t *testing.T, options *Options) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{
		Use: "docload",
		RunE: func(cmd *cobra.Command, args []string) error {
			*options = parseOptions()
			return nil
		},
	}
	setupFlags(cmd, defaultOptions())
	require.NoError(t, bindFlags(cmd.Flags()))
	setupDefaults(defaultOptions())
	return cmd
}

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err := root.ExecuteC()
	return buf.String(), err
}

func TestCommandFlagParser(t *testing.T) {
	defer viper.Reset()
	var options Options
	cmd := newTestCommand(t, &options)

	_, err := executeCommand(cmd,
		"--dir=/dumps/acme",
		"--dsn=postgres://localhost:5432/docload",
		"--parallelism=8",
		"--batch-size=100",
		"--keep-source-ids=false",
		"--collections=people,orders",
		"--log-level=debug",
	)
	require.NoError(t, err)

	assert.Equal(t, "/dumps/acme", options.Dir)
	assert.Equal(t, "postgres://localhost:5432/docload", options.DSN)
	assert.Equal(t, 8, options.Parallelism)
	assert.Equal(t, 100, options.BatchSize)
	assert.False(t, options.KeepSourceIds)
	assert.Equal(t, []string{"people", "orders"}, options.Collections)
	assert.Equal(t, "debug", options.LogLevel)
}

func TestCommandDefaults(t *testing.T) {
	defer viper.Reset()
	var options Options
	cmd := newTestCommand(t, &options)

	_, err := executeCommand(cmd)
	require.NoError(t, err)

	assert.Equal(t, ".", options.Dir)
	assert.Equal(t, load.DefaultParallelism, options.Parallelism)
	assert.Equal(t, load.DefaultBatchSize, options.BatchSize)
	assert.True(t, options.KeepSourceIds)
	assert.Empty(t, options.Collections)
	assert.Equal(t, "info", options.LogLevel)
}

func TestCommandEnvironment(t *testing.T) {
	defer viper.Reset()
	os.Setenv("DOCLOAD_BATCH_SIZE", "250")
	defer os.Unsetenv("DOCLOAD_BATCH_SIZE")

	var options Options
	cmd := newTestCommand(t, &options)
	o.InitConfig("docload")

	_, err := executeCommand(cmd)
	require.NoError(t, err)
	assert.Equal(t, 250, options.BatchSize)
}

func TestRunLoadRequiresDSN(t *testing.T) {
	defer viper.Reset()
	cmd, err := newCommand()
	require.NoError(t, err)

	_, err = executeCommand(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target database")
}

func TestFilterCollections(t *testing.T) {
	all := []dump.Collection{{Name: "people"}, {Name: "orders"}, {Name: "items"}}

	filtered := filterCollections(append([]dump.Collection{}, all...), []string{"orders", "missing"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "orders", filtered[0].Name)

	assert.Len(t, filterCollections(all, nil), 3)
}
