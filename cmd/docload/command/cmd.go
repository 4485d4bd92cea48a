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
	"os"

	"github.com/spf13/cobra"

	c "github.com/codenotary/docload/cmd/helper"
	"github.com/codenotary/docload/cmd/version"
)

var o = c.Options{}

func init() {
	cobra.OnInitialize(func() { o.InitConfig("docload") })
}

// Execute runs the docload root command
func Execute() {
	version.App = "docload"
	cmd, err := newCommand()
	if err != nil {
		c.QuitToStdErr(err)
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "docload",
		Short: "Bulk-load BSON dump directories into a document store",
		Long: `Bulk-load BSON dump directories into a document store.

docload scans a dump directory for collections (a <name>.metadata.json
plus one or more <name>.bson data files, plain or gzipped), provisions
a table per collection and streams the documents in with one reader
and a pool of concurrent writers. Secondary indexes declared in the
collection metadata are created after the data is loaded, fulltext
indexes before.

Environment variables:
  DOCLOAD_DIR=.
  DOCLOAD_DSN=
  DOCLOAD_PARALLELISM=4
  DOCLOAD_BATCH_SIZE=500
  DOCLOAD_KEEP_SOURCE_IDS=true
  DOCLOAD_METRICS_ADDR=
  DOCLOAD_LOG_LEVEL=info`,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              runLoad,
	}

	setupFlags(cmd, defaultOptions())
	if err := bindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	setupDefaults(defaultOptions())

	cmd.AddCommand(version.VersionCmd())

	return cmd, nil
}
