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
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/codenotary/docload/cmd/helper"
	"github.com/codenotary/docload/pkg/dump"
	"github.com/codenotary/docload/pkg/load"
	"github.com/codenotary/docload/pkg/logger"
	"github.com/codenotary/docload/pkg/store"
)

func runLoad(cmd *cobra.Command, args []string) error {
	options := parseOptions()
	if options.DSN == "" {
		return errors.New("no target database, set --dsn or DOCLOAD_DSN")
	}

	log := logger.NewWithLevel("docload", os.Stderr, logger.LogLevelFromString(options.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *load.Metrics
	if options.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = load.NewMetrics(reg)
		server := startMetricsServer(options.MetricsAddr, reg, log)
		defer func() { _ = server.Shutdown(context.Background()) }()
	}

	s, err := store.Open(ctx, options.DSN, log)
	if err != nil {
		return err
	}
	defer s.Close()

	collections, err := dump.Collections(options.Dir)
	if err != nil {
		return err
	}
	collections = filterCollections(collections, options.Collections)
	if len(collections) == 0 {
		return errors.Errorf("no collections found in %s", options.Dir)
	}

	loadOpts := load.DefaultOptions().
		WithParallelism(options.Parallelism).
		WithBatchSize(options.BatchSize).
		WithKeepSourceIds(options.KeepSourceIds)

	loader, err := load.NewLoader(s, loadOpts, log, cmd.OutOrStdout(), metrics)
	if err != nil {
		return err
	}

	var reports []*load.Report
	var firstErr error
	for _, c := range collections {
		fmt.Fprintf(cmd.OutOrStdout(), "Loading collection %s:\n", c.Name)

		report, err := loader.Load(ctx, c)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Errorf("collection %s: %v", c.Name, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	printReports(cmd, reports)
	return firstErr
}

func filterCollections(collections []dump.Collection, names []string) []dump.Collection {
	if len(names) == 0 {
		return collections
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	filtered := collections[:0]
	for _, c := range collections {
		if wanted[c.Name] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// printReports renders the cross-collection summary table.
func printReports(cmd *cobra.Command, reports []*load.Report) {
	if len(reports) == 0 {
		return
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Collection", "Read", "Stored", "Skipped", "Bytes Read", "Bytes Stored", "Indexes"})
	table.SetAutoFormatHeaders(false)

	for _, r := range reports {
		created := 0
		for _, ir := range r.IndexResults {
			if ir.Created {
				created++
			}
		}
		table.Append([]string{
			r.Collection,
			strconv.FormatInt(r.Counters.RecordsRead, 10),
			strconv.FormatInt(r.Counters.RecordsWritten, 10),
			strconv.FormatInt(r.Counters.RowsSkipped, 10),
			helper.FormatByteSize(uint64(r.Counters.BytesRead)),
			helper.FormatByteSize(uint64(r.Counters.BytesWritten)),
			fmt.Sprintf("%d/%d", created, len(r.IndexResults)),
		})
	}
	table.Render()
}

func startMetricsServer(addr string, reg *prometheus.Registry, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Debugf("metrics HTTP server closed")
			} else {
				log.Errorf("metrics HTTP server error: %s", err)
			}
		}
	}()

	return server
}
