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

// Package load drives the bulk load of one dumped collection into the
// target store: one producing reader, a pool of writing consumers, a
// bounded hand-off queue between them and a polling loop reporting
// live throughput until both sides complete.
package load

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/codenotary/docload/pkg/dump"
	"github.com/codenotary/docload/pkg/index"
	"github.com/codenotary/docload/pkg/logger"
	"github.com/codenotary/docload/pkg/metadata"
	"github.com/codenotary/docload/pkg/store"
)

const (
	DefaultParallelism  = 4
	DefaultBatchSize    = 500
	DefaultPollInterval = 200 * time.Millisecond

	megaByte = 1024 * 1024
)

// Options tune one collection load.
type Options struct {
	// Parallelism is the number of writing consumers (>= 1).
	Parallelism int

	// BatchSize is the number of documents per queue batch.
	BatchSize int

	// KeepSourceIds preserves the dump's document ids in a
	// client-assigned key column.
	KeepSourceIds bool

	// PollInterval is the wait between progress reports.
	PollInterval time.Duration
}

// DefaultOptions ...
func DefaultOptions() Options {
	return Options{
		Parallelism:  DefaultParallelism,
		BatchSize:    DefaultBatchSize,
		PollInterval: DefaultPollInterval,
	}
}

// WithParallelism sets the number of writing consumers.
func (o Options) WithParallelism(n int) Options {
	o.Parallelism = n
	return o
}

// WithBatchSize sets the number of documents per batch.
func (o Options) WithBatchSize(n int) Options {
	o.BatchSize = n
	return o
}

// WithKeepSourceIds toggles preserving the dump's document ids.
func (o Options) WithKeepSourceIds(keep bool) Options {
	o.KeepSourceIds = keep
	return o
}

// Valid ...
func (o Options) Valid() error {
	if o.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", o.Parallelism)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", o.BatchSize)
	}
	if o.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", o.PollInterval)
	}
	return nil
}

// QueueCapacity returns the bounded queue capacity for a consumer
// pool of size n: one batch less than the pool, never less than one.
func QueueCapacity(n int) int {
	if n <= 1 {
		return 1
	}
	return n - 1
}

// Report is the outcome of one collection load.
type Report struct {
	Collection string
	Counters   Counters

	// IndexResults covers every declared index, in declaration order.
	IndexResults []index.Result

	// SearchIndex is set when the collection required the deferred
	// search index, which must be refreshed manually after the load.
	SearchIndex bool
}

// Loader loads dumped collections into a target store.
type Loader struct {
	store   store.Store
	opts    Options
	log     logger.Logger
	out     io.Writer
	metrics *Metrics
}

// NewLoader returns a loader writing its progress lines to out.
// metrics may be nil.
func NewLoader(s store.Store, opts Options, log logger.Logger, out io.Writer, metrics *Metrics) (*Loader, error) {
	if err := opts.Valid(); err != nil {
		return nil, err
	}

	return &Loader{
		store:   s,
		opts:    opts,
		log:     log,
		out:     out,
		metrics: metrics,
	}, nil
}

// Load drives one complete collection load: provisioning, metadata,
// early search-index creation, the producer/consumer pipeline with
// its polling loop, the final summary and secondary index creation.
// Provisioning and metadata failures abort before any data movement.
// Cancellation stops producer and consumers, prints the partial
// summary and returns the context error without touching indexes.
func (l *Loader) Load(ctx context.Context, c dump.Collection) (*Report, error) {
	if err := store.Ensure(ctx, l.store, c.Name, l.opts.KeepSourceIds); err != nil {
		return nil, err
	}

	fmt.Fprintf(l.out, "\t- metadata file: %s\n", c.MetadataPath)
	md, err := metadata.Load(c.MetadataPath)
	if err != nil {
		return nil, err
	}

	files, totalSize, err := c.DataFiles()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(l.out, "\t- found %d data file(s) (%.3f MB)\n", len(files), float64(totalSize)/megaByte)

	classification := index.Classify(md.Indexes)
	manager := index.NewManager(l.store, l.log)

	report := &Report{
		Collection:  c.Name,
		SearchIndex: classification.NeedsSearchIndex(),
	}

	if report.SearchIndex {
		// search indexes only pick up content written after their
		// creation, so this one cannot wait until the load is done; a
		// failure here costs the index, not the load
		fmt.Fprintf(l.out, "\t\t. %s: creating search index (manual refresh) ...\n", store.SearchIndexName(c.Name))
		if err := manager.EnsureSearchIndex(ctx, c.Name); err != nil {
			l.log.Errorf("creating search index on collection %s: %v", c.Name, err)
		}
	}

	tracker := NewTracker(l.metrics)
	cancelled, producerErr := l.runPipeline(ctx, c, files, tracker)

	snap := tracker.Snapshot()
	report.Counters = snap

	l.printSummary(c.Name, snap)

	if cancelled {
		return report, ctx.Err()
	}

	fmt.Fprintf(l.out, "\t- found %d index(es)\n", len(classification))
	report.IndexResults = manager.CreateRemaining(ctx, c.Name, classification)
	l.printIndexResults(report.IndexResults)

	if report.SearchIndex {
		fmt.Fprintf(l.out, "\t\t. %s: you will need to refresh it!\n", store.SearchIndexName(c.Name))
	}

	return report, producerErr
}

// runPipeline spawns the producer and the consumer pool around the
// bounded queue and polls both completion signals until they fire.
func (l *Loader) runPipeline(ctx context.Context, c dump.Collection, files []string, tracker *Tracker) (cancelled bool, producerErr error) {
	fmt.Fprintf(l.out, "\t- now loading data using %d parallel consumer(s)\n", l.opts.Parallelism)

	queue := make(chan dump.Batch, QueueCapacity(l.opts.Parallelism))

	readStart := time.Now()
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		defer close(queue)

		p := &Producer{
			Files:     files,
			BatchSize: l.opts.BatchSize,
			Queue:     queue,
			Tracker:   tracker,
			Log:       l.log,
		}
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			producerErr = err
			l.log.Errorf("reading dump of collection %s: %v", c.Name, err)
		}
	}()

	writeStart := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < l.opts.Parallelism; i++ {
		consumer := &Consumer{
			Collection:    c.Name,
			KeepSourceIds: l.opts.KeepSourceIds,
			Queue:         queue,
			Writer:        l.store.NewWriter(c.Name, l.opts.KeepSourceIds),
			Tracker:       tracker,
			Log:           l.log,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	consumersDone := watchConsumers(&wg)

	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	prodDone, consDone := false, false
	prodDoneCh, consDoneCh := producerDone, consumersDone
	for !(prodDone && consDone) {
		select {
		case <-ctx.Done():
			// producer and consumers observe the same context, wait
			// for them to unwind before reporting the partial state
			<-producerDone
			<-consumersDone
			return true, nil
		case <-prodDoneCh:
			prodDone = true
			prodDoneCh = nil
		case <-consDoneCh:
			consDone = true
			consDoneCh = nil
		case <-ticker.C:
			l.printProgress(tracker.Snapshot(), readStart, writeStart, time.Now())
		}
	}

	l.printProgress(tracker.Snapshot(), readStart, writeStart, time.Now())

	// both sides may report done right after a cancellation, which
	// still counts as a cancelled load
	return ctx.Err() != nil, producerErr
}

// watchConsumers returns a channel closed once every consumer in the
// pool has reported done. The channel fires exactly once, after the
// last consumer, never before.
func watchConsumers(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// printProgress emits one live throughput line. Each side's rate is
// computed against its own completion time once latched, so a
// finished side stops drifting with the wall clock while the other
// side catches up.
func (l *Loader) printProgress(snap Counters, readStart, writeStart, now time.Time) {
	readEnd := snap.ReadDoneAt
	if readEnd.IsZero() {
		readEnd = now
	}
	writeEnd := snap.WriteDoneAt
	if writeEnd.IsZero() {
		writeEnd = now
	}

	readSecs := readEnd.Sub(readStart).Seconds()
	if readSecs <= 0 {
		readSecs = l.opts.PollInterval.Seconds()
	}
	writeSecs := writeEnd.Sub(writeStart).Seconds()
	if writeSecs <= 0 {
		writeSecs = l.opts.PollInterval.Seconds()
	}

	fmt.Fprintf(l.out, "\r\t- read %d (%.0f d/s, %.1f MB/s) >> stored %d (%.0f d/s, %.1f MB/s)",
		snap.RecordsRead,
		float64(snap.RecordsRead)/readSecs,
		float64(snap.BytesRead)/megaByte/readSecs,
		snap.RecordsWritten,
		float64(snap.RecordsWritten)/writeSecs,
		float64(snap.BytesWritten)/megaByte/writeSecs)
}

func (l *Loader) printSummary(name string, snap Counters) {
	ratio := 1.0
	if snap.BytesWritten > 0 {
		ratio = float64(snap.BytesRead) / float64(snap.BytesWritten)
	}

	fmt.Fprintf(l.out, "\n  . Collection %s loaded (read %.1f MB, stored %.1f MB, comp. ratio x %.2f).\n",
		name,
		float64(snap.BytesRead)/megaByte,
		float64(snap.BytesWritten)/megaByte,
		ratio)

	if snap.RowsSkipped > 0 {
		l.log.Warningf("collection %s: %d document(s) were skipped", name, snap.RowsSkipped)
	}
}

func (l *Loader) printIndexResults(results []index.Result) {
	for _, res := range results {
		switch {
		case res.Kind == index.KindPrimary:
			fmt.Fprintf(l.out, "\t\t. %s (primary key, already exists)\n", res.Name)
		case res.Kind == index.KindSearch:
			fmt.Fprintf(l.out, "\t\t. %s: (a search index has already been created)\n", res.Name)
		case res.Err != nil:
			fmt.Fprintf(l.out, "\t\t. %s: creation failed: %v\n", res.Name, res.Err)
		default:
			fmt.Fprintf(l.out, "\t\t. %s: created\n", res.Name)
		}
	}
}
