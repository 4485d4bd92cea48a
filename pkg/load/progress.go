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

package load

import (
	"sync"
	"time"
)

// Counters is a consistent snapshot of the progress of one load.
type Counters struct {
	RecordsRead    int64
	BytesRead      int64
	RecordsWritten int64
	BytesWritten   int64

	// RowsSkipped counts documents dropped with a report instead of
	// being stored.
	RowsSkipped int64

	// ReadDoneAt and WriteDoneAt are latched once by the first final
	// report of the respective side, zero until then.
	ReadDoneAt  time.Time
	WriteDoneAt time.Time
}

// Tracker accumulates the progress counters of one load. It is
// mutated concurrently by the producer and every consumer, all
// mutation goes through AddProduced, AddConsumed and AddSkipped.
type Tracker struct {
	mu sync.Mutex
	c  Counters

	metrics *Metrics
	now     func() time.Time
}

// NewTracker returns a tracker, optionally mirroring its counters
// into metrics.
func NewTracker(metrics *Metrics) *Tracker {
	return &Tracker{metrics: metrics, now: time.Now}
}

// AddProduced records documents read from the dump. The first call
// with final set latches the read-side completion time, later final
// calls still contribute their counts but leave it untouched.
func (t *Tracker) AddProduced(records, bytes int64, final bool) {
	t.mu.Lock()
	t.c.RecordsRead += records
	t.c.BytesRead += bytes
	if final && t.c.ReadDoneAt.IsZero() {
		t.c.ReadDoneAt = t.now()
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.recordsRead.Add(float64(records))
		t.metrics.bytesRead.Add(float64(bytes))
	}
}

// AddConsumed records documents written to the store. Called
// independently by each consumer, the first final call latches the
// write-side completion time.
func (t *Tracker) AddConsumed(records, bytes int64, final bool) {
	t.mu.Lock()
	t.c.RecordsWritten += records
	t.c.BytesWritten += bytes
	if final && t.c.WriteDoneAt.IsZero() {
		t.c.WriteDoneAt = t.now()
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.recordsWritten.Add(float64(records))
		t.metrics.bytesWritten.Add(float64(bytes))
	}
}

// AddSkipped records documents dropped with a report.
func (t *Tracker) AddSkipped(records int64) {
	t.mu.Lock()
	t.c.RowsSkipped += records
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.rowsSkipped.Add(float64(records))
	}
}

// Snapshot returns a consistent copy of all counters.
func (t *Tracker) Snapshot() Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}
