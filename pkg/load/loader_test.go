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
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/codenotary/docload/pkg/dump"
	"github.com/codenotary/docload/pkg/logger"
	"github.com/codenotary/docload/pkg/metadata"
	"github.com/codenotary/docload/pkg/store"
)

// memStore is an in-memory Store used to exercise the full pipeline.
type memStore struct {
	mu sync.Mutex

	catalog     map[string][]byte
	rows        map[string][]store.Row
	indexes     []string
	searchIndex []string
	writers     int
}

func newMemStore() *memStore {
	return &memStore{
		catalog: map[string][]byte{},
		rows:    map[string][]store.Row{},
	}
}

func (m *memStore) OpenCollection(_ context.Context, name string) (*store.CollectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.catalog[name]
	if !ok {
		return nil, nil
	}
	return &store.CollectionInfo{Name: name, RawMetadata: raw}, nil
}

func (m *memStore) CreateCollection(_ context.Context, name string, keepSourceIds bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	assignment := store.KeyAssignmentGenerated
	if keepSourceIds {
		assignment = store.KeyAssignmentClient
	}
	m.catalog[name] = []byte(fmt.Sprintf(`{"keyAssignment":%q}`, assignment))
	return nil
}

func (m *memStore) CreateIndex(_ context.Context, _ string, spec metadata.IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.indexes = append(m.indexes, spec.Name)
	return nil
}

func (m *memStore) CreateSearchIndex(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.searchIndex = append(m.searchIndex, collection)
	return nil
}

func (m *memStore) NewWriter(collection string, _ bool) store.RowWriter {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writers++
	return &memWriter{s: m, collection: collection}
}

func (m *memStore) storedRows(collection string) []store.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]store.Row(nil), m.rows[collection]...)
}

type memWriter struct {
	s          *memStore
	collection string
}

func (w *memWriter) WriteRows(ctx context.Context, rows []store.Row) (store.WriteResult, error) {
	if ctx.Err() != nil {
		return store.WriteResult{}, ctx.Err()
	}

	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	var res store.WriteResult
	w.s.rows[w.collection] = append(w.s.rows[w.collection], rows...)
	for _, r := range rows {
		res.Written++
		res.Stored += int64(len(r.Doc))
	}
	return res, nil
}

const peopleMetadata = `{
	"options": {},
	"indexes": [
		{"v": 2, "key": {"_id": 1}, "name": "_id_"},
		{"v": 2, "key": {"bio": "text"}, "name": "bio_text"},
		{"v": 2, "key": {"age": 1}, "name": "age_1"},
		{"v": 2, "key": {"name": -1}, "name": "name_-1"}
	],
	"uuid": "8e2dc5d7c6e74b3fa1f2f06bdfed67b0"
}`

// writePeopleDump lays out a dump of the people collection split over
// two plain data files and one compressed one.
func writePeopleDump(t *testing.T, total int) dump.Collection {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.metadata.json"), []byte(peopleMetadata), 0o644))

	files := []struct {
		name     string
		docs     int
		compress bool
	}{
		{"people.bson", total / 2, false},
		{"people.1.bson", total / 4, false},
		{"people.2.bson.gz", total - total/2 - total/4, true},
	}

	seq := 0
	for _, f := range files {
		var buf bytes.Buffer
		var w io.Writer = &buf
		var gz *gzip.Writer
		if f.compress {
			gz = gzip.NewWriter(&buf)
			w = gz
		}

		for i := 0; i < f.docs; i++ {
			doc, err := bson.Marshal(bson.D{
				{Key: "_id", Value: fmt.Sprintf("id-%06d", seq)},
				{Key: "seq", Value: int32(seq)},
			})
			require.NoError(t, err)
			_, err = w.Write(doc)
			require.NoError(t, err)
			seq++
		}

		if gz != nil {
			require.NoError(t, gz.Close())
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.name), buf.Bytes(), 0o644))
	}

	return dump.Collection{
		Name:         "people",
		Dir:          dir,
		MetadataPath: filepath.Join(dir, "people.metadata.json"),
	}
}

func testLoader(t *testing.T, s store.Store, opts Options, out io.Writer) *Loader {
	t.Helper()

	l, err := NewLoader(s, opts, logger.NewWithLevel("test", io.Discard, logger.LogError), out, nil)
	require.NoError(t, err)
	return l
}

func fastOptions() Options {
	return DefaultOptions().WithKeepSourceIds(true).WithBatchSize(250)
}

func TestQueueCapacity(t *testing.T) {
	for n, expected := range map[int]int{1: 1, 2: 1, 3: 2, 4: 3, 16: 15} {
		require.Equal(t, expected, QueueCapacity(n), "parallelism %d", n)
	}
}

func TestWatchConsumers(t *testing.T) {
	const n = 3

	var wg sync.WaitGroup
	wg.Add(n)
	done := watchConsumers(&wg)

	// n-1 completions must not fire the signal
	for i := 0; i < n-1; i++ {
		wg.Done()
	}
	select {
	case <-done:
		t.Fatal("consumers-done fired before the last consumer reported")
	case <-time.After(50 * time.Millisecond):
	}

	wg.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumers-done did not fire after the last consumer reported")
	}
}

func TestLoad(t *testing.T) {
	const total = 10000

	c := writePeopleDump(t, total)
	s := newMemStore()

	var out bytes.Buffer
	opts := fastOptions().WithParallelism(4)
	opts.PollInterval = 5 * time.Millisecond

	report, err := testLoader(t, s, opts, &out).Load(context.Background(), c)
	require.NoError(t, err)

	snap := report.Counters
	require.Equal(t, int64(total), snap.RecordsRead)
	require.Equal(t, int64(total), snap.RecordsWritten)
	require.Zero(t, snap.RowsSkipped)
	require.Positive(t, snap.BytesRead)
	require.False(t, snap.ReadDoneAt.IsZero())
	require.False(t, snap.WriteDoneAt.IsZero())

	rows := s.storedRows("people")
	require.Len(t, rows, total)
	require.NotEmpty(t, rows[0].ID)

	// exactly one writer per consumer
	require.Equal(t, 4, s.writers)

	// secondary indexes created after the load, in declaration order;
	// the search index requested once, before it
	require.Equal(t, []string{"age_1", "name_-1"}, s.indexes)
	require.Equal(t, []string{"people"}, s.searchIndex)

	require.True(t, report.SearchIndex)
	require.Len(t, report.IndexResults, 4)

	require.Contains(t, out.String(), "Collection people loaded")
	require.Contains(t, out.String(), "you will need to refresh it!")
}

func TestLoadSingleConsumer(t *testing.T) {
	c := writePeopleDump(t, 100)
	s := newMemStore()

	opts := fastOptions().WithParallelism(1).WithBatchSize(7)
	opts.PollInterval = 5 * time.Millisecond

	report, err := testLoader(t, s, opts, io.Discard).Load(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, int64(100), report.Counters.RecordsWritten)
	require.Len(t, s.storedRows("people"), 100)
}

func TestLoadAbortsOnIDPolicyConflict(t *testing.T) {
	c := writePeopleDump(t, 10)
	s := newMemStore()
	s.catalog["people"] = []byte(`{"keyAssignment":"generated"}`)

	_, err := testLoader(t, s, fastOptions(), io.Discard).Load(context.Background(), c)
	require.ErrorIs(t, err, store.ErrIDPolicyConflict)

	// nothing may run after a provisioning failure
	require.Zero(t, s.writers)
	require.Empty(t, s.indexes)
	require.Empty(t, s.searchIndex)
	require.Empty(t, s.storedRows("people"))
}

func TestLoadAbortsOnMalformedMetadata(t *testing.T) {
	c := writePeopleDump(t, 10)
	require.NoError(t, os.WriteFile(c.MetadataPath, []byte(`{"indexes": [`), 0o644))

	s := newMemStore()
	_, err := testLoader(t, s, fastOptions(), io.Discard).Load(context.Background(), c)
	require.ErrorIs(t, err, metadata.ErrMalformedMetadata)
	require.Zero(t, s.writers)
}

func TestLoadCancelled(t *testing.T) {
	c := writePeopleDump(t, 10000)
	s := newMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastOptions().WithParallelism(2)
	opts.PollInterval = 5 * time.Millisecond

	report, err := testLoader(t, s, opts, io.Discard).Load(ctx, c)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	// cancellation skips index provisioning entirely
	require.Empty(t, s.indexes)
}

func TestLoadCorruptDump(t *testing.T) {
	c := writePeopleDump(t, 1000)

	// truncate the first data file mid-document
	path := filepath.Join(c.Dir, "people.bson")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))

	s := newMemStore()
	opts := fastOptions().WithParallelism(2)
	opts.PollInterval = 5 * time.Millisecond

	report, err := testLoader(t, s, opts, io.Discard).Load(context.Background(), c)
	require.ErrorIs(t, err, dump.ErrCorruptDump)

	// everything decoded before the corruption still got stored and
	// the pipeline wound down cleanly
	require.NotNil(t, report)
	require.Equal(t, report.Counters.RecordsRead, report.Counters.RecordsWritten)
	require.False(t, report.Counters.WriteDoneAt.IsZero())
}

func TestOptionsValid(t *testing.T) {
	require.NoError(t, DefaultOptions().Valid())
	require.Error(t, DefaultOptions().WithParallelism(0).Valid())
	require.Error(t, DefaultOptions().WithBatchSize(0).Valid())

	invalid := DefaultOptions()
	invalid.PollInterval = 0
	require.Error(t, invalid.Valid())

	_, err := NewLoader(newMemStore(), DefaultOptions().WithParallelism(-1),
		logger.NewWithLevel("test", io.Discard, logger.LogError), io.Discard, nil)
	require.Error(t, err)
}
