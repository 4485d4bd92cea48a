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
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/codenotary/docload/pkg/dump"
	"github.com/codenotary/docload/pkg/logger"
	"github.com/codenotary/docload/pkg/store"
)

// Consumer drains batches from the queue, converts each raw document
// to its JSON rendering and writes it to the store. Write failures are
// skip-with-report: a consumer never aborts on a bad document, since
// an aborted consumer draining nothing could leave the producer
// blocked on a full queue forever.
type Consumer struct {
	Collection    string
	KeepSourceIds bool
	Queue         <-chan dump.Batch
	Writer        store.RowWriter
	Tracker       *Tracker
	Log           logger.Logger
}

// Run consumes until the queue is closed and drained, or the context
// is cancelled. The write-side final report is issued on every exit
// path so a dying consumer can never hang the loader.
func (c *Consumer) Run(ctx context.Context) {
	defer c.Tracker.AddConsumed(0, 0, true)

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-c.Queue:
			if !ok {
				return
			}
			if !c.writeBatch(ctx, batch) {
				return
			}
		}
	}
}

func (c *Consumer) writeBatch(ctx context.Context, batch dump.Batch) bool {
	rows, bad := c.prepare(batch)

	res, err := c.Writer.WriteRows(ctx, rows)
	if err != nil {
		// only cancellation surfaces here, write failures are
		// handled inside the writer
		return false
	}

	c.Tracker.AddConsumed(res.Written, res.Stored, false)
	if skipped := res.Skipped + bad; skipped > 0 {
		c.Tracker.AddSkipped(skipped)
	}

	return true
}

// prepare converts raw BSON documents into store rows. Documents that
// cannot be converted are dropped with a report and counted by the
// caller.
func (c *Consumer) prepare(batch dump.Batch) ([]store.Row, int64) {
	rows := make([]store.Row, 0, len(batch))
	var bad int64

	for _, raw := range batch {
		row, err := c.toRow(bson.Raw(raw))
		if err != nil {
			bad++
			c.Log.Warningf("skipping document in %s: %v", c.Collection, err)
			continue
		}
		rows = append(rows, row)
	}

	return rows, bad
}

func (c *Consumer) toRow(raw bson.Raw) (store.Row, error) {
	doc, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return store.Row{}, err
	}

	row := store.Row{Doc: doc}
	if c.KeepSourceIds {
		id, err := raw.LookupErr("_id")
		if err != nil {
			return store.Row{}, err
		}
		row.ID = idString(id)
	}

	return row, nil
}

// idString renders a document id as the client-assigned key value:
// object ids by their hex form, strings as-is, anything else by its
// extended JSON rendering.
func idString(v bson.RawValue) string {
	switch v.Type {
	case bsontype.ObjectID:
		oid, ok := v.ObjectIDOK()
		if ok {
			return oid.Hex()
		}
	case bsontype.String:
		s, ok := v.StringValueOK()
		if ok {
			return s
		}
	}
	return v.String()
}
