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

package store

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/codenotary/docload/pkg/logger"
)

type pgWriter struct {
	pool  *pgxpool.Pool
	table string
	keep  bool
	log   logger.Logger
}

// WriteRows bulk-copies the batch into the collection table. When the
// copy fails the batch is retried row by row so that one bad document
// only costs itself: rows that still fail are skipped and reported.
// An error is returned only when the context is cancelled, a write
// failure never aborts the load.
func (w *pgWriter) WriteRows(ctx context.Context, rows []Row) (WriteResult, error) {
	if len(rows) == 0 {
		return WriteResult{}, nil
	}

	columns := []string{"doc"}
	if w.keep {
		columns = []string{"id", "doc"}
	}

	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{w.table}, columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
			if w.keep {
				return []interface{}{rows[i].ID, string(rows[i].Doc)}, nil
			}
			return []interface{}{string(rows[i].Doc)}, nil
		}))
	if err == nil {
		res := WriteResult{Written: int64(len(rows))}
		for _, r := range rows {
			res.Stored += int64(len(r.Doc))
		}
		return res, nil
	}

	if ctx.Err() != nil {
		return WriteResult{}, ctx.Err()
	}

	w.log.Warningf("bulk copy into %s failed, retrying batch row by row: %v", w.table, err)

	return w.writeRowwise(ctx, rows)
}

func (w *pgWriter) writeRowwise(ctx context.Context, rows []Row) (WriteResult, error) {
	sql := "INSERT INTO " + pgx.Identifier{w.table}.Sanitize() + " (doc) VALUES ($1)"
	if w.keep {
		sql = "INSERT INTO " + pgx.Identifier{w.table}.Sanitize() + " (id, doc) VALUES ($1, $2)"
	}

	var res WriteResult
	for _, r := range rows {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		var err error
		if w.keep {
			_, err = w.pool.Exec(ctx, sql, r.ID, string(r.Doc))
		} else {
			_, err = w.pool.Exec(ctx, sql, string(r.Doc))
		}
		if err != nil {
			res.Skipped++
			w.log.Warningf("skipping document %q in %s: %v", r.ID, w.table, err)
			continue
		}

		res.Written++
		res.Stored += int64(len(r.Doc))
	}

	return res, nil
}
