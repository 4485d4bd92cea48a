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
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/codenotary/docload/pkg/logger"
	"github.com/codenotary/docload/pkg/metadata"
)

// PgStore implements Store on a PostgreSQL database through a pgx
// connection pool. The pool hands out one connection per concurrent
// writer, the store adds no serialization of its own.
type PgStore struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

// Open connects to the database at dsn, verifies the connection and
// makes sure the provisioning catalog table exists.
func Open(ctx context.Context, dsn string, log logger.Logger) (*PgStore, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging target store")
	}

	if _, err := pool.Exec(ctx, createCatalogSQL); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "creating provisioning catalog")
	}

	return &PgStore{pool: pool, log: log}, nil
}

func (s *PgStore) Close() {
	s.pool.Close()
}

func (s *PgStore) OpenCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		"SELECT metadata FROM "+catalogTable+" WHERE name = $1", name).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening collection %s", name)
	}

	return &CollectionInfo{Name: name, RawMetadata: raw}, nil
}

func (s *PgStore) CreateCollection(ctx context.Context, name string, keepSourceIds bool) error {
	assignment := KeyAssignmentGenerated
	if keepSourceIds {
		assignment = KeyAssignmentClient
	}

	meta, err := json.Marshal(ProvisioningMetadata{
		KeyAssignment: assignment,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrapf(err, "encoding provisioning metadata for collection %s", name)
	}

	// The table and its catalog row must appear together, otherwise a
	// failed creation would leave a collection without a policy record.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrapf(err, "creating collection %s", name)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, createCollectionSQL(name, keepSourceIds)); err != nil {
		return errors.Wrapf(err, "creating collection %s", name)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO "+catalogTable+" (name, metadata) VALUES ($1, $2)", name, meta); err != nil {
		return errors.Wrapf(err, "registering collection %s", name)
	}

	return errors.Wrapf(tx.Commit(ctx), "creating collection %s", name)
}

func (s *PgStore) CreateIndex(ctx context.Context, collection string, spec metadata.IndexSpec) error {
	sql, err := secondaryIndexSQL(collection, spec)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return errors.Wrapf(err, "creating index %s on collection %s", spec.Name, collection)
	}
	return nil
}

func (s *PgStore) CreateSearchIndex(ctx context.Context, collection string) error {
	if _, err := s.pool.Exec(ctx, searchIndexSQL(collection)); err != nil {
		return errors.Wrapf(err, "creating search index on collection %s", collection)
	}
	return nil
}

func (s *PgStore) NewWriter(collection string, keepSourceIds bool) RowWriter {
	return &pgWriter{
		pool:  s.pool,
		table: collection,
		keep:  keepSourceIds,
		log:   s.log,
	}
}
