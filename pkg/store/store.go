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

// Package store talks to the target document store: one JSONB-backed
// table per collection plus a catalog table recording how each
// collection was provisioned.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codenotary/docload/pkg/metadata"
)

var (
	// ErrIDPolicyConflict is returned when a collection already exists
	// with an id-assignment policy inconsistent with the requested one.
	ErrIDPolicyConflict = errors.New("collection id-assignment policy conflict")

	// ErrMetadataUnreadable is returned when the provisioning metadata
	// of an existing collection cannot be parsed.
	ErrMetadataUnreadable = errors.New("collection provisioning metadata unreadable")
)

// KeyAssignment is the id-assignment policy of a collection.
type KeyAssignment string

const (
	// KeyAssignmentClient preserves the ids carried by the source
	// documents in a client-assigned string key column.
	KeyAssignmentClient KeyAssignment = "client"

	// KeyAssignmentGenerated lets the store generate the keys.
	KeyAssignmentGenerated KeyAssignment = "generated"
)

// ProvisioningMetadata is the catalog entry stored when a collection
// is created, consulted on subsequent loads to validate the policy.
type ProvisioningMetadata struct {
	KeyAssignment KeyAssignment `json:"keyAssignment"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// CollectionInfo describes an existing collection. RawMetadata is the
// stored provisioning metadata as written at creation time.
type CollectionInfo struct {
	Name        string
	RawMetadata []byte
}

// Row is one document prepared for writing: its key (ignored under
// generated key assignment) and its JSON rendering.
type Row struct {
	ID  string
	Doc []byte
}

// WriteResult accounts for one batch write. Skipped counts rows that
// could not be stored and were dropped with a report.
type WriteResult struct {
	Written int64
	Stored  int64
	Skipped int64
}

// RowWriter writes prepared rows into one collection. Every consumer
// obtains its own writer.
type RowWriter interface {
	WriteRows(ctx context.Context, rows []Row) (WriteResult, error)
}

// Store is the contract the loader requires from a target store.
type Store interface {
	// OpenCollection returns the named collection, or nil when it does
	// not exist.
	OpenCollection(ctx context.Context, name string) (*CollectionInfo, error)

	// CreateCollection creates the named collection with a
	// client-assigned key column when keepSourceIds is set, with
	// store-generated keys otherwise.
	CreateCollection(ctx context.Context, name string, keepSourceIds bool) error

	// CreateIndex creates one ordinary secondary index.
	CreateIndex(ctx context.Context, collection string, spec metadata.IndexSpec) error

	// CreateSearchIndex creates the collection's full-text search
	// index. It is idempotent, re-issuing it for an existing index is
	// not an error.
	CreateSearchIndex(ctx context.Context, collection string) error

	// NewWriter returns a writer for the named collection.
	NewWriter(collection string, keepSourceIds bool) RowWriter
}

// Ensure opens the named collection and creates it with the requested
// id-assignment policy when absent. A pre-existing collection whose
// stored policy does not match keepSourceIds fails the load with
// ErrIDPolicyConflict: silently reinterpreting ids is never safe.
func Ensure(ctx context.Context, s Store, name string, keepSourceIds bool) error {
	info, err := s.OpenCollection(ctx, name)
	if err != nil {
		return err
	}

	if info == nil {
		return s.CreateCollection(ctx, name, keepSourceIds)
	}

	var meta ProvisioningMetadata
	if err := json.Unmarshal(info.RawMetadata, &meta); err != nil {
		return fmt.Errorf("%w: collection %s: %v", ErrMetadataUnreadable, name, err)
	}

	want := KeyAssignmentGenerated
	if keepSourceIds {
		want = KeyAssignmentClient
	}

	switch meta.KeyAssignment {
	case KeyAssignmentClient, KeyAssignmentGenerated:
	default:
		return fmt.Errorf("%w: collection %s: unknown key assignment %q",
			ErrMetadataUnreadable, name, meta.KeyAssignment)
	}

	if meta.KeyAssignment != want {
		return fmt.Errorf("%w: collection %s is provisioned with %s-assigned keys, %s-assigned keys requested",
			ErrIDPolicyConflict, name, meta.KeyAssignment, want)
	}

	return nil
}
