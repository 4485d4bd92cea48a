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

// Package metadata decodes mongodump collection metadata descriptors.
package metadata

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// PrimaryIndexName is the reserved name of the index backing the
// document id. It always exists on the target collection and is never
// recreated.
const PrimaryIndexName = "_id_"

const wildcardMarker = "$**"

var ErrMalformedMetadata = errors.New("malformed collection metadata")

// Descriptor is the parsed description of a dumped collection.
// It is loaded once per collection and read-only thereafter.
type Descriptor struct {
	Options bson.M      `bson:"options"`
	Indexes []IndexSpec `bson:"indexes"`
	UUID    string      `bson:"uuid"`
}

// IndexSpec describes one index declared by the source collection.
// Key is kept as a bson.D so the declared key order survives decoding.
type IndexSpec struct {
	Version int32  `bson:"v"`
	Key     bson.D `bson:"key"`
	Name    string `bson:"name"`
}

// IsPrimary reports whether the spec is the reserved primary-key index.
func (s IndexSpec) IsPrimary() bool {
	return s.Name == PrimaryIndexName
}

// IsWildcard reports whether the index covers dynamic paths, i.e. its
// name or any of its key fields carries the wildcard marker.
func (s IndexSpec) IsWildcard() bool {
	if strings.Contains(s.Name, wildcardMarker) {
		return true
	}
	for _, e := range s.Key {
		if strings.Contains(e.Key, wildcardMarker) {
			return true
		}
	}
	return false
}

// HasTextKey reports whether any key field is declared as a full-text
// key ("text" value instead of a sort direction).
func (s IndexSpec) HasTextKey() bool {
	for _, e := range s.Key {
		if v, ok := e.Value.(string); ok && v == "text" {
			return true
		}
	}
	return false
}

// Load reads and decodes a metadata descriptor file, transparently
// decompressing ".gz" variants. Unknown fields are ignored.
func Load(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}

	d := &Descriptor{}
	// Extended JSON decoding keeps index key order and tolerates
	// fields this tool does not know about.
	if err := bson.UnmarshalExtJSON(data, false, d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}

	return d, nil
}
