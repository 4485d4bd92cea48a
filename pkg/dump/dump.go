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

// Package dump discovers and reads mongodump-style collection dumps:
// plain or gzip-compressed files of concatenated BSON documents plus
// one metadata descriptor per collection.
package dump

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	dataSuffix         = ".bson"
	compressedSuffix   = ".bson.gz"
	metadataSuffix     = ".metadata.json"
	metadataGzipSuffix = ".metadata.json.gz"
)

// Batch is an ordered group of raw BSON documents, the unit of
// transfer between the dump reader and the store writers.
type Batch [][]byte

// Size returns the total size in bytes of the documents in the batch.
func (b Batch) Size() int64 {
	var n int64
	for _, doc := range b {
		n += int64(len(doc))
	}
	return n
}

// Collection is one dumped collection found in a dump directory.
type Collection struct {
	Name         string
	Dir          string
	MetadataPath string
}

// Collections scans dir for collection metadata descriptors and
// returns one Collection per descriptor found, sorted by name.
func Collections(dir string) ([]Collection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var collections []Collection
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		name := e.Name()
		switch {
		case strings.HasSuffix(name, metadataGzipSuffix):
			name = strings.TrimSuffix(name, metadataGzipSuffix)
		case strings.HasSuffix(name, metadataSuffix):
			name = strings.TrimSuffix(name, metadataSuffix)
		default:
			continue
		}

		collections = append(collections, Collection{
			Name:         name,
			Dir:          dir,
			MetadataPath: filepath.Join(dir, e.Name()),
		})
	}

	sort.Slice(collections, func(i, j int) bool {
		return collections[i].Name < collections[j].Name
	})

	return collections, nil
}

// DataFiles returns the data files belonging to the collection, both
// plain and compressed variants, along with their total on-disk size.
// Ordering is not significant for the load, files are returned sorted
// for stable output only.
func (c Collection) DataFiles() ([]string, int64, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, 0, err
	}

	var files []string
	var totalSize int64
	for _, e := range entries {
		if e.IsDir() || !matchesDataFile(e.Name(), c.Name) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, 0, err
		}

		files = append(files, filepath.Join(c.Dir, e.Name()))
		totalSize += info.Size()
	}

	sort.Strings(files)

	return files, totalSize, nil
}

// matchesDataFile reports whether filename is a data file of the named
// collection: the collection name, optionally followed by a dotted
// part suffix, plus the data extension. The dotted form covers dumps
// split into numbered chunks ("people.1.bson").
func matchesDataFile(filename, collection string) bool {
	switch {
	case strings.HasSuffix(filename, compressedSuffix):
		filename = strings.TrimSuffix(filename, compressedSuffix)
	case strings.HasSuffix(filename, dataSuffix):
		filename = strings.TrimSuffix(filename, dataSuffix)
	default:
		return false
	}

	return filename == collection || strings.HasPrefix(filename, collection+".")
}
