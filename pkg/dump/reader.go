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

package dump

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// minDocSize is the size of the smallest possible BSON document:
	// the int32 length prefix plus the trailing null byte.
	minDocSize = 5

	// maxDocSize caps a single document at the BSON wire limit plus
	// the internal slack servers allow on top of it.
	maxDocSize = 16*1024*1024 + 16*1024

	readBufferSize = 16 * 1024
)

var ErrCorruptDump = errors.New("corrupt bson dump file")

// Reader iterates over the raw BSON documents of one dump data file,
// transparently decompressing ".gz" variants. It is not safe for
// concurrent use.
type Reader struct {
	path string
	f    *os.File
	gz   *gzip.Reader
	src  *bufio.Reader
}

// OpenReader opens the dump data file at path.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{path: path, f: f}

	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDump, path, err)
		}
		r.gz = gz
		r.src = bufio.NewReaderSize(gz, readBufferSize)
	} else {
		r.src = bufio.NewReaderSize(f, readBufferSize)
	}

	return r, nil
}

// Next returns the next document, length prefix included, or io.EOF
// once the file is exhausted. A document truncated mid-stream or
// carrying an out-of-range length yields ErrCorruptDump.
func (r *Reader) Next() ([]byte, error) {
	var lenBuf [4]byte

	_, err := io.ReadFull(r.src, lenBuf[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: truncated document header", ErrCorruptDump, r.path)
	}

	size := int32(binary.LittleEndian.Uint32(lenBuf[:]))
	if size < minDocSize || size > maxDocSize {
		return nil, fmt.Errorf("%w: %s: invalid document size %d", ErrCorruptDump, r.path, size)
	}

	doc := make([]byte, size)
	copy(doc, lenBuf[:])
	if _, err := io.ReadFull(r.src, doc[4:]); err != nil {
		return nil, fmt.Errorf("%w: %s: truncated document", ErrCorruptDump, r.path)
	}

	return doc, nil
}

func (r *Reader) Close() error {
	if r.gz != nil {
		if err := r.gz.Close(); err != nil {
			r.f.Close()
			return err
		}
	}
	return r.f.Close()
}
