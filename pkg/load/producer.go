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
	"io"

	"github.com/codenotary/docload/pkg/dump"
	"github.com/codenotary/docload/pkg/logger"
)

// Producer reads the dump data files sequentially, assembles batches
// of raw documents and pushes them onto the queue. A full queue blocks
// it, which is the only backpressure mechanism of the pipeline.
type Producer struct {
	Files     []string
	BatchSize int
	Queue     chan<- dump.Batch
	Tracker   *Tracker
	Log       logger.Logger
}

// Run reads all files to exhaustion. It always latches the read-side
// completion before returning, whether it finished, failed on a
// corrupt file or was cancelled, so the poll loop never waits on a
// dead producer. The caller closes the queue once Run returns.
func (p *Producer) Run(ctx context.Context) error {
	defer p.Tracker.AddProduced(0, 0, true)

	batch := make(dump.Batch, 0, p.BatchSize)

	for _, path := range p.Files {
		if err := p.readFile(ctx, path, &batch); err != nil {
			return err
		}
	}

	if len(batch) > 0 {
		if err := p.enqueue(ctx, batch); err != nil {
			return err
		}
	}

	return nil
}

func (p *Producer) readFile(ctx context.Context, path string, batch *dump.Batch) error {
	r, err := dump.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	p.Log.Debugf("reading %s", path)

	for {
		doc, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		*batch = append(*batch, doc)
		if len(*batch) >= p.BatchSize {
			if err := p.enqueue(ctx, *batch); err != nil {
				return err
			}
			*batch = make(dump.Batch, 0, p.BatchSize)
		}
	}
}

func (p *Producer) enqueue(ctx context.Context, batch dump.Batch) error {
	select {
	case p.Queue <- batch:
		p.Tracker.AddProduced(int64(len(batch)), batch.Size(), false)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
