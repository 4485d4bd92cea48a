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

package index

import (
	"context"

	"github.com/codenotary/docload/pkg/logger"
	"github.com/codenotary/docload/pkg/store"
)

// Result is the outcome of handling one declared index.
type Result struct {
	Name string
	Kind Kind

	// Created is set when the index was actually issued to the store
	// during this run. Primary and search entries report false, the
	// former always exists, the latter was requested before the load.
	Created bool

	Err error
}

// Manager creates the indexes a collection declares.
type Manager struct {
	store store.Store
	log   logger.Logger
}

func NewManager(s store.Store, log logger.Logger) *Manager {
	return &Manager{store: s, log: log}
}

// EnsureSearchIndex requests the collection's search index. It is
// called before the bulk load starts since the store indexes new
// content from creation time onward. Safe to re-issue for an already
// provisioned collection.
func (m *Manager) EnsureSearchIndex(ctx context.Context, collection string) error {
	return m.store.CreateSearchIndex(ctx, collection)
}

// CreateRemaining creates every secondary index of the classification,
// in declaration order. Each creation failure is recorded in its own
// result and does not block the remaining indexes.
func (m *Manager) CreateRemaining(ctx context.Context, collection string, c Classification) []Result {
	results := make([]Result, 0, len(c))

	for _, ci := range c {
		res := Result{Name: ci.Spec.Name, Kind: ci.Kind}

		if ci.Kind == KindSecondary {
			res.Err = m.store.CreateIndex(ctx, collection, ci.Spec)
			res.Created = res.Err == nil
			if res.Err != nil {
				m.log.Errorf("creating index %s on collection %s: %v", ci.Spec.Name, collection, res.Err)
			}
		}

		results = append(results, res)
	}

	return results
}
