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

// Package index classifies the indexes declared by a dumped collection
// and drives their creation on the target store.
package index

import (
	"github.com/codenotary/docload/pkg/metadata"
)

// Kind is the creation category of a declared index.
type Kind int

const (
	// KindPrimary is the reserved primary-key index. It exists as soon
	// as the collection does and is never recreated.
	KindPrimary Kind = iota

	// KindSearch marks full-text and wildcard indexes. They are
	// subsumed by one search index per collection, created before the
	// bulk load and refreshed manually afterwards.
	KindSearch

	// KindSecondary is an ordinary secondary index, created after the
	// bulk load completes.
	KindSecondary
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindSearch:
		return "search"
	default:
		return "secondary"
	}
}

// KindOf returns the creation category of one declared index.
func KindOf(spec metadata.IndexSpec) Kind {
	switch {
	case spec.IsPrimary():
		return KindPrimary
	case spec.IsWildcard() || spec.HasTextKey():
		return KindSearch
	default:
		return KindSecondary
	}
}

// Classified pairs a declared index with its category.
type Classified struct {
	Spec metadata.IndexSpec
	Kind Kind
}

// Classification is the classified index set of one collection, in
// declaration order.
type Classification []Classified

// Classify categorizes the declared indexes, keeping declaration order.
func Classify(specs []metadata.IndexSpec) Classification {
	c := make(Classification, 0, len(specs))
	for _, spec := range specs {
		c = append(c, Classified{Spec: spec, Kind: KindOf(spec)})
	}
	return c
}

// Secondary returns the indexes requiring creation after the load, in
// declaration order.
func (c Classification) Secondary() []metadata.IndexSpec {
	var specs []metadata.IndexSpec
	for _, ci := range c {
		if ci.Kind == KindSecondary {
			specs = append(specs, ci.Spec)
		}
	}
	return specs
}

// NeedsSearchIndex reports whether any declared index requires the
// collection-level search index.
func (c Classification) NeedsSearchIndex() bool {
	for _, ci := range c {
		if ci.Kind == KindSearch {
			return true
		}
	}
	return false
}
