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
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"

	"github.com/codenotary/docload/pkg/metadata"
)

const (
	catalogTable = "docload_collections"

	// maxIdentifierLength is the PostgreSQL limit on identifier names.
	maxIdentifierLength = 63
)

const createCatalogSQL = `CREATE TABLE IF NOT EXISTS ` + catalogTable + ` (
	name TEXT PRIMARY KEY,
	metadata JSONB NOT NULL
)`

func createCollectionSQL(name string, keepSourceIds bool) string {
	keyColumn := "id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY"
	if keepSourceIds {
		keyColumn = "id VARCHAR(255) PRIMARY KEY"
	}

	return fmt.Sprintf(`CREATE TABLE %s (
	%s,
	doc JSONB NOT NULL,
	created_on TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgx.Identifier{name}.Sanitize(), keyColumn)
}

// secondaryIndexSQL renders one declared index as a btree index over
// JSONB path expressions, one column per key field in declaration
// order, honoring per-field sort direction.
func secondaryIndexSQL(collection string, spec metadata.IndexSpec) (string, error) {
	if len(spec.Key) == 0 {
		return "", fmt.Errorf("index %s on collection %s declares no key fields", spec.Name, collection)
	}

	cols := make([]string, 0, len(spec.Key))
	for _, e := range spec.Key {
		cols = append(cols, fmt.Sprintf("(doc #> %s) %s", pathLiteral(e.Key), sortDirection(e.Value)))
	}

	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING btree (%s)",
		pgx.Identifier{indexIdent(collection, spec.Name)}.Sanitize(),
		pgx.Identifier{collection}.Sanitize(),
		strings.Join(cols, ", ")), nil
}

// SearchIndexName returns the name of the collection's full-text
// search index.
func SearchIndexName(collection string) string {
	return indexIdent(collection, "search_index")
}

func searchIndexSQL(collection string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gin (to_tsvector('simple', doc::text))",
		pgx.Identifier{SearchIndexName(collection)}.Sanitize(),
		pgx.Identifier{collection}.Sanitize())
}

func indexIdent(collection, name string) string {
	ident := collection + "_" + name
	if len(ident) > maxIdentifierLength {
		ident = ident[:maxIdentifierLength]
	}
	return ident
}

// pathLiteral renders a dotted document path ("a.b") as a quoted
// PostgreSQL text-array literal ('{"a","b"}') usable with #>.
func pathLiteral(dotted string) string {
	parts := strings.Split(dotted, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(p, `\`, `\\`)
		p = strings.ReplaceAll(p, `"`, `\"`)
		parts[i] = `"` + p + `"`
	}
	literal := "{" + strings.Join(parts, ",") + "}"
	return "'" + strings.ReplaceAll(literal, "'", "''") + "'"
}

func sortDirection(v interface{}) string {
	switch n := v.(type) {
	case int32:
		if n < 0 {
			return "DESC"
		}
	case int64:
		if n < 0 {
			return "DESC"
		}
	case float64:
		if n < 0 {
			return "DESC"
		}
	}
	return "ASC"
}
