// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint persists resumable pagination cursors for long
// fetch and bulk jobs. Losing a checkpoint is never fatal: the ledger's
// idempotence means a replay re-skips already-seen records, so backends
// are free to expire entries.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// Store reads and writes cursors keyed by (source, scope key). Get
// returns a nil cursor when no checkpoint exists. The sqlite catalog
// satisfies this interface directly.
type Store interface {
	GetCheckpoint(ctx context.Context, source, scopeKey string) (types.Cursor, error)
	UpsertCheckpoint(ctx context.Context, source, scopeKey string, cursor types.Cursor) error
}

// ScopeKey derives a stable key fragment from the ingest scope and the
// filters that shaped the fetch. Two runs with the same scope and
// filters share a checkpoint; changing either starts a fresh cursor.
func ScopeKey(scope string, filters types.SourceFilters) string {
	var b strings.Builder
	b.WriteString(scope)
	b.WriteByte('\n')
	b.WriteString(filters.Query)
	b.WriteByte('\n')
	b.WriteString(filters.DateFrom)
	b.WriteByte('\n')
	b.WriteString(filters.DateTo)
	b.WriteByte('\n')
	b.WriteString(strings.Join(filters.FieldsOfStudy, ","))
	extra := make([]string, 0, len(filters.Extra))
	for k, v := range filters.Extra {
		extra = append(extra, k+"="+v)
	}
	sort.Strings(extra)
	b.WriteByte('\n')
	b.WriteString(strings.Join(extra, "&"))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// Key builds the full namespaced key a backend stores under, e.g.
// "ingest:checkpoint:openalex:1a2b3c4d5e6f7a8b".
func Key(purpose, source, scopeKey string) string {
	return fmt.Sprintf("%s:checkpoint:%s:%s", purpose, source, scopeKey)
}
