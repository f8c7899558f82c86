// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

func TestScopeKeyStable(t *testing.T) {
	filters := types.SourceFilters{
		Query:    "transformers",
		DateFrom: "2020-01-01",
		Extra:    map[string]string{"b": "2", "a": "1"},
	}
	same := types.SourceFilters{
		Query:    "transformers",
		DateFrom: "2020-01-01",
		Extra:    map[string]string{"a": "1", "b": "2"},
	}
	assert.Equal(t, ScopeKey("org-1", filters), ScopeKey("org-1", same),
		"map iteration order must not change the key")

	assert.NotEqual(t, ScopeKey("org-1", filters), ScopeKey("org-2", filters))
	assert.NotEqual(t, ScopeKey("org-1", filters),
		ScopeKey("org-1", types.SourceFilters{Query: "grammars"}))
	assert.Len(t, ScopeKey("", types.SourceFilters{}), 16)
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "ingest:checkpoint:openalex:abcd", Key("ingest", "openalex", "abcd"))
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.GetCheckpoint(ctx, "openalex", "k")
	require.NoError(t, err)
	assert.Nil(t, got, "missing checkpoint reads as nil")

	require.NoError(t, m.UpsertCheckpoint(ctx, "openalex", "k", types.Cursor{"cursor": "a"}))
	require.NoError(t, m.UpsertCheckpoint(ctx, "openalex", "k", types.Cursor{"cursor": "b"}))

	got, err = m.GetCheckpoint(ctx, "openalex", "k")
	require.NoError(t, err)
	assert.Equal(t, "b", got["cursor"])

	// The store hands out copies, not aliases.
	got["cursor"] = "mutated"
	again, err := m.GetCheckpoint(ctx, "openalex", "k")
	require.NoError(t, err)
	assert.Equal(t, "b", again["cursor"])
}
