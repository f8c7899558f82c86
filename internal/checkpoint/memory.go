// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"context"
	"sync"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// Memory is an in-process checkpoint store for tests.
type Memory struct {
	mu      sync.Mutex
	cursors map[string]types.Cursor
}

func NewMemory() *Memory {
	return &Memory{cursors: make(map[string]types.Cursor)}
}

func (m *Memory) GetCheckpoint(_ context.Context, source, scopeKey string) (types.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[source+"/"+scopeKey]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

func (m *Memory) UpsertCheckpoint(_ context.Context, source, scopeKey string, cursor types.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[source+"/"+scopeKey] = cursor.Clone()
	return nil
}
