// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source fetches pages of raw records from external paper and
// patent APIs. Each connector implements the Connector interface per the
// Strategy pattern: given an opaque cursor, a filter set, and a page-size
// hint it returns one page of raw payloads plus the cursor to resume from.
package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// Connector fetches one page of raw records from a single external API.
// Cursor contents are connector-defined; callers persist and replay them
// without inspection. A nil cursor starts from the beginning.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, cursor types.Cursor, filters types.SourceFilters, limit int) (types.Batch, error)
}

// rateGate enforces a minimum delay between consecutive calls to the same
// external API. Connectors call wait() before each request.
type rateGate struct {
	mu       sync.Mutex
	minDelay time.Duration
	last     time.Time
}

func (g *rateGate) wait(ctx context.Context) error {
	if g == nil || g.minDelay <= 0 {
		return nil
	}
	g.mu.Lock()
	sleep := g.minDelay - time.Since(g.last)
	g.last = time.Now().Add(sleep)
	g.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sleep):
		return nil
	}
}

// clampLimit applies the request-size hint against a connector's hard
// page-size ceiling.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

// New returns the connector registered under name, configured from cfg.
func New(name string, cfg types.SourceConfig) (Connector, error) {
	switch name {
	case "openalex":
		return NewOpenAlex(cfg), nil
	case "semantic_scholar":
		return NewSemanticScholar(cfg), nil
	case "arxiv":
		return NewArxiv(cfg), nil
	case "patentsview":
		return NewPatentsView(cfg), nil
	}
	return nil, fmt.Errorf("unknown source %q (want openalex, semantic_scholar, arxiv, or patentsview)", name)
}
