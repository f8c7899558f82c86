// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider holds the external AI backends the bulk engines call:
// a scorer producing per-dimension relevance scores and an embedder
// producing dense vectors. Both are interfaces so the engines test
// against instrumented fakes.
package provider

import (
	"context"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// Scorer scores one catalog entry across the requested dimensions.
type Scorer interface {
	Score(ctx context.Context, p types.Paper, dimensions []string) ([]types.DimensionScore, error)
}

// Embedder embeds a batch of texts, one vector per input, in order.
// MaxBatchSize is the provider's hard cap on texts per call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatchSize() int
}
