// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/BaNburger/paperscraper-sub002/internal/checkpoint"
	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/provider"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

const embeddingPurpose = "embedding"

// EmbeddingReport summarizes one embedding run.
type EmbeddingReport struct {
	Embedded int
	Failed   int
	Errors   []string
}

// EmbeddingEngine embeds catalog entries that have no vector yet. One
// unit of work is one provider batch of up to BatchSize texts.
type EmbeddingEngine struct {
	store       *store.Store
	checkpoints checkpoint.Store
	embedder    provider.Embedder
	log         *logging.Logger
	cfg         types.EmbeddingConfig
}

func NewEmbeddingEngine(st *store.Store, cps checkpoint.Store, emb provider.Embedder, log *logging.Logger, cfg types.EmbeddingConfig) *EmbeddingEngine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > emb.MaxBatchSize() {
		cfg.BatchSize = emb.MaxBatchSize()
	}
	return &EmbeddingEngine{store: st, checkpoints: cps, embedder: emb, log: log, cfg: cfg}
}

// Run embeds every entry in scope without a vector. Batches run
// concurrently under the engine bound; batch failures are absorbed and
// summarized.
func (e *EmbeddingEngine) Run(ctx context.Context, scope string) (EmbeddingReport, error) {
	var report EmbeddingReport

	papers, err := e.store.ListPapersWithoutEmbedding(ctx, scope)
	if err != nil {
		return report, err
	}
	if len(papers) == 0 {
		e.log.Info("embeddings up to date", "scope", scope)
		return report, nil
	}

	batches := makeBatches(papers, e.cfg.BatchSize)
	// A batch is identified by its last paper for resume purposes.
	lastIDs := make([]string, len(batches))
	for i, b := range batches {
		lastIDs[i] = b[len(b)-1].ID
	}
	scopeKey := shardScopeKey(scope, 0)
	start, err := resumeAfter(ctx, e.checkpoints, embeddingPurpose, scopeKey, lastIDs)
	if err != nil {
		return report, err
	}
	if start > 0 {
		e.log.Info("embedding resuming", "skip_batches", start, "total_batches", len(batches))
	}

	lim := newLimiter(e.cfg.Concurrency)
	for begin := start; begin < len(batches); begin += e.cfg.ChunkSize {
		end := begin + e.cfg.ChunkSize
		if end > len(batches) {
			end = len(batches)
		}
		chunk := batches[begin:end]

		errs := lim.run(ctx, len(chunk), func(ctx context.Context, i int) error {
			return e.embedBatch(ctx, chunk[i])
		})
		for i, err := range errs {
			if err != nil {
				report.Failed += len(chunk[i])
				if len(report.Errors) < types.MaxRunErrors {
					report.Errors = append(report.Errors, err.Error())
				}
				continue
			}
			report.Embedded += len(chunk[i])
		}

		if err := commitProgress(ctx, e.checkpoints, embeddingPurpose, scopeKey, lastIDs[end-1]); err != nil {
			e.log.Warn("embedding checkpoint write failed", "error", err)
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	if err := commitProgress(ctx, e.checkpoints, embeddingPurpose, scopeKey, ""); err != nil {
		e.log.Warn("embedding checkpoint reset failed", "error", err)
	}
	e.log.Info("embedding finished", "scope", scope,
		"embedded", report.Embedded, "failed", report.Failed)
	return report, nil
}

func makeBatches(papers []types.Paper, size int) [][]types.Paper {
	var out [][]types.Paper
	for start := 0; start < len(papers); start += size {
		end := start + size
		if end > len(papers) {
			end = len(papers)
		}
		out = append(out, papers[start:end])
	}
	return out
}

// embedBatch sends one batch's texts and stores the returned vectors.
func (e *EmbeddingEngine) embedBatch(ctx context.Context, batch []types.Paper) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = embeddingText(p)
	}

	var vectors [][]float32
	err := callWithRetry(ctx, e.cfg.MaxRetries, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		var err error
		vectors, err = e.embedder.Embed(callCtx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("embedding batch of %d: %w", len(batch), err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch))
	}

	for i, p := range batch {
		if err := e.store.SetEmbedding(ctx, p.ID, vectors[i]); err != nil {
			return fmt.Errorf("storing embedding for %s: %w", p.ID, err)
		}
	}
	return nil
}

// embeddingText is the content sent to the provider: title plus
// abstract when present.
func embeddingText(p types.Paper) string {
	if p.Abstract == "" {
		return p.Title
	}
	return p.Title + "\n\n" + p.Abstract
}
