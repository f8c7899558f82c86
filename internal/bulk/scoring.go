// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bulk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaNburger/paperscraper-sub002/internal/checkpoint"
	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/provider"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

const scoringPurpose = "scoring"

// ScoringEngine scores catalog entries missing any requested dimension.
// One unit of work is one entry's full scoring call.
type ScoringEngine struct {
	store       *store.Store
	checkpoints checkpoint.Store
	scorer      provider.Scorer
	log         *logging.Logger
	cfg         types.ScoringConfig
}

func NewScoringEngine(st *store.Store, cps checkpoint.Store, scorer provider.Scorer, log *logging.Logger, cfg types.ScoringConfig) *ScoringEngine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 20
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ScoringEngine{store: st, checkpoints: cps, scorer: scorer, log: log, cfg: cfg}
}

// Run scores every entry in scope that lacks one of the configured
// dimensions, one job record per shard. It returns the finished jobs.
func (e *ScoringEngine) Run(ctx context.Context, scope string) ([]types.ScoringJob, error) {
	if len(e.cfg.Dimensions) == 0 {
		return nil, fmt.Errorf("no scoring dimensions configured")
	}
	ids, err := e.store.ListPapersNeedingScores(ctx, scope, e.cfg.Dimensions)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		e.log.Info("scoring up to date", "scope", scope)
		return nil, nil
	}

	var jobs []types.ScoringJob
	for shard, shardIDs := range Shards(ids, e.cfg.ShardSize) {
		job, err := e.runShard(ctx, scope, shard, shardIDs)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (e *ScoringEngine) runShard(ctx context.Context, scope string, shard int, ids []string) (types.ScoringJob, error) {
	job := types.ScoringJob{
		ID:       uuid.NewString(),
		Scope:    scope,
		PaperIDs: ids,
		Status:   types.JobPending,
	}
	if err := e.store.CreateScoringJob(ctx, job); err != nil {
		return job, err
	}

	scopeKey := shardScopeKey(scope, shard)
	start, err := resumeAfter(ctx, e.checkpoints, scoringPurpose, scopeKey, ids)
	if err != nil {
		return job, err
	}
	if start > 0 {
		e.log.Info("scoring shard resuming", "shard", shard, "skip", start, "total", len(ids))
	}

	lim := newLimiter(e.cfg.Concurrency)
	var errMsgs []string
	for begin := start; begin < len(ids); begin += e.cfg.ChunkSize {
		end := begin + e.cfg.ChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[begin:end]

		errs := lim.run(ctx, len(chunk), func(ctx context.Context, i int) error {
			return e.scoreOne(ctx, chunk[i])
		})

		completed, failed := 0, 0
		for i, err := range errs {
			if err != nil {
				failed++
				if len(errMsgs) < types.MaxRunErrors {
					errMsgs = append(errMsgs, fmt.Sprintf("%s: %v", chunk[i], err))
				}
				continue
			}
			completed++
		}
		job.Completed += completed
		job.Failed += failed
		if err := e.store.AdvanceScoringJob(ctx, job.ID, completed, failed); err != nil {
			return job, err
		}
		// Commit the chunk boundary; a restart reprocesses at most one
		// chunk, and the scores upsert makes that replay harmless.
		if err := commitProgress(ctx, e.checkpoints, scoringPurpose, scopeKey, ids[end-1]); err != nil {
			e.log.Warn("scoring checkpoint write failed", "shard", shard, "error", err)
		}
		if err := ctx.Err(); err != nil {
			return job, err
		}
	}

	job.Status = types.JobCompleted
	if job.Failed > 0 {
		job.Status = types.JobCompletedWithErrors
	}
	if job.Completed == 0 && job.Failed > 0 {
		job.Status = types.JobFailed
	}
	job.ErrorSummary = strings.Join(errMsgs, "; ")
	if err := e.store.FinishScoringJob(ctx, job.ID, job.Status, job.ErrorSummary); err != nil {
		return job, err
	}
	// Shard done; clear the marker so a later job for the same scope
	// starts clean.
	if err := commitProgress(ctx, e.checkpoints, scoringPurpose, scopeKey, ""); err != nil {
		e.log.Warn("scoring checkpoint reset failed", "shard", shard, "error", err)
	}
	e.log.Info("scoring shard finished", "job_id", job.ID, "shard", shard,
		"status", job.Status, "completed", job.Completed, "failed", job.Failed)
	return job, nil
}

func (e *ScoringEngine) scoreOne(ctx context.Context, id string) error {
	p, err := e.store.GetPaper(ctx, id)
	if err != nil {
		return err
	}
	var scores []types.DimensionScore
	err = callWithRetry(ctx, e.cfg.MaxRetries, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		var err error
		scores, err = e.scorer.Score(callCtx, p, e.cfg.Dimensions)
		return err
	})
	if err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return e.store.UpsertPaperScores(ctx, id, scores)
}
