// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest drives one bounded ingestion run: load checkpoint,
// fetch one page, append to the ledger, resolve the newly-seen records,
// advance the checkpoint, finalize the run record. Callers loop across
// runs to walk deeper into a source; keeping each run to a single page
// makes interruption lose at most one page of work.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaNburger/paperscraper-sub002/internal/checkpoint"
	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/normalize"
	"github.com/BaNburger/paperscraper-sub002/internal/resolve"
	"github.com/BaNburger/paperscraper-sub002/internal/source"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// Orchestrator wires a connector, the catalog store, and a checkpoint
// backend into the run state machine.
type Orchestrator struct {
	store       *store.Store
	checkpoints checkpoint.Store
	log         *logging.Logger
	cfg         types.IngestConfig
}

func NewOrchestrator(st *store.Store, cps checkpoint.Store, log *logging.Logger, cfg types.IngestConfig) *Orchestrator {
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 30 * time.Second
	}
	return &Orchestrator{store: st, checkpoints: cps, log: log, cfg: cfg}
}

// Request describes one run.
type Request struct {
	Connector source.Connector
	Scope     string
	Filters   types.SourceFilters
	PageSize  int
}

// Run executes one page-sized ingestion run and returns the finalized
// run record. A connector failure marks the run failed, leaves the
// checkpoint untouched, and returns the error; per-record failures are
// absorbed into the run stats instead.
func (o *Orchestrator) Run(ctx context.Context, req Request) (types.IngestRun, error) {
	src := req.Connector.Name()
	scopeKey := checkpoint.ScopeKey(req.Scope, req.Filters)

	cursor, err := o.checkpoints.GetCheckpoint(ctx, src, scopeKey)
	if err != nil {
		return types.IngestRun{}, fmt.Errorf("loading checkpoint: %w", err)
	}

	run := types.IngestRun{
		ID:           uuid.NewString(),
		Source:       src,
		Scope:        req.Scope,
		Initiator:    o.cfg.Initiator,
		Status:       types.RunQueued,
		CursorBefore: cursor.Clone(),
		StartedAt:    time.Now().UTC(),
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return run, err
	}
	if err := o.store.UpdateRunStatus(ctx, run.ID, types.RunQueued, types.RunRunning); err != nil {
		return run, err
	}
	run.Status = types.RunRunning
	o.log.Info("ingest run started", "run_id", run.ID, "source", src, "scope", req.Scope, "cursor", cursor)

	batch, err := req.Connector.Fetch(ctx, cursor, req.Filters, req.PageSize)
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("fetching from %s: %w", src, err))
	}
	run.Stats.Fetched = len(batch.Records)

	inserted, attempted, err := o.appendLedger(ctx, &run, batch.Records)
	if err != nil {
		return o.fail(ctx, run, err)
	}
	run.Stats.Inserted = len(inserted)
	run.Stats.Duplicates = attempted - run.Stats.Inserted

	resolver, err := resolve.New(ctx, o.store, o.log, req.Scope)
	if err != nil {
		return o.fail(ctx, run, err)
	}
	for _, rec := range inserted {
		o.resolveRecord(ctx, resolver, rec, &run.Stats)
	}

	// The checkpoint only moves when the page did; a stalled cursor is
	// rewritten as-is so the row's updated_at still reflects the run.
	run.CursorAfter = batch.CursorAfter.Clone()
	if run.CursorAfter == nil {
		run.CursorAfter = cursor.Clone()
	}
	if err := o.checkpoints.UpsertCheckpoint(ctx, src, scopeKey, run.CursorAfter); err != nil {
		// The run still completes: the ledger already holds this page,
		// and a replay from the stale cursor deduplicates cleanly.
		run.Stats.CheckpointError = err.Error()
		o.log.Warn("checkpoint write failed", "run_id", run.ID, "error", err)
	}

	run.Status = types.RunCompleted
	if run.Stats.Failed > 0 {
		run.Status = types.RunCompletedWithErrors
	}
	run.CompletedAt = time.Now().UTC()
	if err := o.store.FinalizeRun(ctx, run); err != nil {
		return run, err
	}
	o.log.Info("ingest run finished", "run_id", run.ID, "status", run.Status,
		"fetched", run.Stats.Fetched, "inserted", run.Stats.Inserted,
		"created", run.Stats.PapersCreated, "matched", run.Stats.PapersMatched,
		"failed", run.Stats.Failed, "has_more", batch.HasMore)
	return run, nil
}

// appendLedger stamps scope, run id, and content hash onto the fetched
// records and appends them, returning the newly-inserted subset and the
// count of records that made it to the ledger write. Records without a
// derivable identity are counted as failed and skipped; one bad record
// never aborts the run.
func (o *Orchestrator) appendLedger(ctx context.Context, run *types.IngestRun, raw []types.RawRecord) ([]types.SourceRecord, int, error) {
	records := make([]types.SourceRecord, 0, len(raw))
	for _, r := range raw {
		hash, err := normalize.ContentHash(r.Payload)
		if err != nil {
			run.Stats.RecordError("hashing %s record: %v", r.Source, err)
			continue
		}
		b, err := normalize.Normalize(r.Source, r.Payload)
		if err != nil {
			run.Stats.RecordError("deriving identity for %s record: %v", r.Source, err)
			continue
		}
		records = append(records, types.SourceRecord{
			Scope:       run.Scope,
			Source:      r.Source,
			SourceID:    b.SourceRecordID,
			ContentHash: hash,
			RunID:       run.ID,
			Payload:     r.Payload,
			Resolution:  types.ResolutionPending,
		})
	}
	inserted, err := o.store.InsertSourceRecords(ctx, records)
	if err != nil {
		return nil, len(records), err
	}
	return inserted, len(records), nil
}

// resolveRecord normalizes and resolves one ledger row under the
// per-record budget. Failures mark the row and count against the run
// but never abort it.
func (o *Orchestrator) resolveRecord(ctx context.Context, resolver *resolve.Resolver, rec types.SourceRecord, stats *types.RunStats) {
	recCtx, cancel := context.WithTimeout(ctx, o.cfg.RecordTimeout)
	defer cancel()

	bundle, err := normalize.Normalize(rec.Source, rec.Payload)
	if err != nil {
		stats.RecordError("normalize %s/%s: %v", rec.Source, rec.SourceID, err)
		o.markFailed(recCtx, rec.ID)
		return
	}
	res, err := resolver.Resolve(recCtx, bundle, o.cfg.Initiator)
	if err != nil {
		stats.RecordError("resolve %s/%s: %v", rec.Source, rec.SourceID, err)
		o.markFailed(recCtx, rec.ID)
		return
	}
	stats.CountMatch(res.MatchedOn, res.Created)

	status := types.ResolutionMatched
	if res.Created {
		status = types.ResolutionCreated
	}
	if err := o.store.MarkSourceRecordResolved(recCtx, rec.ID, status, res.MatchedOn, res.PaperID); err != nil {
		stats.RecordError("mark resolved %s/%s: %v", rec.Source, rec.SourceID, err)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, id int64) {
	if err := o.store.MarkSourceRecordResolved(ctx, id, types.ResolutionFailed, types.MatchNone, ""); err != nil {
		o.log.Warn("marking ledger row failed", "record_id", id, "error", err)
	}
}

// fail finalizes the run as failed without touching the checkpoint and
// returns the causing error to the caller.
func (o *Orchestrator) fail(ctx context.Context, run types.IngestRun, cause error) (types.IngestRun, error) {
	run.Status = types.RunFailed
	run.ErrorSummary = cause.Error()
	run.CursorAfter = run.CursorBefore.Clone()
	run.CompletedAt = time.Now().UTC()
	if ferr := o.store.FinalizeRun(ctx, run); ferr != nil {
		o.log.Error("finalizing failed run", "run_id", run.ID, "error", ferr)
	}
	o.log.Error("ingest run failed", "run_id", run.ID, "error", cause)
	return run, cause
}
