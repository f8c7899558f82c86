// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// InsertSourceRecords writes ledger rows with insert-skip-on-conflict
// semantics keyed on (scope, source, source_record_id, content_hash) and
// returns exactly the subset of input records that were newly inserted,
// with their assigned row ids. Repeated fetches of identical content are
// no-ops; changed content for the same source record id appends a new
// row, so replays are always safe.
func (s *Store) InsertSourceRecords(ctx context.Context, records []types.SourceRecord) ([]types.SourceRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO source_records
			(scope, source, source_record_id, content_hash, run_id, payload, resolution, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing ledger insert: %w", err)
	}
	defer stmt.Close()

	created := now()
	var inserted []types.SourceRecord
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			r.Scope, r.Source, r.SourceID, r.ContentHash, r.RunID,
			string(r.Payload), string(types.ResolutionPending), fmtTime(created),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting ledger row %s/%s: %w", r.Source, r.SourceID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("ledger rows affected: %w", err)
		}
		if n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("ledger insert id: %w", err)
		}
		r.ID = id
		r.Resolution = types.ResolutionPending
		r.CreatedAt = created
		inserted = append(inserted, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ledger insert: %w", err)
	}
	return inserted, nil
}

// MarkSourceRecordResolved records the resolver's outcome for one ledger
// row. The resolution fields are written once; the row is otherwise
// immutable.
func (s *Store) MarkSourceRecordResolved(ctx context.Context, id int64, status types.ResolutionStatus, matchedOn types.MatchKey, paperID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE source_records
		 SET resolution = ?, matched_on = ?, paper_id = ?, resolved_at = ?
		 WHERE id = ?`,
		string(status), string(matchedOn), paperID, fmtTime(now()), id,
	)
	if err != nil {
		return fmt.Errorf("marking source record %d resolved: %w", id, err)
	}
	return nil
}

// CountSourceRecords returns the number of ledger rows for a run.
func (s *Store) CountSourceRecords(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM source_records WHERE run_id = ?`, runID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting source records: %w", err)
	}
	return n, nil
}
