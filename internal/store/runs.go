// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// CreateRun persists a new ingest run record. Runs are append-only audit
// rows; they are mutated only through UpdateRunStatus and FinalizeRun and
// never deleted.
func (s *Store) CreateRun(ctx context.Context, run types.IngestRun) error {
	cursorBefore, err := marshalCursor(run.CursorBefore)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs
			(id, source, scope, initiator, status, cursor_before, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Scope, run.Initiator, string(run.Status),
		cursorBefore, fmtTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRunStatus transitions a run, enforcing the forward-only state
// machine: the update applies only when the stored status admits the
// transition.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, from, to types.RunStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("run %s: illegal transition %s → %s", id, from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating run %s status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("run %s status rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: not in status %s", id, from)
	}
	return nil
}

// FinalizeRun records the terminal state of a run: status, the cursor it
// advanced to, stats, error summary, and the completion timestamp.
func (s *Store) FinalizeRun(ctx context.Context, run types.IngestRun) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("run %s: finalize with non-terminal status %s", run.ID, run.Status)
	}
	cursorAfter, err := marshalCursor(run.CursorAfter)
	if err != nil {
		return err
	}
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("encoding run stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE ingest_runs
		 SET status = ?, cursor_after = ?, stats = ?, error_summary = ?, completed_at = ?
		 WHERE id = ?`,
		string(run.Status), cursorAfter, string(stats), run.ErrorSummary,
		fmtTime(run.CompletedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("finalizing run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (types.IngestRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, scope, initiator, status, cursor_before, cursor_after,
			stats, error_summary, started_at, completed_at
		 FROM ingest_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return types.IngestRun{}, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return types.IngestRun{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs for a source/scope, newest first. Empty source
// lists all sources.
func (s *Store) ListRuns(ctx context.Context, source, scope string, limit int) ([]types.IngestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, source, scope, initiator, status, cursor_before, cursor_after,
			stats, error_summary, started_at, completed_at
		 FROM ingest_runs WHERE scope = ?`
	args := []any{scope}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []types.IngestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row interface{ Scan(...any) error }) (types.IngestRun, error) {
	var run types.IngestRun
	var status, cursorBefore, cursorAfter, stats string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&run.ID, &run.Source, &run.Scope, &run.Initiator, &status,
		&cursorBefore, &cursorAfter, &stats, &run.ErrorSummary, &startedAt, &completedAt)
	if err != nil {
		return types.IngestRun{}, err
	}

	run.Status = types.RunStatus(status)
	if run.CursorBefore, err = unmarshalCursor(cursorBefore); err != nil {
		return types.IngestRun{}, err
	}
	if run.CursorAfter, err = unmarshalCursor(cursorAfter); err != nil {
		return types.IngestRun{}, err
	}
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
			return types.IngestRun{}, fmt.Errorf("decoding run stats: %w", err)
		}
	}
	run.StartedAt = parseTime(startedAt.String)
	run.CompletedAt = parseTime(completedAt.String)
	return run, nil
}

func marshalCursor(c types.Cursor) (string, error) {
	if len(c) == 0 {
		return "", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding cursor: %w", err)
	}
	return string(data), nil
}

func unmarshalCursor(s string) (types.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	var c types.Cursor
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, fmt.Errorf("decoding cursor: %w", err)
	}
	return c, nil
}
