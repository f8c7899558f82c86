// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// CreateScoringJob persists a new scoring job record.
func (s *Store) CreateScoringJob(ctx context.Context, job types.ScoringJob) error {
	ids, err := json.Marshal(job.PaperIDs)
	if err != nil {
		return fmt.Errorf("encoding job paper ids: %w", err)
	}
	created := fmtTime(now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scoring_jobs (id, scope, paper_ids, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.Scope, string(ids), string(job.Status), created, created,
	)
	if err != nil {
		return fmt.Errorf("creating scoring job %s: %w", job.ID, err)
	}
	return nil
}

// AdvanceScoringJob adds completed/failed counts as a chunk finishes.
// Counters only grow; the job row is the coarse progress view while the
// checkpoint store holds the fine-grained resume position.
func (s *Store) AdvanceScoringJob(ctx context.Context, id string, completed, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scoring_jobs
		 SET completed = completed + ?, failed = failed + ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		completed, failed, string(types.JobRunning), fmtTime(now()), id,
	)
	if err != nil {
		return fmt.Errorf("advancing scoring job %s: %w", id, err)
	}
	return nil
}

// FinishScoringJob records the terminal status and error summary.
func (s *Store) FinishScoringJob(ctx context.Context, id string, status types.JobStatus, errorSummary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scoring_jobs SET status = ?, error_summary = ?, updated_at = ? WHERE id = ?`,
		string(status), errorSummary, fmtTime(now()), id,
	)
	if err != nil {
		return fmt.Errorf("finishing scoring job %s: %w", id, err)
	}
	return nil
}

// GetScoringJob loads one job by id.
func (s *Store) GetScoringJob(ctx context.Context, id string) (types.ScoringJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scope, paper_ids, status, completed, failed, error_summary, created_at, updated_at
		 FROM scoring_jobs WHERE id = ?`, id)

	var job types.ScoringJob
	var ids, status, createdAt, updatedAt string
	err := row.Scan(&job.ID, &job.Scope, &ids, &status, &job.Completed, &job.Failed,
		&job.ErrorSummary, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return types.ScoringJob{}, fmt.Errorf("scoring job %s not found", id)
	}
	if err != nil {
		return types.ScoringJob{}, fmt.Errorf("loading scoring job %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(ids), &job.PaperIDs); err != nil {
		return types.ScoringJob{}, fmt.Errorf("decoding job paper ids: %w", err)
	}
	job.Status = types.JobStatus(status)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return job, nil
}
