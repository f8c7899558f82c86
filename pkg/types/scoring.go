// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// JobStatus is the lifecycle state of a bulk scoring job.
type JobStatus string

const (
	JobPending             JobStatus = "pending"
	JobRunning             JobStatus = "running"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
)

// ScoringJob tracks a (possibly sharded) batch-scoring execution. The
// bulk scoring engine increments the counters as chunks complete.
type ScoringJob struct {
	ID           string    `json:"id" yaml:"id"`
	Scope        string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	PaperIDs     []string  `json:"paper_ids" yaml:"paper_ids"`
	Status       JobStatus `json:"status" yaml:"status"`
	Completed    int       `json:"completed" yaml:"completed"`
	Failed       int       `json:"failed" yaml:"failed"`
	ErrorSummary string    `json:"error_summary,omitempty" yaml:"error_summary,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// DimensionScore is one scoring dimension's result for a catalog entry.
type DimensionScore struct {
	Dimension  string  `json:"dimension" yaml:"dimension"`
	Score      float64 `json:"score" yaml:"score"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}
