// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is an opaque, source-defined pagination token. The pipeline
// persists and passes cursors through without inspecting their contents.
type Cursor map[string]string

// Clone returns an independent copy of the cursor. A nil cursor clones
// to nil, which connectors interpret as "start from the beginning".
func (c Cursor) Clone() Cursor {
	if c == nil {
		return nil
	}
	out := make(Cursor, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// SourceFilters carries the filter set for a connector fetch. Query is
// always present; the remaining fields are optional and ignored by
// connectors whose API cannot express them. Extra is an opaque
// passthrough for source-specific knobs the core does not interpret.
type SourceFilters struct {
	Query         string            `json:"query" yaml:"query"`
	DateFrom      string            `json:"date_from,omitempty" yaml:"date_from,omitempty"`
	DateTo        string            `json:"date_to,omitempty" yaml:"date_to,omitempty"`
	FieldsOfStudy []string          `json:"fields_of_study,omitempty" yaml:"fields_of_study,omitempty"`
	Extra         map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// RawRecord is one raw payload as fetched from a source, before
// normalization.
type RawRecord struct {
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// Batch is the result of fetching one page from a connector.
type Batch struct {
	Records      []RawRecord `json:"records"`
	CursorBefore Cursor      `json:"cursor_before"`
	CursorAfter  Cursor      `json:"cursor_after"`
	HasMore      bool        `json:"has_more"`
}

// RunStatus is the lifecycle state of an ingestion run. Transitions are
// forward-only: queued → running → one of the terminal states.
type RunStatus string

const (
	RunQueued              RunStatus = "queued"
	RunRunning             RunStatus = "running"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
	RunFailed              RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunCompletedWithErrors, RunFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next respects the
// forward-only state machine.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunQueued:
		return next == RunRunning || next == RunFailed
	case RunRunning:
		return next.Terminal()
	}
	return false
}

// MatchKey identifies which resolution rule matched a bundle to a
// catalog entry.
type MatchKey string

const (
	MatchDOI       MatchKey = "doi"
	MatchSourceID  MatchKey = "source_id"
	MatchTitleYear MatchKey = "title_year"
	MatchNone      MatchKey = "none"
)

// MaxRunErrors bounds the number of per-record error messages retained
// in run stats. Further errors are counted but not stored.
const MaxRunErrors = 20

// RunStats accumulates counters for one ingestion run.
type RunStats struct {
	// Fetched is the number of records returned by the connector.
	Fetched int `json:"fetched" yaml:"fetched"`

	// Inserted is the number of new ledger rows written.
	Inserted int `json:"inserted" yaml:"inserted"`

	// Duplicates is the number of fetched records whose content was
	// already in the ledger.
	Duplicates int `json:"duplicates" yaml:"duplicates"`

	// PapersCreated counts catalog entries created by this run.
	PapersCreated int `json:"papers_created" yaml:"papers_created"`

	// PapersMatched counts records resolved to an existing entry.
	PapersMatched int `json:"papers_matched" yaml:"papers_matched"`

	// Failed counts records that failed normalization or resolution.
	Failed int `json:"failed" yaml:"failed"`

	// MatchedOn is a histogram of the resolution rule that fired per
	// matched record.
	MatchedOn map[string]int `json:"matched_on,omitempty" yaml:"matched_on,omitempty"`

	// CheckpointError records a failed checkpoint write. The run still
	// completes; the next run resumes from the previous cursor.
	CheckpointError string `json:"checkpoint_error,omitempty" yaml:"checkpoint_error,omitempty"`

	// Errors holds the first MaxRunErrors per-record error messages.
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// RecordError counts a per-record failure and keeps the message if the
// bounded list has room.
func (s *RunStats) RecordError(format string, args ...any) {
	s.Failed++
	if len(s.Errors) < MaxRunErrors {
		s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
	}
}

// CountMatch records the resolution rule that fired for one record.
func (s *RunStats) CountMatch(key MatchKey, created bool) {
	if created {
		s.PapersCreated++
	} else {
		s.PapersMatched++
	}
	if s.MatchedOn == nil {
		s.MatchedOn = make(map[string]int)
	}
	s.MatchedOn[string(key)]++
}

// IngestRun is one execution attempt of a source/scope pull. Runs are
// never deleted; they form the pipeline's audit trail.
type IngestRun struct {
	ID           string    `json:"id" yaml:"id"`
	Source       string    `json:"source" yaml:"source"`
	Scope        string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	Initiator    string    `json:"initiator,omitempty" yaml:"initiator,omitempty"`
	Status       RunStatus `json:"status" yaml:"status"`
	CursorBefore Cursor    `json:"cursor_before,omitempty" yaml:"cursor_before,omitempty"`
	CursorAfter  Cursor    `json:"cursor_after,omitempty" yaml:"cursor_after,omitempty"`
	Stats        RunStats  `json:"stats" yaml:"stats"`
	ErrorSummary string    `json:"error_summary,omitempty" yaml:"error_summary,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt  time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// ResolutionStatus tracks the ledger row's progress through the entity
// resolver.
type ResolutionStatus string

const (
	ResolutionPending ResolutionStatus = "pending"
	ResolutionMatched ResolutionStatus = "matched"
	ResolutionCreated ResolutionStatus = "created"
	ResolutionFailed  ResolutionStatus = "failed"
)

// SourceRecord is one raw payload as fetched, immutable once written.
// Identical content from repeated fetches produces zero new rows;
// different content for the same source record id appends a new row.
type SourceRecord struct {
	ID          int64            `json:"id"`
	Scope       string           `json:"scope,omitempty"`
	Source      string           `json:"source"`
	SourceID    string           `json:"source_record_id"`
	ContentHash string           `json:"content_hash"`
	RunID       string           `json:"run_id"`
	Payload     json.RawMessage  `json:"payload"`
	Resolution  ResolutionStatus `json:"resolution"`
	MatchedOn   MatchKey         `json:"matched_on,omitempty"`
	PaperID     string           `json:"paper_id,omitempty"`
	ResolvedAt  time.Time        `json:"resolved_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
