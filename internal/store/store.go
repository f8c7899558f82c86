// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the catalog and the ingestion pipeline's durable
// state in SQLite: papers, the raw source-record ledger, ingest runs,
// checkpoints, scoring jobs, and the tables that reference papers.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// timeFmt is the storage format for timestamps.
const timeFmt = time.RFC3339Nano

// Store manages the catalog SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the catalog database at path and ensures the
// schema exists. The special path ":memory:" opens an in-memory database
// for tests.
func Open(cfg types.StoreConfig) (*Store, error) {
	path := cfg.DBPath
	if path == "" {
		path = filepath.Join("data", "catalog.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		// The DOI and source-identity uniqueness invariants are enforced
		// by the resolver, not by unique indexes: rows admitted before
		// resolution ran (imports, racing inserts) must remain readable
		// so the dedup merge job can fold them together.
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			title_norm TEXT NOT NULL DEFAULT '',
			abstract TEXT NOT NULL DEFAULT '',
			doi TEXT,
			source TEXT NOT NULL DEFAULT '',
			source_record_id TEXT,
			published TEXT,
			pub_year INTEGER NOT NULL DEFAULT 0,
			citation_count INTEGER NOT NULL DEFAULT 0,
			reference_count INTEGER NOT NULL DEFAULT 0,
			has_embedding INTEGER NOT NULL DEFAULT 0,
			embedding BLOB,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_scope_doi ON papers(scope, doi)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_scope_source ON papers(scope, source, source_record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_title_year ON papers(scope, title_norm, pub_year)`,

		`CREATE TABLE IF NOT EXISTS source_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			source_record_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			run_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			resolution TEXT NOT NULL DEFAULT 'pending',
			matched_on TEXT NOT NULL DEFAULT '',
			paper_id TEXT NOT NULL DEFAULT '',
			resolved_at TEXT,
			created_at TEXT NOT NULL,
			UNIQUE(scope, source, source_record_id, content_hash)
		)`,

		`CREATE TABLE IF NOT EXISTS ingest_runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			initiator TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			cursor_before TEXT NOT NULL DEFAULT '',
			cursor_after TEXT NOT NULL DEFAULT '',
			stats TEXT NOT NULL DEFAULT '',
			error_summary TEXT NOT NULL DEFAULT '',
			started_at TEXT,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_source_scope ON ingest_runs(source, scope)`,

		`CREATE TABLE IF NOT EXISTS ingest_checkpoints (
			source TEXT NOT NULL,
			scope_key TEXT NOT NULL,
			cursor TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (source, scope_key)
		)`,

		`CREATE TABLE IF NOT EXISTS scoring_jobs (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL DEFAULT '',
			paper_ids TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			error_summary TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Tables referencing papers. paper_scores and paper_tags and
		// paper_collections carry a secondary uniqueness constraint
		// alongside the paper reference; paper_notes is a plain
		// foreign key.
		`CREATE TABLE IF NOT EXISTS paper_scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_id TEXT NOT NULL,
			dimension TEXT NOT NULL,
			score REAL NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			scored_at TEXT NOT NULL,
			UNIQUE(paper_id, dimension)
		)`,
		`CREATE TABLE IF NOT EXISTS paper_tags (
			paper_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(paper_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS paper_collections (
			collection_id TEXT NOT NULL,
			paper_id TEXT NOT NULL,
			added_at TEXT NOT NULL,
			UNIQUE(collection_id, paper_id)
		)`,
		`CREATE TABLE IF NOT EXISTS paper_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			paper_id TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// now returns the current UTC time truncated for stable round-trips.
func now() time.Time {
	return time.Now().UTC()
}

// fmtTime renders a timestamp for storage; zero times store as "".
func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFmt)
}

// parseTime reads a stored timestamp; "" parses to the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFmt, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
