// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ledgerRecord(scope, source, id, hash string) types.SourceRecord {
	return types.SourceRecord{
		Scope:       scope,
		Source:      source,
		SourceID:    id,
		ContentHash: hash,
		RunID:       "run-1",
		Payload:     json.RawMessage(`{"id": "` + id + `"}`),
	}
}

func TestInsertSourceRecordsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	records := []types.SourceRecord{
		ledgerRecord("", "openalex", "W1", "hash-a"),
		ledgerRecord("", "openalex", "W2", "hash-b"),
	}
	inserted, err := s.InsertSourceRecords(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	if len(inserted) != 2 {
		t.Fatalf("first insert: got %d rows, want 2", len(inserted))
	}
	if inserted[0].ID == 0 || inserted[1].ID == 0 {
		t.Error("inserted rows missing ids")
	}

	// Replaying identical content inserts nothing.
	replay, err := s.InsertSourceRecords(ctx, records)
	if err != nil {
		t.Fatal(err)
	}
	if len(replay) != 0 {
		t.Fatalf("replay: got %d rows, want 0", len(replay))
	}

	// Changed content for the same source record appends a new row.
	changed := ledgerRecord("", "openalex", "W1", "hash-a2")
	appended, err := s.InsertSourceRecords(ctx, []types.SourceRecord{changed})
	if err != nil {
		t.Fatal(err)
	}
	if len(appended) != 1 {
		t.Fatalf("changed content: got %d rows, want 1", len(appended))
	}

	// Same content under a different scope is a distinct ledger row.
	scoped, err := s.InsertSourceRecords(ctx, []types.SourceRecord{ledgerRecord("org-1", "openalex", "W1", "hash-a")})
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 {
		t.Fatalf("scoped insert: got %d rows, want 1", len(scoped))
	}
}

func TestMarkSourceRecordResolved(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	inserted, err := s.InsertSourceRecords(ctx, []types.SourceRecord{ledgerRecord("", "arxiv", "2301.1", "h")})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSourceRecordResolved(ctx, inserted[0].ID, types.ResolutionCreated, types.MatchNone, "paper-1"); err != nil {
		t.Fatal(err)
	}
	n, err := s.CountSourceRecords(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountSourceRecords = %d, want 1", n)
	}
}

func insertTestPaper(t *testing.T, s *Store, id, scope, doi, source, sourceID, title string, year int) {
	t.Helper()
	p := types.Paper{
		ID:             id,
		Scope:          scope,
		Title:          title,
		DOI:            doi,
		Source:         source,
		SourceRecordID: sourceID,
		Published:      time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy:      "test",
	}
	if err := s.InsertPaper(context.Background(), p, title); err != nil {
		t.Fatal(err)
	}
}

func TestPaperRoundTripAndEnrich(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertTestPaper(t, s, "p1", "", "", "arxiv", "2301.1", "a title", 2023)

	got, err := s.GetPaper(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "a title" || got.Source != "arxiv" || got.DOI != "" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Enrichment fills the missing DOI and abstract.
	err = s.EnrichPaper(ctx, "p1", types.NormalizedBundle{
		DOI:           "10.1/a",
		Abstract:      "filled in",
		CitationCount: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err = s.GetPaper(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.DOI != "10.1/a" || got.Abstract != "filled in" || got.CitationCount != 5 {
		t.Errorf("enrich did not fill fields: %+v", got)
	}

	// A second DOI never overwrites the stored one.
	if err := s.EnrichPaper(ctx, "p1", types.NormalizedBundle{DOI: "10.9/other"}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetPaper(ctx, "p1")
	if got.DOI != "10.1/a" {
		t.Errorf("enrich overwrote DOI: %q", got.DOI)
	}
}

func TestLoadPaperKeysScoped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertTestPaper(t, s, "p1", "", "10.1/a", "openalex", "W1", "global paper", 2020)
	insertTestPaper(t, s, "p2", "org-1", "10.1/a", "openalex", "W1", "tenant paper", 2020)

	keys, err := s.LoadPaperKeys(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].ID != "p1" {
		t.Errorf("global scope keys = %+v", keys)
	}

	keys, err = s.LoadPaperKeys(ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].ID != "p2" {
		t.Errorf("tenant scope keys = %+v", keys)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := types.IngestRun{
		ID:           "run-1",
		Source:       "openalex",
		Status:       types.RunQueued,
		CursorBefore: types.Cursor{"cursor": "*"},
		StartedAt:    time.Now().UTC(),
	}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateRunStatus(ctx, "run-1", types.RunQueued, types.RunRunning); err != nil {
		t.Fatal(err)
	}

	// The state machine is forward-only.
	if err := s.UpdateRunStatus(ctx, "run-1", types.RunRunning, types.RunQueued); err == nil {
		t.Error("expected error for backward transition")
	}
	// Guarded update: the stored status must match "from".
	if err := s.UpdateRunStatus(ctx, "run-1", types.RunQueued, types.RunRunning); err == nil {
		t.Error("expected error for stale from-status")
	}

	run.Status = types.RunCompleted
	run.CursorAfter = types.Cursor{"cursor": "next"}
	run.Stats = types.RunStats{Fetched: 10, Inserted: 8, Duplicates: 2, PapersCreated: 8}
	run.CompletedAt = time.Now().UTC()
	if err := s.FinalizeRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.RunCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if got.CursorAfter["cursor"] != "next" {
		t.Errorf("cursor_after = %v", got.CursorAfter)
	}
	if got.Stats.Inserted != 8 {
		t.Errorf("stats = %+v", got.Stats)
	}

	runs, err := s.ListRuns(ctx, "openalex", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("ListRuns returned %d runs", len(runs))
	}
}

func TestFinalizeRejectsNonTerminal(t *testing.T) {
	s := testStore(t)
	run := types.IngestRun{ID: "r", Source: "arxiv", Status: types.RunRunning}
	if err := s.FinalizeRun(context.Background(), run); err == nil {
		t.Fatal("expected error finalizing a running run")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.GetCheckpoint(ctx, "openalex", "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("missing checkpoint = %v, want nil", got)
	}

	if err := s.UpsertCheckpoint(ctx, "openalex", "key-1", types.Cursor{"cursor": "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertCheckpoint(ctx, "openalex", "key-1", types.Cursor{"cursor": "b"}); err != nil {
		t.Fatal(err)
	}

	got, err = s.GetCheckpoint(ctx, "openalex", "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if got["cursor"] != "b" {
		t.Errorf("checkpoint = %v, want last write", got)
	}
}

func TestUpsertPaperScores(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	insertTestPaper(t, s, "p1", "", "", "arxiv", "1", "t", 2020)

	scores := []types.DimensionScore{
		{Dimension: "novelty", Score: 0.5, Confidence: 0.8},
	}
	if err := s.UpsertPaperScores(ctx, "p1", scores); err != nil {
		t.Fatal(err)
	}
	// Re-scoring replaces, not duplicates.
	scores[0].Score = 0.9
	if err := s.UpsertPaperScores(ctx, "p1", scores); err != nil {
		t.Fatal(err)
	}

	ids, err := s.ListPapersNeedingScores(ctx, "", []string{"novelty"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("scored paper still listed: %v", ids)
	}
	ids, err = s.ListPapersNeedingScores(ctx, "", []string{"novelty", "rigor"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("paper missing a dimension not listed: %v", ids)
	}
}

func TestSetEmbedding(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	insertTestPaper(t, s, "p1", "", "", "arxiv", "1", "t", 2020)

	papers, err := s.ListPapersWithoutEmbedding(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) != 1 {
		t.Fatalf("got %d papers without embedding", len(papers))
	}

	if err := s.SetEmbedding(ctx, "p1", []float32{0.1, 0.2}); err != nil {
		t.Fatal(err)
	}
	papers, err = s.ListPapersWithoutEmbedding(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) != 0 {
		t.Error("embedded paper still listed")
	}

	got, err := s.GetPaper(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasEmbedding || len(got.Embedding) != 2 {
		t.Errorf("embedding not stored: %+v", got)
	}
}

func TestMergePapers(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	insertTestPaper(t, s, "keep", "", "10.1/a", "openalex", "W1", "t", 2020)
	insertTestPaper(t, s, "dup", "", "10.1/a", "arxiv", "2301.1", "t", 2020)

	// Colliding secondary key on one table, disjoint on another.
	if err := s.UpsertPaperScores(ctx, "keep", []types.DimensionScore{{Dimension: "novelty", Score: 0.4}}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertPaperScores(ctx, "dup", []types.DimensionScore{{Dimension: "novelty", Score: 0.6}, {Dimension: "rigor", Score: 0.7}}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddNote(ctx, "dup", "a note"); err != nil {
		t.Fatal(err)
	}
	// Both entries sit in "reading-list"; only the dup is in "archive".
	for _, pair := range [][2]string{{"reading-list", "keep"}, {"reading-list", "dup"}, {"archive", "dup"}} {
		if err := s.AddToCollection(ctx, pair[0], pair[1]); err != nil {
			t.Fatal(err)
		}
	}
	inserted, err := s.InsertSourceRecords(ctx, []types.SourceRecord{ledgerRecord("", "arxiv", "2301.1", "h")})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSourceRecordResolved(ctx, inserted[0].ID, types.ResolutionCreated, types.MatchNone, "dup"); err != nil {
		t.Fatal(err)
	}

	counts, err := s.MergePapers(ctx, "keep", []string{"dup"})
	if err != nil {
		t.Fatal(err)
	}
	if counts.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", counts.Deleted)
	}
	if counts.RefsDeleted != 2 {
		t.Errorf("RefsDeleted = %d, want 2 (colliding novelty score + reading-list row)", counts.RefsDeleted)
	}
	// rigor score, note, ledger row, and archive membership remap to the
	// canonical entry.
	if counts.RefsRemapped != 4 {
		t.Errorf("RefsRemapped = %d, want 4", counts.RefsRemapped)
	}

	if _, err := s.GetPaper(ctx, "dup"); err == nil {
		t.Error("duplicate paper still present after merge")
	}
	ids, err := s.ListPapersNeedingScores(ctx, "", []string{"novelty", "rigor"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("canonical paper missing dimensions after merge: %v", ids)
	}
}

func TestCleanEmptyPaperIdentifiers(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// nullable() maps "" to NULL on insert, so force empty strings in.
	insertTestPaper(t, s, "p1", "", "", "openalex", "", "t", 2020)
	if _, err := s.db.ExecContext(ctx, `UPDATE papers SET doi = '', source_record_id = '' WHERE id = 'p1'`); err != nil {
		t.Fatal(err)
	}

	n, err := s.CleanEmptyPaperIdentifiers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("cleaned %d rows, want 1", n)
	}

	keys, err := s.LoadAllPaperKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if keys[0].DOI != "" || keys[0].SourceID != "" {
		t.Errorf("identifiers not nulled: %+v", keys[0])
	}
}
