// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaNburger/paperscraper-sub002/internal/checkpoint"
	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// fakeConnector returns canned batches and records the cursors it was
// fetched with.
type fakeConnector struct {
	name    string
	batch   types.Batch
	err     error
	cursors []types.Cursor
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Fetch(_ context.Context, cursor types.Cursor, _ types.SourceFilters, _ int) (types.Batch, error) {
	f.cursors = append(f.cursors, cursor.Clone())
	if f.err != nil {
		return types.Batch{}, f.err
	}
	return f.batch, nil
}

func record(id, title, doi string) types.RawRecord {
	payload := map[string]string{"id": id, "title": title, "date": "2021-05-01"}
	if doi != "" {
		payload["doi"] = doi
	}
	raw, _ := json.Marshal(payload)
	return types.RawRecord{Source: "test", Payload: raw}
}

func testOrchestrator(t *testing.T) (*Orchestrator, *store.Store, *checkpoint.Memory) {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	cps := checkpoint.NewMemory()
	orch := NewOrchestrator(st, cps, logging.Nop(), types.IngestConfig{Initiator: "test"})
	return orch, st, cps
}

func TestRunIdempotentReplay(t *testing.T) {
	orch, st, _ := testOrchestrator(t)
	ctx := context.Background()

	conn := &fakeConnector{name: "test", batch: types.Batch{
		Records:     []types.RawRecord{record("r1", "Paper One", ""), record("r2", "Paper Two", "")},
		CursorAfter: types.Cursor{"offset": "2"},
		HasMore:     false,
	}}
	req := Request{Connector: conn, Filters: types.SourceFilters{Query: "q"}}

	first, err := orch.Run(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != types.RunCompleted {
		t.Fatalf("first run status = %s", first.Status)
	}
	if first.Stats.Inserted != 2 || first.Stats.PapersCreated != 2 {
		t.Fatalf("first run stats = %+v", first.Stats)
	}

	// Same batch again: no new ledger rows, no new catalog entries.
	second, err := orch.Run(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if second.Stats.Inserted != 0 {
		t.Errorf("replay inserted %d rows", second.Stats.Inserted)
	}
	if second.Stats.Duplicates != 2 {
		t.Errorf("replay duplicates = %d, want 2", second.Stats.Duplicates)
	}
	if second.Stats.PapersCreated != 0 {
		t.Errorf("replay created %d papers", second.Stats.PapersCreated)
	}
	keys, err := st.LoadPaperKeys(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("catalog has %d entries after replay, want 2", len(keys))
	}
}

func TestRunSameDOICollapsesWithinBatch(t *testing.T) {
	orch, st, _ := testOrchestrator(t)
	ctx := context.Background()

	conn := &fakeConnector{name: "test", batch: types.Batch{
		Records: []types.RawRecord{
			record("r1", "X", "10.1/A"),
			record("r2", "X (dup)", "10.1/A"),
		},
	}}
	run, err := orch.Run(ctx, Request{Connector: conn, Scope: "org-1"})
	if err != nil {
		t.Fatal(err)
	}
	if run.Stats.PapersCreated != 1 || run.Stats.PapersMatched != 1 {
		t.Errorf("stats = %+v, want created=1 matched=1", run.Stats)
	}
	if run.Stats.MatchedOn["doi"] != 1 {
		t.Errorf("matched_on = %v", run.Stats.MatchedOn)
	}
	keys, err := st.LoadPaperKeys(ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Errorf("catalog has %d entries, want 1", len(keys))
	}
}

func TestRunPartialFailureIsolation(t *testing.T) {
	orch, _, _ := testOrchestrator(t)
	ctx := context.Background()

	// One record carries nothing an identity could be derived from.
	bad := types.RawRecord{Source: "test", Payload: json.RawMessage(`{"abstract": "no identity"}`)}
	conn := &fakeConnector{name: "test", batch: types.Batch{
		Records: []types.RawRecord{record("r1", "Good One", ""), bad, record("r2", "Good Two", "")},
	}}

	run, err := orch.Run(ctx, Request{Connector: conn})
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != types.RunCompletedWithErrors {
		t.Errorf("status = %s, want completed_with_errors", run.Status)
	}
	if run.Stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", run.Stats.Failed)
	}
	if run.Stats.PapersCreated != 2 {
		t.Errorf("created = %d, want 2", run.Stats.PapersCreated)
	}
	if len(run.Stats.Errors) != 1 {
		t.Errorf("errors = %v", run.Stats.Errors)
	}
}

func TestRunConnectorFailure(t *testing.T) {
	orch, st, cps := testOrchestrator(t)
	ctx := context.Background()

	boom := errors.New("upstream 500")
	conn := &fakeConnector{name: "test", err: boom}
	req := Request{Connector: conn, Filters: types.SourceFilters{Query: "q"}}

	run, err := orch.Run(ctx, req)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped transport error", err)
	}
	if run.Status != types.RunFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}

	// The checkpoint must not advance.
	scopeKey := checkpoint.ScopeKey("", req.Filters)
	cursor, cpErr := cps.GetCheckpoint(ctx, "test", scopeKey)
	if cpErr != nil {
		t.Fatal(cpErr)
	}
	if cursor != nil {
		t.Errorf("checkpoint advanced on failure: %v", cursor)
	}

	// The failed run is still audited.
	stored, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != types.RunFailed || stored.ErrorSummary == "" {
		t.Errorf("stored run = %+v", stored)
	}
}

func TestRunCheckpointResume(t *testing.T) {
	orch, _, cps := testOrchestrator(t)
	ctx := context.Background()

	conn := &fakeConnector{name: "test", batch: types.Batch{
		Records:     []types.RawRecord{record("r1", "Paper", "")},
		CursorAfter: types.Cursor{"offset": "50"},
		HasMore:     true,
	}}
	req := Request{Connector: conn, Filters: types.SourceFilters{Query: "q"}}

	if _, err := orch.Run(ctx, req); err != nil {
		t.Fatal(err)
	}
	if len(conn.cursors) != 1 || conn.cursors[0] != nil {
		t.Fatalf("first fetch cursor = %v, want nil", conn.cursors)
	}

	// A fresh orchestrator over the same checkpoint store resumes from
	// the persisted cursor, not from the beginning.
	st2, err := store.Open(types.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st2.Close() })
	orch2 := NewOrchestrator(st2, cps, logging.Nop(), types.IngestConfig{})

	if _, err := orch2.Run(ctx, req); err != nil {
		t.Fatal(err)
	}
	got := conn.cursors[len(conn.cursors)-1]
	if got["offset"] != "50" {
		t.Errorf("resumed fetch cursor = %v, want offset=50", got)
	}
}

func TestReadQuerySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	content := []byte(`scope: org-1
sources: [openalex, arxiv]
queries:
  - query: "sparse attention"
    date_from: "2022-01-01"
    extra:
      search_query: "cat:cs.LG"
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	qs, err := ReadQuerySet(path)
	if err != nil {
		t.Fatal(err)
	}
	if qs.Scope != "org-1" || len(qs.Sources) != 2 || len(qs.Queries) != 1 {
		t.Errorf("query set = %+v", qs)
	}
	f := qs.Queries[0].Filters()
	if f.Query != "sparse attention" || f.DateFrom != "2022-01-01" || f.Extra["search_query"] != "cat:cs.LG" {
		t.Errorf("filters = %+v", f)
	}

	// Missing queries is a validation error.
	if err := os.WriteFile(path, []byte("sources: [openalex]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadQuerySet(path); err == nil {
		t.Error("expected error for query set without queries")
	}
}
