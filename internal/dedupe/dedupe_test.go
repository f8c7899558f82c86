// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

func TestArenaUnionFind(t *testing.T) {
	a := newArena()
	a.add("c", "2")
	a.add("a", "0")
	a.add("b", "1")

	a.union(a.index["a"], a.index["b"])
	a.union(a.index["b"], a.index["c"])

	groups := a.groups()
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Canonical != "a" {
		t.Errorf("canonical = %s, want earliest-ordered member", groups[0].Canonical)
	}
	if len(groups[0].Duplicates) != 2 {
		t.Errorf("duplicates = %v", groups[0].Duplicates)
	}

	// Singletons never surface as groups.
	a.add("lonely", "9")
	if got := a.groups(); len(got) != 1 {
		t.Errorf("singleton leaked into groups: %v", got)
	}
}

func TestGroupDuplicatesTransitive(t *testing.T) {
	// p1 and p2 share a DOI; p2 and p3 share a source identity. All
	// three must fold into one group rooted at the earliest row.
	keys := []store.PaperKey{
		{ID: "p1", Scope: "", DOI: "10.1/a", Source: "openalex", SourceID: "W1"},
		{ID: "p2", Scope: "", DOI: "10.1/a", Source: "arxiv", SourceID: "2301.1"},
		{ID: "p3", Scope: "", Source: "arxiv", SourceID: "2301.1"},
		{ID: "p4", Scope: "org-1", DOI: "10.1/a", Source: "openalex", SourceID: "W1"},
	}
	groups := groupDuplicates(keys)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1 (scope must isolate p4): %+v", len(groups), groups)
	}
	g := groups[0]
	if g.Canonical != "p1" || len(g.Duplicates) != 2 {
		t.Errorf("group = %+v", g)
	}
}

func testCatalog(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func addPaper(t *testing.T, st *store.Store, id, scope, doi, source, sourceID string) {
	t.Helper()
	p := types.Paper{
		ID:             id,
		Scope:          scope,
		Title:          "t " + id,
		DOI:            doi,
		Source:         source,
		SourceRecordID: sourceID,
		Published:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := st.InsertPaper(context.Background(), p, "t "+id); err != nil {
		t.Fatal(err)
	}
}

func TestMergeJobFoldsMixedCaseDOIs(t *testing.T) {
	st := testCatalog(t)
	ctx := context.Background()

	// Rows written before DOI normalization ran differ only in case.
	addPaper(t, st, "p1", "", "10.1/ABC", "openalex", "W1")
	addPaper(t, st, "p2", "", "10.1/abc", "arxiv", "2301.1")

	job := NewJob(st, logging.Nop())
	report, err := job.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Groups != 1 || report.Merged != 1 {
		t.Fatalf("report = %+v", report)
	}

	keys, err := st.LoadAllPaperKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].ID != "p1" {
		t.Errorf("catalog after merge = %+v", keys)
	}
}

func TestMergeJobIdempotent(t *testing.T) {
	st := testCatalog(t)
	ctx := context.Background()

	addPaper(t, st, "p1", "", "10.1/a", "openalex", "W1")
	addPaper(t, st, "p2", "", "10.1/a", "arxiv", "2301.1")
	if err := st.AddTag(ctx, "p2", "ml"); err != nil {
		t.Fatal(err)
	}

	job := NewJob(st, logging.Nop())
	first, err := job.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Groups != 1 || first.Merged != 1 {
		t.Fatalf("first pass = %+v", first)
	}
	if first.RefsRemapped != 1 {
		t.Errorf("tag not remapped: %+v", first)
	}

	// A second pass over the merged catalog writes nothing.
	second, err := job.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Groups != 0 || second.Merged != 0 || second.RefsRemapped != 0 {
		t.Errorf("second pass wrote: %+v", second)
	}

	keys, err := st.LoadAllPaperKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].ID != "p1" {
		t.Errorf("catalog after merge = %+v", keys)
	}
}
