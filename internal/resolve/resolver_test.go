// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

func testResolver(t *testing.T, scope string) (*Resolver, *store.Store) {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	r, err := New(context.Background(), st, logging.Nop(), scope)
	if err != nil {
		t.Fatal(err)
	}
	return r, st
}

func bundle(source, id, doi, title string, year int) types.NormalizedBundle {
	b := types.NormalizedBundle{
		Source:         source,
		SourceRecordID: id,
		Title:          title,
		DOI:            doi,
	}
	if year > 0 {
		b.Published = time.Date(year, 3, 1, 0, 0, 0, 0, time.UTC)
	}
	return b
}

func TestResolveDOIDedup(t *testing.T) {
	r, _ := testResolver(t, "org-1")
	ctx := context.Background()

	first, err := r.Resolve(ctx, bundle("openalex", "W1", "10.1/A", "X", 2021), "test")
	if err != nil {
		t.Fatal(err)
	}
	if !first.Created {
		t.Fatal("first sighting should create")
	}

	// Same DOI from another source in the same batch view.
	second, err := r.Resolve(ctx, bundle("arxiv", "2101.1", "10.1/a", "X (dup)", 2021), "test")
	if err != nil {
		t.Fatal(err)
	}
	if second.Created {
		t.Error("second sighting should match, not create")
	}
	if second.PaperID != first.PaperID {
		t.Errorf("resolved to %s, want %s", second.PaperID, first.PaperID)
	}
	if second.MatchedOn != types.MatchDOI {
		t.Errorf("matched_on = %s, want doi", second.MatchedOn)
	}
}

func TestResolveMatchesStoredRawDOI(t *testing.T) {
	st, err := store.Open(types.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	// A row admitted before normalization ran carries the DOI verbatim.
	p := types.Paper{
		ID:     "legacy",
		Title:  "X",
		DOI:    "https://doi.org/10.1/MiXeD",
		Source: "openalex",
	}
	if err := st.InsertPaper(ctx, p, "x"); err != nil {
		t.Fatal(err)
	}

	r, err := New(ctx, st, logging.Nop(), "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Resolve(ctx, bundle("arxiv", "2101.9", "10.1/mixed", "X", 2021), "test")
	if err != nil {
		t.Fatal(err)
	}
	if res.Created || res.PaperID != "legacy" || res.MatchedOn != types.MatchDOI {
		t.Errorf("resolution = %+v, want doi match against the stored row", res)
	}
}

func TestResolveSourceIDMatch(t *testing.T) {
	r, _ := testResolver(t, "")
	ctx := context.Background()

	first, err := r.Resolve(ctx, bundle("patentsview", "11234567", "", "Widget", 2022), "test")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(ctx, bundle("patentsview", "11234567", "", "Widget, revised title", 2022), "test")
	if err != nil {
		t.Fatal(err)
	}
	if second.PaperID != first.PaperID || second.MatchedOn != types.MatchSourceID {
		t.Errorf("got %+v, want source_id match to %s", second, first.PaperID)
	}

	// The same id under a different source is a different identity.
	other, err := r.Resolve(ctx, bundle("openalex", "11234567", "", "Unrelated", 2019), "test")
	if err != nil {
		t.Fatal(err)
	}
	if other.PaperID == first.PaperID {
		t.Error("source id matched across sources")
	}
}

func TestResolveTitleYearFallback(t *testing.T) {
	r, _ := testResolver(t, "")
	ctx := context.Background()

	first, err := r.Resolve(ctx, bundle("openalex", "W9", "", "Attention Is All You Need", 2017), "test")
	if err != nil {
		t.Fatal(err)
	}
	// No shared DOI or source id, same normalized title and year.
	second, err := r.Resolve(ctx, bundle("semantic_scholar", "s2-1", "", "  attention is ALL you need! ", 2017), "test")
	if err != nil {
		t.Fatal(err)
	}
	if second.PaperID != first.PaperID {
		t.Errorf("resolved to %s, want %s", second.PaperID, first.PaperID)
	}
	if second.MatchedOn != types.MatchTitleYear {
		t.Errorf("matched_on = %s, want title_year", second.MatchedOn)
	}

	// A different year is a different entry.
	third, err := r.Resolve(ctx, bundle("semantic_scholar", "s2-2", "", "Attention Is All You Need", 2018), "test")
	if err != nil {
		t.Fatal(err)
	}
	if third.PaperID == first.PaperID {
		t.Error("title match ignored the year")
	}
}

func TestResolveLaterDOIEnrichesWithoutRematch(t *testing.T) {
	r, st := testResolver(t, "")
	ctx := context.Background()

	// First sighted without a DOI, matched later by title+year from a
	// record that carries one.
	first, err := r.Resolve(ctx, bundle("arxiv", "2301.1", "", "Some Paper", 2023), "test")
	if err != nil {
		t.Fatal(err)
	}
	withDOI := bundle("semantic_scholar", "s2-9", "10.5/z", "Some Paper", 2023)
	second, err := r.Resolve(ctx, withDOI, "test")
	if err != nil {
		t.Fatal(err)
	}
	if second.PaperID != first.PaperID || second.MatchedOn != types.MatchTitleYear {
		t.Fatalf("got %+v", second)
	}

	p, err := st.GetPaper(ctx, first.PaperID)
	if err != nil {
		t.Fatal(err)
	}
	if p.DOI != "10.5/z" {
		t.Errorf("DOI not adopted through enrichment: %q", p.DOI)
	}

	// The adopted DOI now matches directly.
	third, err := r.Resolve(ctx, bundle("openalex", "W5", "10.5/z", "Renamed Preprint", 2024), "test")
	if err != nil {
		t.Fatal(err)
	}
	if third.PaperID != first.PaperID || third.MatchedOn != types.MatchDOI {
		t.Errorf("got %+v, want doi match to %s", third, first.PaperID)
	}
}

func TestResolveManyOrderIndependent(t *testing.T) {
	ctx := context.Background()
	bundles := []types.NormalizedBundle{
		bundle("openalex", "W1", "10.1/a", "X", 2021),
		bundle("arxiv", "2101.1", "10.1/a", "X (dup)", 2021),
		bundle("openalex", "W2", "", "Y", 2020),
	}
	reversed := []types.NormalizedBundle{bundles[2], bundles[1], bundles[0]}

	r1, st1 := testResolver(t, "")
	if _, err := r1.ResolveMany(ctx, bundles, "test"); err != nil {
		t.Fatal(err)
	}
	r2, st2 := testResolver(t, "")
	if _, err := r2.ResolveMany(ctx, reversed, "test"); err != nil {
		t.Fatal(err)
	}

	k1, err := st1.LoadPaperKeys(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	k2, err := st2.LoadPaperKeys(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(k1) != 2 || len(k2) != 2 {
		t.Errorf("entry counts differ by order: %d vs %d", len(k1), len(k2))
	}
}

func TestResolveScopesAreIsolated(t *testing.T) {
	st, err := store.Open(types.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	global, err := New(ctx, st, logging.Nop(), "")
	if err != nil {
		t.Fatal(err)
	}
	tenant, err := New(ctx, st, logging.Nop(), "org-1")
	if err != nil {
		t.Fatal(err)
	}

	g, err := global.Resolve(ctx, bundle("openalex", "W1", "10.1/a", "X", 2021), "test")
	if err != nil {
		t.Fatal(err)
	}
	o, err := tenant.Resolve(ctx, bundle("openalex", "W1", "10.1/a", "X", 2021), "test")
	if err != nil {
		t.Fatal(err)
	}
	if !g.Created || !o.Created {
		t.Error("the same identity in different scopes should create twice")
	}
	if g.PaperID == o.PaperID {
		t.Error("scopes shared a catalog entry")
	}
}
