// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve matches normalized records against the catalog and
// creates entries for first sightings. Matching rules fire in priority
// order: DOI, then (scope, source, source record id), then normalized
// title plus publication year. The first sighting of an identity wins;
// later sightings enrich the existing entry without re-resolving it.
package resolve

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/normalize"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// Resolution is the outcome for one bundle.
type Resolution struct {
	PaperID   string
	Created   bool
	MatchedOn types.MatchKey
}

// Resolver holds a per-scope snapshot of catalog identity keys. It is
// built once per batch and not safe for concurrent use; callers run one
// resolver per ingest run.
type Resolver struct {
	store *store.Store
	log   *logging.Logger
	scope string

	byDOI       map[string]string // doi -> paper id
	bySourceID  map[string]string // source \x00 source record id -> paper id
	byTitleYear map[string]string // title_norm \x00 year -> paper id
}

// New snapshots the identity keys of every catalog entry in scope so a
// whole batch resolves against one consistent view, independent of the
// order records arrive in.
func New(ctx context.Context, st *store.Store, log *logging.Logger, scope string) (*Resolver, error) {
	keys, err := st.LoadPaperKeys(ctx, scope)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		store:       st,
		log:         log,
		scope:       scope,
		byDOI:       make(map[string]string, len(keys)),
		bySourceID:  make(map[string]string, len(keys)),
		byTitleYear: make(map[string]string, len(keys)),
	}
	for _, k := range keys {
		r.index(k)
	}
	return r, nil
}

func (r *Resolver) index(k store.PaperKey) {
	// First sighting wins: never displace an existing index entry, so
	// the earliest-created catalog row keeps owning its identity keys.
	// Stored DOIs may predate normalization, so the map key is always
	// the normalized form.
	if doi := normalize.NormalizeDOI(k.DOI); doi != "" {
		if _, ok := r.byDOI[doi]; !ok {
			r.byDOI[doi] = k.ID
		}
	}
	if k.SourceID != "" {
		key := sourceKey(k.Source, k.SourceID)
		if _, ok := r.bySourceID[key]; !ok {
			r.bySourceID[key] = k.ID
		}
	}
	if k.TitleNorm != "" && k.PubYear != 0 {
		key := titleYearKey(k.TitleNorm, k.PubYear)
		if _, ok := r.byTitleYear[key]; !ok {
			r.byTitleYear[key] = k.ID
		}
	}
}

func sourceKey(source, id string) string {
	return source + "\x00" + id
}

func titleYearKey(titleNorm string, year int) string {
	return fmt.Sprintf("%s\x00%d", titleNorm, year)
}

// Resolve matches one bundle against the snapshot. On a match the
// existing entry is enriched in place; on a miss a new entry is created
// and its identity keys join the snapshot so later bundles in the same
// batch resolve to it.
func (r *Resolver) Resolve(ctx context.Context, b types.NormalizedBundle, createdBy string) (Resolution, error) {
	titleNorm := normalize.NormalizeTitle(b.Title)
	year := 0
	if !b.Published.IsZero() {
		year = b.Published.Year()
	}

	if id, key := r.match(b, titleNorm, year); id != "" {
		if err := r.store.EnrichPaper(ctx, id, b); err != nil {
			return Resolution{}, fmt.Errorf("enriching paper %s: %w", id, err)
		}
		// A matched bundle may carry identity keys the entry lacked;
		// index them so the rest of the batch converges on the same id.
		r.adopt(id, b, titleNorm, year)
		r.log.Debug("resolved to existing paper", "paper_id", id, "matched_on", key, "source", b.Source)
		return Resolution{PaperID: id, MatchedOn: key}, nil
	}

	p := types.Paper{
		ID:             uuid.NewString(),
		Scope:          r.scope,
		Title:          b.Title,
		Abstract:       b.Abstract,
		DOI:            b.DOI,
		Source:         b.Source,
		SourceRecordID: b.SourceRecordID,
		Published:      b.Published,
		CitationCount:  b.CitationCount,
		ReferenceCount: b.ReferenceCount,
		CreatedBy:      createdBy,
	}
	if err := r.store.InsertPaper(ctx, p, titleNorm); err != nil {
		return Resolution{}, err
	}
	r.adopt(p.ID, b, titleNorm, year)
	r.log.Debug("created paper", "paper_id", p.ID, "source", b.Source, "source_record_id", b.SourceRecordID)
	return Resolution{PaperID: p.ID, Created: true, MatchedOn: types.MatchNone}, nil
}

func (r *Resolver) match(b types.NormalizedBundle, titleNorm string, year int) (string, types.MatchKey) {
	if doi := normalize.NormalizeDOI(b.DOI); doi != "" {
		if id, ok := r.byDOI[doi]; ok {
			return id, types.MatchDOI
		}
	}
	if b.SourceRecordID != "" {
		if id, ok := r.bySourceID[sourceKey(b.Source, b.SourceRecordID)]; ok {
			return id, types.MatchSourceID
		}
	}
	if titleNorm != "" && year != 0 {
		if id, ok := r.byTitleYear[titleYearKey(titleNorm, year)]; ok {
			return id, types.MatchTitleYear
		}
	}
	return "", types.MatchNone
}

func (r *Resolver) adopt(id string, b types.NormalizedBundle, titleNorm string, year int) {
	if doi := normalize.NormalizeDOI(b.DOI); doi != "" {
		if _, ok := r.byDOI[doi]; !ok {
			r.byDOI[doi] = id
		}
	}
	if b.SourceRecordID != "" {
		key := sourceKey(b.Source, b.SourceRecordID)
		if _, ok := r.bySourceID[key]; !ok {
			r.bySourceID[key] = id
		}
	}
	if titleNorm != "" && year != 0 {
		key := titleYearKey(titleNorm, year)
		if _, ok := r.byTitleYear[key]; !ok {
			r.byTitleYear[key] = id
		}
	}
}

// ResolveMany resolves a batch in order against the shared snapshot.
// Because every creation feeds the snapshot, the outcome set is the
// same regardless of how the batch was ordered, apart from which record
// performed each creation.
func (r *Resolver) ResolveMany(ctx context.Context, bundles []types.NormalizedBundle, createdBy string) ([]Resolution, error) {
	out := make([]Resolution, 0, len(bundles))
	for _, b := range bundles {
		res, err := r.Resolve(ctx, b, createdBy)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}
