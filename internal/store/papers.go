// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// PaperKey is the subset of identity fields the resolver preloads to
// match bundles against existing catalog entries.
type PaperKey struct {
	ID        string
	Scope     string
	DOI       string
	Source    string
	SourceID  string
	TitleNorm string
	PubYear   int
	CreatedAt string
}

const paperCols = `id, scope, title, abstract, doi, source, source_record_id,
	published, citation_count, reference_count, has_embedding, embedding,
	created_by, created_at, updated_at`

func scanPaper(row interface{ Scan(...any) error }) (types.Paper, error) {
	var p types.Paper
	var doi, sourceID, published sql.NullString
	var hasEmb int
	var emb []byte
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Scope, &p.Title, &p.Abstract, &doi, &p.Source, &sourceID,
		&published, &p.CitationCount, &p.ReferenceCount, &hasEmb, &emb,
		&p.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return types.Paper{}, err
	}

	p.DOI = doi.String
	p.SourceRecordID = sourceID.String
	p.Published = parseTime(published.String)
	p.HasEmbedding = hasEmb != 0
	if len(emb) > 0 {
		if err := json.Unmarshal(emb, &p.Embedding); err != nil {
			return types.Paper{}, fmt.Errorf("decoding embedding: %w", err)
		}
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// InsertPaper writes a new catalog entry. title_norm and pub_year are
// derived columns used by the title+year resolution rule.
func (s *Store) InsertPaper(ctx context.Context, p types.Paper, titleNorm string) error {
	created := now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers
			(id, scope, title, title_norm, abstract, doi, source, source_record_id,
			 published, pub_year, citation_count, reference_count, created_by,
			 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Scope, p.Title, titleNorm, p.Abstract, nullable(p.DOI),
		p.Source, nullable(p.SourceRecordID), fmtTime(p.Published), p.Year(),
		p.CitationCount, p.ReferenceCount, p.CreatedBy,
		fmtTime(created), fmtTime(created),
	)
	if err != nil {
		return fmt.Errorf("inserting paper %s: %w", p.ID, err)
	}
	return nil
}

// GetPaper loads one catalog entry by id.
func (s *Store) GetPaper(ctx context.Context, id string) (types.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperCols+` FROM papers WHERE id = ?`, id)
	p, err := scanPaper(row)
	if err == sql.ErrNoRows {
		return types.Paper{}, fmt.Errorf("paper %s not found", id)
	}
	if err != nil {
		return types.Paper{}, fmt.Errorf("loading paper %s: %w", id, err)
	}
	return p, nil
}

// LoadPaperKeys preloads the identity fields of every catalog entry in
// scope. The resolver matches an entire batch against this snapshot so
// batch resolution is order-independent.
func (s *Store) LoadPaperKeys(ctx context.Context, scope string) ([]PaperKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, COALESCE(doi, ''), source, COALESCE(source_record_id, ''),
			title_norm, pub_year, created_at
		 FROM papers WHERE scope = ?`, scope)
	if err != nil {
		return nil, fmt.Errorf("loading paper keys: %w", err)
	}
	defer rows.Close()

	var keys []PaperKey
	for rows.Next() {
		var k PaperKey
		if err := rows.Scan(&k.ID, &k.Scope, &k.DOI, &k.Source, &k.SourceID,
			&k.TitleNorm, &k.PubYear, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning paper key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// EnrichPaper fills previously-absent fields on an existing entry.
// Identity fields already set are never overwritten: a later DOI only
// lands when the stored DOI is null, and abstract/date/counts only
// replace empty values.
func (s *Store) EnrichPaper(ctx context.Context, id string, b types.NormalizedBundle) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE papers SET
			doi = CASE WHEN doi IS NULL OR doi = '' THEN ? ELSE doi END,
			abstract = CASE WHEN abstract = '' THEN ? ELSE abstract END,
			published = CASE WHEN published IS NULL OR published = '' THEN ? ELSE published END,
			pub_year = CASE WHEN pub_year = 0 THEN ? ELSE pub_year END,
			citation_count = CASE WHEN citation_count = 0 THEN ? ELSE citation_count END,
			reference_count = CASE WHEN reference_count = 0 THEN ? ELSE reference_count END,
			updated_at = ?
		 WHERE id = ?`,
		nullable(b.DOI), b.Abstract, fmtTime(b.Published), bundleYear(b),
		b.CitationCount, b.ReferenceCount, fmtTime(now()), id,
	)
	if err != nil {
		return fmt.Errorf("enriching paper %s: %w", id, err)
	}
	return nil
}

// ListPapersNeedingScores returns ids of in-scope entries missing at
// least one of the given scoring dimensions, ordered by creation time
// for stable checkpointed iteration.
func (s *Store) ListPapersNeedingScores(ctx context.Context, scope string, dimensions []string) ([]string, error) {
	if len(dimensions) == 0 {
		return nil, fmt.Errorf("no scoring dimensions configured")
	}
	placeholders := strings.Repeat("?,", len(dimensions))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{scope}
	for _, d := range dimensions {
		args = append(args, d)
	}
	args = append(args, len(dimensions))

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id FROM papers p
		 WHERE p.scope = ?
		   AND (SELECT count(*) FROM paper_scores ps
				WHERE ps.paper_id = p.id AND ps.dimension IN (`+placeholders+`)) < ?
		 ORDER BY p.created_at, p.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing papers needing scores: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning paper id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPapersWithoutEmbedding returns in-scope entries lacking an
// embedding, ordered for stable checkpointed iteration.
func (s *Store) ListPapersWithoutEmbedding(ctx context.Context, scope string) ([]types.Paper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paperCols+` FROM papers
		 WHERE scope = ? AND has_embedding = 0
		 ORDER BY created_at, id`, scope)
	if err != nil {
		return nil, fmt.Errorf("listing papers without embedding: %w", err)
	}
	defer rows.Close()

	var papers []types.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// SetEmbedding stores the vector for one entry and flips the presence flag.
func (s *Store) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE papers SET embedding = ?, has_embedding = 1, updated_at = ? WHERE id = ?`,
		data, fmtTime(now()), id,
	)
	if err != nil {
		return fmt.Errorf("storing embedding for %s: %w", id, err)
	}
	return nil
}

// UpsertPaperScores writes per-dimension scores, replacing a previous
// score for the same (paper, dimension).
func (s *Store) UpsertPaperScores(ctx context.Context, paperID string, scores []types.DimensionScore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO paper_scores (paper_id, dimension, score, confidence, scored_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(paper_id, dimension) DO UPDATE SET
			score=excluded.score, confidence=excluded.confidence, scored_at=excluded.scored_at`)
	if err != nil {
		return fmt.Errorf("preparing score upsert: %w", err)
	}
	defer stmt.Close()

	ts := fmtTime(now())
	for _, sc := range scores {
		if _, err := stmt.ExecContext(ctx, paperID, sc.Dimension, sc.Score, sc.Confidence, ts); err != nil {
			return fmt.Errorf("upserting score %s/%s: %w", paperID, sc.Dimension, err)
		}
	}
	return tx.Commit()
}

// AddTag attaches a tag to an entry, ignoring duplicates.
func (s *Store) AddTag(ctx context.Context, paperID, tag string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO paper_tags (paper_id, tag, created_at) VALUES (?, ?, ?)`,
		paperID, tag, fmtTime(now()),
	)
	if err != nil {
		return fmt.Errorf("tagging paper %s: %w", paperID, err)
	}
	return nil
}

// AddNote attaches a free-form note to an entry.
func (s *Store) AddNote(ctx context.Context, paperID, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paper_notes (paper_id, body, created_at) VALUES (?, ?, ?)`,
		paperID, body, fmtTime(now()),
	)
	if err != nil {
		return fmt.Errorf("adding note to paper %s: %w", paperID, err)
	}
	return nil
}

// AddToCollection places an entry in a collection, ignoring duplicates.
func (s *Store) AddToCollection(ctx context.Context, collectionID, paperID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO paper_collections (collection_id, paper_id, added_at) VALUES (?, ?, ?)`,
		collectionID, paperID, fmtTime(now()),
	)
	if err != nil {
		return fmt.Errorf("adding paper %s to collection %s: %w", paperID, collectionID, err)
	}
	return nil
}

// bundleYear returns the bundle's publication year, 0 when unknown.
func bundleYear(b types.NormalizedBundle) int {
	if b.Published.IsZero() {
		return 0
	}
	return b.Published.Year()
}

// nullable maps "" to SQL NULL so the uniqueness semantics of absent
// identifiers stay correct.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
