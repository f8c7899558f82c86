// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// refTable describes one table holding a foreign reference to papers.
// Tables carrying a secondary uniqueness constraint alongside the paper
// reference need the conflict-safe delete-then-update remap; plain
// foreign keys update directly.
type refTable struct {
	name      string
	fk        string
	secondary string // "" for plain foreign keys
}

// refTables lists the referencing tables the merge walks. A table absent
// from the schema is skipped, keeping the merge compatible with older and
// newer schema versions.
var refTables = []refTable{
	{name: "paper_scores", fk: "paper_id", secondary: "dimension"},
	{name: "paper_tags", fk: "paper_id", secondary: "tag"},
	{name: "paper_collections", fk: "paper_id", secondary: "collection_id"},
	{name: "paper_notes", fk: "paper_id"},
	{name: "source_records", fk: "paper_id"},
}

// MergeCounts reports the writes performed by one merge.
type MergeCounts struct {
	RefsRemapped int
	RefsDeleted  int
	Deleted      int
}

// Add accumulates counts across merges.
func (c *MergeCounts) Add(o MergeCounts) {
	c.RefsRemapped += o.RefsRemapped
	c.RefsDeleted += o.RefsDeleted
	c.Deleted += o.Deleted
}

// CleanEmptyPaperIdentifiers normalizes empty-string DOI and source
// record ids to NULL so grouping does not treat "" as a shared identity.
// Returns the number of rows touched.
func (s *Store) CleanEmptyPaperIdentifiers(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET
			doi = CASE WHEN doi = '' THEN NULL ELSE doi END,
			source_record_id = CASE WHEN source_record_id = '' THEN NULL ELSE source_record_id END
		 WHERE doi = '' OR source_record_id = ''`)
	if err != nil {
		return 0, fmt.Errorf("cleaning empty paper identifiers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clean rows affected: %w", err)
	}
	return n, nil
}

// LoadAllPaperKeys returns identity fields for every catalog row across
// all scopes, ordered by creation time so the earliest row in a duplicate
// group becomes canonical.
func (s *Store) LoadAllPaperKeys(ctx context.Context) ([]PaperKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, COALESCE(doi, ''), source, COALESCE(source_record_id, ''),
			title_norm, pub_year, created_at
		 FROM papers ORDER BY created_at, id`)
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

// MergePapers folds duplicate catalog rows into a canonical row inside
// one transaction: remap every foreign reference (deleting duplicate-side
// rows that would collide with a canonical-side row on the table's
// secondary key), then delete the duplicates.
func (s *Store) MergePapers(ctx context.Context, canonical string, dups []string) (MergeCounts, error) {
	var counts MergeCounts
	if len(dups) == 0 {
		return counts, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("beginning merge transaction: %w", err)
	}
	defer tx.Rollback()

	in := strings.Repeat("?,", len(dups))
	in = in[:len(in)-1]
	dupArgs := make([]any, len(dups))
	for i, d := range dups {
		dupArgs[i] = d
	}

	for _, t := range refTables {
		exists, err := tableExists(ctx, tx, t.name)
		if err != nil {
			return counts, err
		}
		if !exists {
			continue
		}

		if t.secondary != "" {
			// Drop duplicate-side rows whose secondary key already has a
			// canonical-side row, so the remap cannot violate the
			// table's uniqueness constraint.
			args := append([]any{}, dupArgs...)
			args = append(args, canonical)
			res, err := tx.ExecContext(ctx, fmt.Sprintf(
				`DELETE FROM %s WHERE %s IN (%s)
				   AND %s IN (SELECT %s FROM %s WHERE %s = ?)`,
				t.name, t.fk, in, t.secondary, t.secondary, t.name, t.fk), args...)
			if err != nil {
				return counts, fmt.Errorf("deleting colliding %s rows: %w", t.name, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				counts.RefsDeleted += int(n)
			}
		}

		args := append([]any{canonical}, dupArgs...)
		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE %s SET %s = ? WHERE %s IN (%s)`, t.name, t.fk, t.fk, in), args...)
		if err != nil {
			return counts, fmt.Errorf("remapping %s: %w", t.name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			counts.RefsRemapped += int(n)
		}
	}

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM papers WHERE id IN (%s)`, in), dupArgs...)
	if err != nil {
		return counts, fmt.Errorf("deleting duplicate papers: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		counts.Deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return counts, fmt.Errorf("committing merge: %w", err)
	}
	return counts, nil
}

func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}
