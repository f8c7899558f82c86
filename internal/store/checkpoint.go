// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// GetCheckpoint returns the persisted cursor for (source, scopeKey), or
// nil when no checkpoint exists; the caller restarts from the beginning.
func (s *Store) GetCheckpoint(ctx context.Context, source, scopeKey string) (types.Cursor, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM ingest_checkpoints WHERE source = ? AND scope_key = ?`,
		source, scopeKey,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s/%s: %w", source, scopeKey, err)
	}
	return unmarshalCursor(raw)
}

// UpsertCheckpoint replaces the cursor for (source, scopeKey). Last write
// wins; the run record keeps the cursor history for audit.
func (s *Store) UpsertCheckpoint(ctx context.Context, source, scopeKey string, cursor types.Cursor) error {
	raw, err := marshalCursor(cursor)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_checkpoints (source, scope_key, cursor, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(source, scope_key) DO UPDATE SET
			cursor=excluded.cursor, updated_at=excluded.updated_at`,
		source, scopeKey, raw, fmtTime(now()),
	)
	if err != nil {
		return fmt.Errorf("upserting checkpoint %s/%s: %w", source, scopeKey, err)
	}
	return nil
}
