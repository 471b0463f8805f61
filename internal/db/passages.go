package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetPassage returns the cached passage text for a reference.
func (db *DB) GetPassage(ctx context.Context, reference string) (string, bool, error) {
	var text string
	err := db.QueryRowContext(ctx, `SELECT text FROM cached_passages WHERE reference = ?`, reference).Scan(&text)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("reading cached passage: %w", err)
	}
	return text, true, nil
}

// PutPassage caches passage text, replacing any previous entry.
func (db *DB) PutPassage(ctx context.Context, reference, text string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cached_passages (reference, text, created_at) VALUES (?, ?, datetime('now'))`,
		reference, text)
	if err != nil {
		return fmt.Errorf("caching passage: %w", err)
	}
	return nil
}
