package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HistoryEntry is one generated study in the reading log.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Book       string    `json:"book,omitempty"`
	Chapter    int       `json:"chapter,omitempty"`
	StartVerse *int      `json:"start_verse,omitempty"`
	EndVerse   *int      `json:"end_verse,omitempty"`
	Reference  string    `json:"reference"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveHistory appends an entry; ID is assigned when empty.
func (db *DB) SaveHistory(ctx context.Context, e *HistoryEntry) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO reading_history (id, book, chapter, start_verse, end_verse, reference, provider)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Book, e.Chapter, e.StartVerse, e.EndVerse, e.Reference, e.Provider)
	if err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// ListHistory returns the most recent entries first.
func (db *DB) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, book, chapter, start_verse, end_verse, reference, provider,
			CAST(strftime('%s', created_at) AS INTEGER)
		FROM reading_history ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var start, end sql.NullInt64
		var created int64
		if err := rows.Scan(&e.ID, &e.Book, &e.Chapter, &start, &end, &e.Reference, &e.Provider, &created); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		if start.Valid {
			v := int(start.Int64)
			e.StartVerse = &v
		}
		if end.Valid {
			v := int(end.Int64)
			e.EndVerse = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
