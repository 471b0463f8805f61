package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/scribby/internal/study"
)

// StudyStore is the SQLite study cache. The zero MaxAge keeps entries
// forever.
type StudyStore struct {
	db     *DB
	MaxAge time.Duration
}

func (db *DB) Studies(maxAge time.Duration) *StudyStore {
	return &StudyStore{db: db, MaxAge: maxAge}
}

// GetStudy returns the cached study for a normalized reference.
func (s *StudyStore) GetStudy(ctx context.Context, reference string) (study.Document, bool, error) {
	var raw string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT study_content, CAST(strftime('%s', created_at) AS INTEGER) FROM cached_studies WHERE reference = ?`,
		reference).Scan(&raw, &created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("reading cached study: %w", err)
	}
	if s.MaxAge > 0 && time.Since(time.Unix(created, 0)) > s.MaxAge {
		return nil, false, nil
	}
	doc, err := study.Decode([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// PutStudy stores a study, replacing any previous one for the reference.
func (s *StudyStore) PutStudy(ctx context.Context, reference string, doc study.Document, provider string) error {
	raw, err := study.Encode(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cached_studies (reference, study_content, provider, created_at)
		VALUES (?, ?, ?, datetime('now'))`, reference, string(raw), provider)
	if err != nil {
		return fmt.Errorf("caching study: %w", err)
	}
	return nil
}
