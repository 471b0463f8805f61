// Package service ties passage lookup, study generation and reading
// history together. The CLI and the MCP tools both go through it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/scribby/internal/db"
	"github.com/hazyhaar/scribby/internal/llm"
	"github.com/hazyhaar/scribby/internal/study"
)

var ErrInvalidInput = errors.New("invalid input")

// PassageFetcher resolves a reference to passage text.
type PassageFetcher interface {
	Fetch(ctx context.Context, reference string) (string, error)
}

// HistoryStore records generated studies.
type HistoryStore interface {
	SaveHistory(ctx context.Context, e *db.HistoryEntry) error
	ListHistory(ctx context.Context, limit int) ([]db.HistoryEntry, error)
}

type Service struct {
	Router   *llm.Router
	Passages PassageFetcher
	History  HistoryStore
	Logger   *slog.Logger
}

// GenerateInput names a passage either by Reference or by Book and Chapter
// with optional verse bounds. PassageText skips the passage lookup.
type GenerateInput struct {
	Reference   string `json:"reference,omitempty"`
	Book        string `json:"book,omitempty"`
	Chapter     int    `json:"chapter,omitempty"`
	StartVerse  int    `json:"start_verse,omitempty"`
	EndVerse    int    `json:"end_verse,omitempty"`
	PassageText string `json:"passage_text,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
}

type GenerateResult struct {
	Reference   string         `json:"reference"`
	PassageText string         `json:"passage_text"`
	Provider    string         `json:"provider"`
	Study       study.Document `json:"study"`
}

func (in GenerateInput) reference() (string, error) {
	if ref := study.NormalizeReference(in.Reference); ref != "" {
		return ref, nil
	}
	book := strings.TrimSpace(in.Book)
	if book == "" || in.Chapter < 1 {
		return "", fmt.Errorf("%w: reference or book and chapter required", ErrInvalidInput)
	}
	if in.StartVerse < 0 || in.EndVerse < 0 || (in.EndVerse > 0 && in.EndVerse < in.StartVerse) {
		return "", fmt.Errorf("%w: invalid verse range", ErrInvalidInput)
	}
	return study.FormatReference(book, in.Chapter, in.StartVerse, in.EndVerse), nil
}

// Generate produces a study for one passage. Provider failures come back
// as an error document with Provider set to llm.SourceError, not as an
// error. Only bad input and passage lookup failures return errors.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	ref, err := in.reference()
	if err != nil {
		return nil, err
	}

	text := in.PassageText
	if text == "" {
		if s.Passages == nil {
			return nil, fmt.Errorf("%w: passage_text required when no passage source is configured", ErrInvalidInput)
		}
		text, err = s.Passages.Fetch(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("fetching passage %s: %w", ref, err)
		}
	}

	doc, source := s.Router.GenerateStudy(ctx, study.Request{
		Reference:  ref,
		SourceText: text,
		Provider:   in.Provider,
		Model:      in.Model,
	})

	if s.History != nil {
		entry := &db.HistoryEntry{
			Book:      strings.TrimSpace(in.Book),
			Chapter:   in.Chapter,
			Reference: ref,
			Provider:  source,
		}
		if in.StartVerse > 0 {
			v := in.StartVerse
			entry.StartVerse = &v
		}
		if in.EndVerse > 0 {
			v := in.EndVerse
			entry.EndVerse = &v
		}
		if err := s.History.SaveHistory(ctx, entry); err != nil {
			s.logger().Warn("saving history failed", "reference", ref, "error", err)
		}
	}

	return &GenerateResult{Reference: ref, PassageText: text, Provider: source, Study: doc}, nil
}

// CompleteResult is the outcome of a free-form completion.
type CompleteResult struct {
	Provider string `json:"provider"`
	Text     string `json:"text"`
}

func (s *Service) Complete(ctx context.Context, prompt, provider, model string) (*CompleteResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidInput)
	}
	text, name, err := s.Router.CompletePrompt(ctx, prompt, provider, model)
	if err != nil {
		return nil, err
	}
	return &CompleteResult{Provider: name, Text: text}, nil
}

func (s *Service) RecentHistory(ctx context.Context, limit int) ([]db.HistoryEntry, error) {
	if s.History == nil {
		return nil, nil
	}
	return s.History.ListHistory(ctx, limit)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
