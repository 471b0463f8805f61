// Package trace records every provider attempt the router makes, with
// async persistence to an attempt_traces table.
//
// One trace id ties together the attempts of a single request:
//
//	ctx = trace.Ensure(ctx)
//	store.Record(ctx, "generate_study", "groq", "llama-3.3-70b-versatile", d, err)
package trace

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pkg/idgen"
)

type ctxKey struct{}

// WithID returns a context carrying the given trace id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID returns the trace id in ctx, or "".
func ID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure returns ctx unchanged when it already carries a trace id, and a
// child context with a fresh one otherwise.
func Ensure(ctx context.Context) context.Context {
	if ID(ctx) != "" {
		return ctx
	}
	return WithID(ctx, idgen.New())
}

// Entry is a single attempt record.
type Entry struct {
	TraceID    string
	Op         string // "generate_study" or "complete_prompt"
	Provider   string
	Model      string
	Outcome    string // "ok" or "error"
	DurationUs int64
	Error      string
	Timestamp  int64 // unix microseconds
}

// Store persists attempt entries asynchronously.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	ch     chan *Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

const Schema = `
CREATE TABLE IF NOT EXISTS attempt_traces (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	op TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	outcome TEXT NOT NULL,
	duration_us INTEGER NOT NULL,
	error TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempt_traces_ts ON attempt_traces(timestamp);
CREATE INDEX IF NOT EXISTS idx_attempt_traces_tid ON attempt_traces(trace_id) WHERE trace_id != '';
CREATE INDEX IF NOT EXISTS idx_attempt_traces_provider ON attempt_traces(provider, outcome);
`

const (
	bufferSize    = 1024
	batchSize     = 64
	flushInterval = time.Second
)

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:     db,
		logger: logger.With("component", "trace"),
		ch:     make(chan *Entry, bufferSize),
		done:   make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// Record logs one provider attempt with timing and optional error.
func (s *Store) Record(ctx context.Context, op, provider, model string, d time.Duration, err error) {
	traceID := ID(ctx)

	level := slog.LevelDebug
	outcome := "ok"
	errMsg := ""
	if err != nil {
		level = slog.LevelWarn
		outcome = "error"
		errMsg = err.Error()
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("provider", provider),
		slog.String("model", model),
		slog.String("outcome", outcome),
		slog.Duration("duration", d),
	}
	if traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", errMsg))
	}
	s.logger.LogAttrs(ctx, level, "provider attempt", attrs...)

	s.recordAsync(&Entry{
		TraceID:    traceID,
		Op:         op,
		Provider:   provider,
		Model:      model,
		Outcome:    outcome,
		DurationUs: d.Microseconds(),
		Error:      errMsg,
		Timestamp:  time.Now().UnixMicro(),
	})
}

func (s *Store) recordAsync(e *Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		// buffer full: drop rather than slow the router down
	}
}

// Close flushes pending entries and stops the writer. Entries recorded
// after Close are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)
	batch := make([]*Entry, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("begin tx", "error", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO attempt_traces
		(trace_id, op, provider, model, outcome, duration_us, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		s.logger.Error("prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.TraceID, e.Op, e.Provider, e.Model, e.Outcome, e.DurationUs, e.Error, e.Timestamp); err != nil {
			s.logger.Error("insert", "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("commit", "error", err)
	}
}
