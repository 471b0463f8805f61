package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pkg/idgen"
)

const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	action TEXT NOT NULL,
	transport TEXT NOT NULL DEFAULT 'cli',
	request_id TEXT,
	parameters TEXT,
	result TEXT,
	error_message TEXT,
	duration_ms INTEGER,
	status TEXT NOT NULL DEFAULT 'success'
);
CREATE INDEX IF NOT EXISTS idx_audit_log_time ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
`

const (
	queueSize   = 256
	maxBatch    = 32
	flushEvery  = 500 * time.Millisecond
	insertAudit = `INSERT INTO audit_log (entry_id, timestamp, action, transport, request_id,
		parameters, result, error_message, duration_ms, status)
		VALUES (?,?,?,?,?,?,?,?,?,?)`
)

// SQLiteLogger queues entries and writes them in batches from a single
// goroutine, so tool calls never wait on the database.
type SQLiteLogger struct {
	db      *sql.DB
	logger  *slog.Logger
	queue   chan *Entry
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewSQLiteLogger(sqlDB *sql.DB, logger *slog.Logger) *SQLiteLogger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &SQLiteLogger{
		db:      sqlDB,
		logger:  logger.With("component", "audit"),
		queue:   make(chan *Entry, queueSize),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *SQLiteLogger) Init() error {
	_, err := l.db.Exec(Schema)
	return err
}

// Log writes entry synchronously.
func (l *SQLiteLogger) Log(ctx context.Context, entry *Entry) error {
	fillDefaults(entry)
	_, err := l.db.ExecContext(ctx, insertAudit, entry.values()...)
	return err
}

func (l *SQLiteLogger) LogAsync(entry *Entry) {
	fillDefaults(entry)
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logger.Warn("audit logger closed, dropping entry", "action", entry.Action)
		return
	}
	select {
	case l.queue <- entry:
	default:
		l.logger.Warn("audit queue full, dropping entry", "action", entry.Action)
	}
}

// Close drains the queue. Safe to call more than once, and concurrently
// with LogAsync.
func (l *SQLiteLogger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.stopped
	return nil
}

func (e *Entry) values() []any {
	return []any{e.EntryID, e.Timestamp, e.Action, e.Transport, e.RequestID,
		e.Parameters, e.Result, e.Error, e.DurationMs, e.Status}
}

func fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = "aud_" + idgen.New()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	if e.Transport == "" {
		e.Transport = TransportCLI
	}
	if e.Status != "" {
		return
	}
	e.Status = "success"
	if e.Error != "" {
		e.Status = "error"
	}
}

func (l *SQLiteLogger) run() {
	defer close(l.stopped)
	var pending []*Entry
	timer := time.NewTimer(flushEvery)
	defer timer.Stop()

	for {
		select {
		case e, ok := <-l.queue:
			if !ok {
				l.write(pending)
				return
			}
			if pending = append(pending, e); len(pending) >= maxBatch {
				l.write(pending)
				pending = nil
			}
		case <-timer.C:
			l.write(pending)
			pending = nil
			timer.Reset(flushEvery)
		}
	}
}

// write inserts a batch in one transaction.
func (l *SQLiteLogger) write(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	tx, err := l.db.Begin()
	if err != nil {
		l.logger.Error("audit write failed", "error", err, "entries", len(batch))
		return
	}
	for _, e := range batch {
		if _, err := tx.Exec(insertAudit, e.values()...); err != nil {
			l.logger.Error("audit write failed", "error", err, "action", e.Action)
		}
	}
	if err := tx.Commit(); err != nil {
		l.logger.Error("audit commit failed", "error", err, "entries", len(batch))
	}
}
