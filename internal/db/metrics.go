package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// MetricsDB wraps the metrics.db SQLite database: one row per LLM call.
type MetricsDB struct {
	*sql.DB
	logger *slog.Logger
}

func OpenMetrics(path string, logger *slog.Logger) (*MetricsDB, error) {
	sqlDB, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	db := &MetricsDB{DB: sqlDB, logger: logger.With("component", "metrics")}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating metrics database: %w", err)
	}
	return db, nil
}

func (db *MetricsDB) migrate() error {
	_, err := db.Exec(metricsSchema)
	return err
}

const metricsSchema = `
CREATE TABLE IF NOT EXISTS llm_calls (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    provider    TEXT NOT NULL,
    model       TEXT NOT NULL,
    tokens_in   INTEGER,
    tokens_out  INTEGER,
    latency_ms  INTEGER NOT NULL,
    success     INTEGER NOT NULL DEFAULT 1,
    error       TEXT,
    timestamp   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_llm_calls_ts ON llm_calls(timestamp);
CREATE INDEX IF NOT EXISTS idx_llm_calls_provider ON llm_calls(provider);
`

// RecordLLMCall logs an LLM provider call metric. Insert failures are
// logged, not returned.
func (db *MetricsDB) RecordLLMCall(provider, model string, tokensIn, tokensOut, latencyMs int, success bool, errMsg string) {
	s := 1
	if !success {
		s = 0
	}
	_, err := db.Exec(`INSERT INTO llm_calls (provider, model, tokens_in, tokens_out, latency_ms, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, provider, model, tokensIn, tokensOut, latencyMs, s, errMsg)
	if err != nil {
		db.logger.Warn("recording llm call", "provider", provider, "error", err)
	}
}

// ProviderStats aggregates llm_calls for one provider.
type ProviderStats struct {
	Provider     string  `json:"provider"`
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	TokensOut    int     `json:"tokens_out"`
}

// ProviderStats summarises calls made since the given time, busiest first.
func (db *MetricsDB) ProviderStats(since time.Time) ([]ProviderStats, error) {
	rows, err := db.Query(`SELECT provider, COUNT(*), SUM(1 - success), AVG(latency_ms), COALESCE(SUM(tokens_out), 0)
		FROM llm_calls WHERE timestamp >= ? GROUP BY provider ORDER BY COUNT(*) DESC, provider`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying provider stats: %w", err)
	}
	defer rows.Close()

	var out []ProviderStats
	for rows.Next() {
		var st ProviderStats
		if err := rows.Scan(&st.Provider, &st.Calls, &st.Failures, &st.AvgLatencyMs, &st.TokensOut); err != nil {
			return nil, fmt.Errorf("scanning provider stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
