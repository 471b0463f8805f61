package e2e

import (
	"database/sql"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"
)

// DBAssert runs direct queries against the databases a scribby run wrote.
type DBAssert struct {
	mainPath    string
	metricsPath string
}

func NewDBAssert(h *TestHarness) *DBAssert {
	return &DBAssert{mainPath: h.MainDB, metricsPath: h.MetricsDB}
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func countQuery(table, where string) string {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		q += " WHERE " + where
	}
	return q
}

func count(t *testing.T, path, table, where string, args ...any) int {
	t.Helper()
	db, err := open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(countQuery(table, where), args...).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

// Count returns the row count of a table in the main database.
func (d *DBAssert) Count(t *testing.T, table, where string, args ...any) int {
	t.Helper()
	return count(t, d.mainPath, table, where, args...)
}

// CountMetrics returns the row count of a table in the metrics database.
func (d *DBAssert) CountMetrics(t *testing.T, table, where string, args ...any) int {
	t.Helper()
	return count(t, d.metricsPath, table, where, args...)
}

// AssertRowCount fails the test when table does not hold expected rows.
func (d *DBAssert) AssertRowCount(t *testing.T, table, where string, expected int, args ...any) {
	t.Helper()
	if got := d.Count(t, table, where, args...); got != expected {
		t.Errorf("%s: expected %d rows, got %d", countQuery(table, where), expected, got)
	}
}
