package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/scribby/pkg/trace"
)

func openLogger(t *testing.T) (*SQLiteLogger, *sql.DB) {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	l := NewSQLiteLogger(sqlDB, nil)
	require.NoError(t, l.Init())
	return l, sqlDB
}

func TestMiddlewareLogsSuccessAndError(t *testing.T) {
	l, sqlDB := openLogger(t)

	ok := Middleware(l, "provider_status", TransportMCPStdio)(func(ctx context.Context, req any) (any, error) {
		assert.NotEmpty(t, trace.ID(ctx))
		return map[string]bool{"groq": true}, nil
	})
	failing := Middleware(l, "generate_study", TransportMCPStdio)(func(ctx context.Context, req any) (any, error) {
		return nil, errors.New("boom")
	})

	ctx := trace.WithID(context.Background(), "req-1")
	_, err := ok(ctx, map[string]string{"q": "x"})
	require.NoError(t, err)
	_, err = failing(context.Background(), nil)
	require.EqualError(t, err, "boom")

	require.NoError(t, l.Close())

	var status, requestID, transport, result string
	require.NoError(t, sqlDB.QueryRow(
		`SELECT status, request_id, transport, result FROM audit_log WHERE action = 'provider_status'`,
	).Scan(&status, &requestID, &transport, &result))
	assert.Equal(t, "success", status)
	assert.Equal(t, "req-1", requestID)
	assert.Equal(t, TransportMCPStdio, transport)
	assert.JSONEq(t, `{"groq":true}`, result)

	var errMsg string
	require.NoError(t, sqlDB.QueryRow(
		`SELECT status, error_message FROM audit_log WHERE action = 'generate_study'`,
	).Scan(&status, &errMsg))
	assert.Equal(t, "error", status)
	assert.Equal(t, "boom", errMsg)
}

func TestLogFillsDefaults(t *testing.T) {
	l, sqlDB := openLogger(t)
	defer l.Close()

	e := &Entry{Action: "study_history"}
	require.NoError(t, l.Log(context.Background(), e))
	assert.Contains(t, e.EntryID, "aud_")
	assert.Equal(t, TransportCLI, e.Transport)
	assert.Equal(t, "success", e.Status)
	assert.NotZero(t, e.Timestamp)

	var n int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestClipLongResult(t *testing.T) {
	long := make([]byte, resultLimit+10)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, clip(string(long)), resultLimit+3)
	assert.Equal(t, "short", clip("short"))
}

func TestLogAsyncAfterCloseIsDropped(t *testing.T) {
	l, sqlDB := openLogger(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			l.LogAsync(&Entry{Action: "generate_study"})
		}
	}()
	require.NoError(t, l.Close())
	<-done

	assert.NotPanics(t, func() { l.LogAsync(&Entry{Action: "late"}) })
	require.NoError(t, l.Close())

	var n int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE action = 'late'`).Scan(&n))
	assert.Zero(t, n)
}
