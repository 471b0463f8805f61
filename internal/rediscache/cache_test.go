package rediscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/scribby/internal/study"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "scribby:study:John 1:1-18", studyKey("John 1:1-18"))
	assert.Equal(t, "scribby:passage:Psalm 23", passageKey("Psalm 23"))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), "http://not-redis", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing redis url")
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, "redis://127.0.0.1:1/0", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinging redis")
}

// Runs against a live server when SCRIBBY_TEST_REDIS_URL is set.
func TestCacheAgainstRedis(t *testing.T) {
	url := os.Getenv("SCRIBBY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SCRIBBY_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := New(ctx, url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ref := "Test 1:" + time.Now().Format("150405.000000")
	_, ok, err := c.GetStudy(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutStudy(ctx, ref, study.Document{"purpose": "Know", "error": false}, "groq"))
	doc, ok, err := c.GetStudy(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Know", doc["purpose"])

	require.NoError(t, c.PutPassage(ctx, ref, "verse text"))
	text, ok, err := c.GetPassage(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "verse text", text)
}
