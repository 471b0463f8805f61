package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazyhaar/scribby/internal/config"
	"github.com/hazyhaar/scribby/internal/llm"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"k":"v"`)

	buf.Reset()
	l = newLogger(config.LogConfig{Level: "debug"}, &buf)
	assert.True(t, l.Enabled(context.Background(), -4))
	l.Debug("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")
}

func TestAvailableNames(t *testing.T) {
	status := map[string]llm.ProviderStatus{
		"claude": {Available: true},
		"gemini": {},
		"groq":   {Available: true},
	}
	assert.Equal(t, []string{"claude", "groq"}, availableNames([]string{"claude", "gemini", "groq"}, status))
	assert.Equal(t, []string{}, availableNames(nil, status))
}
