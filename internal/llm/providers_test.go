package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/scribby/internal/config"
	"github.com/hazyhaar/scribby/internal/study"
)

const studyJSON = `{"purpose": "Know the Word", "key_themes": ["Word"], "study_flow": [], "summary": "s"}`

type callRecord struct {
	provider, model string
	success         bool
	errMsg          string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []callRecord
}

func (f *fakeRecorder) RecordLLMCall(provider, model string, _, _, _ int, success bool, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, callRecord{provider, model, success, errMsg})
}

func claudeServer(t *testing.T, stopReason, text string, status int) (*httptest.Server, *string) {
	t.Helper()
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":       "claude-haiku-4-5-20251001",
			"content":     []map[string]string{{"type": "text", "text": text}},
			"stop_reason": stopReason,
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 20000},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &path
}

func TestClaudeGenerateStudy(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":       "claude-haiku-4-5-20251001",
			"content":     []map[string]string{{"type": "text", "text": "```json\n" + studyJSON + "\n```"}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 30},
		})
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	p := NewClaudeProvider(config.BackendConfig{APIKey: "sk-test", BaseURL: srv.URL}, Options{Recorder: rec})
	doc := p.GenerateStudy(context.Background(), "John 1:1", "In the beginning", "")

	require.False(t, doc.IsError(), doc.Message())
	assert.Equal(t, "Know the Word", doc["purpose"])
	assert.Equal(t, float64(claudeStudyTokens), body["max_tokens"])
	assert.Contains(t, body["system"], "valid JSON")
	require.Len(t, rec.calls, 1)
	assert.Equal(t, callRecord{"claude", "claude-haiku-4-5-20251001", true, ""}, rec.calls[0])
}

func TestClaudeTruncatedButRepairable(t *testing.T) {
	srv, _ := claudeServer(t, "max_tokens", `{"purpose": "Know", "study_flow": [{"section_heading": "Wo`, http.StatusOK)
	p := NewClaudeProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{})

	doc := p.GenerateStudy(context.Background(), "John 1", "text", "")
	require.False(t, doc.IsError(), doc.Message())
	assert.Equal(t, "Know", doc["purpose"])
}

func TestClaudeTruncatedUnrecoverable(t *testing.T) {
	srv, _ := claudeServer(t, "max_tokens", "I will now write the study for you", http.StatusOK)
	p := NewClaudeProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{})

	doc := p.GenerateStudy(context.Background(), "John 1-21", "text", "")
	require.True(t, doc.IsError())
	assert.Contains(t, doc.Message(), "Response truncated (20000 tokens)")
	assert.Contains(t, doc.Message(), "shorter passage")
}

func TestClaudeMalformedOutput(t *testing.T) {
	srv, _ := claudeServer(t, "end_turn", "Sorry, I can't help with that.", http.StatusOK)
	rec := &fakeRecorder{}
	p := NewClaudeProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{Recorder: rec})

	doc := p.GenerateStudy(context.Background(), "John 1", "text", "")
	require.True(t, doc.IsError())
	assert.Contains(t, doc.Message(), "Failed to parse Claude response")

	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].success)
	assert.NotEmpty(t, rec.calls[0].errMsg)
}

func TestClaudeTruncatedUnrecoverableIsRecordedAsFailure(t *testing.T) {
	srv, _ := claudeServer(t, "max_tokens", "I will now write", http.StatusOK)
	rec := &fakeRecorder{}
	p := NewClaudeProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{Recorder: rec})

	require.True(t, p.GenerateStudy(context.Background(), "John 1", "text", "").IsError())
	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].success)
	assert.Contains(t, rec.calls[0].errMsg, ErrTruncated.Error())
}

func TestModelReportedErrorIsNotAStudy(t *testing.T) {
	srv, _ := claudeServer(t, "end_turn", `{"error": "quota exceeded"}`, http.StatusOK)
	rec := &fakeRecorder{}
	p := NewClaudeProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{Recorder: rec})

	cache := newMemCache()
	r := newTestRouter("claude", cache, p)
	doc, name := r.GenerateStudy(context.Background(), study.Request{Reference: "John 1", SourceText: "text"})

	assert.Equal(t, SourceError, name)
	assert.True(t, doc.IsError())
	assert.Contains(t, doc.Message(), "quota exceeded")
	assert.Empty(t, cache.docs)
	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].success)
}

func TestClaudeHTTPErrorBecomesErrorDocument(t *testing.T) {
	srv, _ := claudeServer(t, "", "", http.StatusServiceUnavailable)
	rec := &fakeRecorder{}
	p := NewClaudeProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{Recorder: rec})

	doc := p.GenerateStudy(context.Background(), "John 1", "text", "")
	require.True(t, doc.IsError())
	assert.Contains(t, doc.Message(), "Claude error")
	assert.Contains(t, doc.Message(), "Overloaded")

	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].success)
}

func TestClaudeRateLimitedCompletion(t *testing.T) {
	srv, _ := claudeServer(t, "", "", http.StatusTooManyRequests)
	p := NewClaudeProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{})

	_, err := p.CompletePrompt(context.Background(), "hello", "")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestClaudeCompletePrompt(t *testing.T) {
	srv, seen := claudeServer(t, "end_turn", "  A plain answer.\n", http.StatusOK)
	p := NewClaudeProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL, Model: "claude-x"}, Options{})

	text, err := p.CompletePrompt(context.Background(), "Explain grace", "")
	require.NoError(t, err)
	assert.Equal(t, "A plain answer.", text)
	assert.Equal(t, "/v1/messages", *seen)
}

func TestUnconfiguredProviderMakesNoCall(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits++ }))
	defer srv.Close()

	providers := []Provider{
		NewGroqProvider(config.BackendConfig{BaseURL: srv.URL}, Options{}),
		NewOpenRouterProvider(config.BackendConfig{BaseURL: srv.URL}, Options{}),
		NewGeminiProvider(config.BackendConfig{BaseURL: srv.URL}, Options{}),
		NewClaudeProvider(config.BackendConfig{BaseURL: srv.URL}, Options{}),
	}
	for _, p := range providers {
		assert.False(t, p.IsAvailable(), p.Name())

		doc := p.GenerateStudy(context.Background(), "John 1", "text", "")
		assert.True(t, doc.IsError(), p.Name())
		assert.Contains(t, doc.Message(), "not configured")

		_, err := p.CompletePrompt(context.Background(), "hi", "")
		assert.ErrorIs(t, err, ErrNoAPIKey)
		assert.Equal(t, KindConfiguration, KindOf(err))
	}
	assert.Zero(t, hits)
}

func TestDefaultModels(t *testing.T) {
	reg := NewFromConfig(config.DefaultConfig().LLM, Options{})
	want := map[string]string{
		"groq":       "llama-3.3-70b-versatile",
		"openrouter": "meta-llama/llama-3.2-3b-instruct:free",
		"gemini":     "gemini-2.0-flash",
		"claude":     "claude-haiku-4-5-20251001",
	}
	assert.Equal(t, []string{"groq", "openrouter", "gemini", "claude"}, reg.Names())
	for name, model := range want {
		p, ok := reg.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, model, p.DefaultModel())
	}
	p, ok := reg.Lookup("google")
	require.True(t, ok)
	assert.Equal(t, "gemini", p.Name())
}

func openAIChat(content, finish string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "llama-3.3-70b-versatile",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 34, "total_tokens": 46},
	}
}

func TestOpenRouterGenerateStudy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		assert.Equal(t, "Bible Study Scribby", r.Header.Get("X-Title"))
		assert.NotEmpty(t, r.Header.Get("HTTP-Referer"))
		_ = json.NewEncoder(w).Encode(openAIChat("Here you go:\n"+studyJSON, "stop"))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(config.BackendConfig{APIKey: "or-key", BaseURL: srv.URL + "/"}, Options{})
	doc := p.GenerateStudy(context.Background(), "John 1", "text", "")
	require.False(t, doc.IsError(), doc.Message())
	assert.Equal(t, "Know the Word", doc["purpose"])
}

func TestOpenRouterUpstreamErrorIn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":{"message":"Provider returned error","code":502}}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{})
	_, err := p.CompletePrompt(context.Background(), "hi", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Provider returned error")
}

func TestOpenRouterListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[{"id":"a/b"},{"id":"c/d:free"}]}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{})
	ids, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b", "c/d:free"}, ids)
}

func TestGroqGenerateStudy(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openAIChat(studyJSON, "stop"))
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	p := NewGroqProvider(config.BackendConfig{APIKey: "gsk-test", BaseURL: srv.URL + "/openai/v1"}, Options{Recorder: rec})
	doc := p.GenerateStudy(context.Background(), "John 1", "text", "")

	require.False(t, doc.IsError(), doc.Message())
	assert.Equal(t, "Know the Word", doc["purpose"])
	assert.Equal(t, "llama-3.3-70b-versatile", body["model"])
	assert.Equal(t, float64(defaultStudyTokens), body["max_tokens"])
	require.Len(t, rec.calls, 1)
	assert.True(t, rec.calls[0].success)
}

func TestGroqTruncatedUnrecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openAIChat("The study begins with", "length"))
	}))
	defer srv.Close()

	p := NewGroqProvider(config.BackendConfig{APIKey: "k", BaseURL: srv.URL}, Options{})
	doc := p.GenerateStudy(context.Background(), "Psalm 119", "text", "")
	require.True(t, doc.IsError())
	assert.Contains(t, doc.Message(), "Response truncated")
}

func TestGeminiGenerateStudy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]string{{"text": studyJSON}}},
				"finishReason": "STOP",
			}},
		})
	}))
	defer srv.Close()

	p := NewGeminiProvider(config.BackendConfig{APIKey: "g-key", BaseURL: srv.URL}, Options{})
	doc := p.GenerateStudy(context.Background(), "John 1", "text", "")
	require.False(t, doc.IsError(), doc.Message())
	assert.Equal(t, "Know the Word", doc["purpose"])
}

func TestGeminiListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		_, _ = io.WriteString(w, `{"models":[{"name":"models/gemini-2.0-flash"}]}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider(config.BackendConfig{APIKey: "g-key", BaseURL: srv.URL}, Options{})
	names, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.0-flash"}, names)
}

func TestResponseTruncated(t *testing.T) {
	for reason, want := range map[string]bool{
		"length": true, "max_tokens": true, "MAX_TOKENS": true,
		"stop": false, "end_turn": false, "STOP": false, "": false,
	} {
		assert.Equal(t, want, (&Response{FinishReason: reason}).Truncated(), reason)
	}
}
