// Package llm talks to the hosted model APIs that write Bible studies: one
// Provider per backend, a Registry naming them in fallback order, and a
// Router that serves each request from cache or from the first backend
// that produces a usable study.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/scribby/internal/repair"
	"github.com/hazyhaar/scribby/internal/study"
)

// Token budgets for the two operations.
const (
	studyTemperature      = 0.6
	defaultStudyTokens    = 3000
	defaultCompleteTokens = 2000
)

// Message represents a chat message (system/user/assistant).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	JSON        bool      `json:"json,omitempty"` // ask for a JSON object where the API supports it
}

// Response is a provider-agnostic completion response.
type Response struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Content      string        `json:"content"`
	TokensIn     int           `json:"tokens_in"`
	TokensOut    int           `json:"tokens_out"`
	FinishReason string        `json:"finish_reason"`
	Latency      time.Duration `json:"latency_ms"`
}

// Truncated reports whether generation stopped at the token limit.
func (r *Response) Truncated() bool {
	switch strings.ToLower(r.FinishReason) {
	case "length", "max_tokens":
		return true
	}
	return false
}

// Provider is a single LLM backend. GenerateStudy never fails: problems
// come back as an error document.
type Provider interface {
	// Name returns the registry key ("groq", "claude", ...).
	Name() string
	// DefaultModel is used when a request names no model.
	DefaultModel() string
	// IsAvailable reports whether credentials are configured. It makes no
	// network call.
	IsAvailable() bool
	GenerateStudy(ctx context.Context, reference, sourceText, model string) study.Document
	CompletePrompt(ctx context.Context, prompt, model string) (string, error)
}

// CallRecorder receives one record per outbound call.
type CallRecorder interface {
	RecordLLMCall(provider, model string, tokensIn, tokensOut, latencyMs int, success bool, errMsg string)
}

// Options carries the collaborators shared by every provider.
type Options struct {
	Logger   *slog.Logger
	Recorder CallRecorder
}

type completeFunc func(ctx context.Context, req Request) (*Response, error)

// core implements the Provider contract on top of a backend's raw
// completion call. Concrete providers embed it.
type core struct {
	name        string
	display     string
	apiKey      string
	defModel    string
	studyTokens int
	logger      *slog.Logger
	recorder    CallRecorder
	complete    completeFunc
}

func newCore(name, display, apiKey, defModel string, studyTokens int, opts Options) *core {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if studyTokens <= 0 {
		studyTokens = defaultStudyTokens
	}
	return &core{
		name:        name,
		display:     display,
		apiKey:      apiKey,
		defModel:    defModel,
		studyTokens: studyTokens,
		logger:      logger.With("provider", name),
		recorder:    opts.Recorder,
	}
}

func (c *core) Name() string         { return c.name }
func (c *core) DefaultModel() string { return c.defModel }
func (c *core) IsAvailable() bool    { return c.apiKey != "" }

func (c *core) model(override string) string {
	if override != "" {
		return override
	}
	return c.defModel
}

func (c *core) GenerateStudy(ctx context.Context, reference, sourceText, model string) study.Document {
	model = c.model(model)
	if !c.IsAvailable() {
		return study.NewErrorDocument(fmt.Sprintf("%s API key not configured", c.display))
	}

	resp, err := c.call(ctx, Request{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: study.SystemJSON},
			{Role: "user", Content: study.FormatPrompt(reference, sourceText)},
		},
		Temperature: studyTemperature,
		MaxTokens:   c.studyTokens,
		JSON:        true,
	})
	if err != nil {
		c.logger.Error("study generation failed", "model", model, "reference", reference, "error", err)
		return study.NewErrorDocument(fmt.Sprintf("%s error: %v", c.display, err))
	}

	obj, err := repair.Parse(resp.Content)
	if resp.Truncated() {
		if err != nil {
			c.logger.Warn("truncated response not recoverable",
				"model", model, "reference", reference, "tokens_out", resp.TokensOut, "error", err)
			c.record(resp.Model, resp, resp.Latency, &ProviderError{Provider: c.name, Model: model,
				Kind: KindTruncated, Err: fmt.Errorf("%w: %w", ErrTruncated, err)})
			return study.NewErrorDocument(fmt.Sprintf(
				"Response truncated (%d tokens). Try a shorter passage or fewer verses.", resp.TokensOut))
		}
		c.logger.Info("recovered truncated response", "model", model, "reference", reference)
	}
	if err != nil {
		c.logger.Error("unparseable study response",
			"model", model, "reference", reference, "error", err, "raw", truncate(resp.Content, 500))
		c.record(resp.Model, resp, resp.Latency, &ProviderError{Provider: c.name, Model: model, Kind: KindMalformed, Err: err})
		return study.NewErrorDocument(fmt.Sprintf("Failed to parse %s response: %v", c.display, err))
	}

	doc := study.FromObject(obj)
	if doc.IsError() {
		c.logger.Warn("model returned an error document", "model", model, "reference", reference, "error", doc.Message())
		c.record(resp.Model, resp, resp.Latency, &ProviderError{Provider: c.name, Model: model,
			Kind: KindMalformed, Err: errors.New(doc.Message())})
		return doc
	}
	c.record(resp.Model, resp, resp.Latency, nil)
	return doc
}

func (c *core) CompletePrompt(ctx context.Context, prompt, model string) (string, error) {
	model = c.model(model)
	if !c.IsAvailable() {
		return "", &ProviderError{Provider: c.name, Model: model, Kind: KindConfiguration, Err: ErrNoAPIKey}
	}

	resp, err := c.call(ctx, Request{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: study.SystemPlainText},
			{Role: "user", Content: prompt},
		},
		Temperature: studyTemperature,
		MaxTokens:   defaultCompleteTokens,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		err := &ProviderError{Provider: c.name, Model: model, Kind: KindMalformed, Err: ErrEmptyResponse}
		c.record(resp.Model, resp, resp.Latency, err)
		return "", err
	}
	c.record(resp.Model, resp, resp.Latency, nil)
	if resp.Truncated() {
		c.logger.Warn("completion hit the token limit", "model", model, "tokens_out", resp.TokensOut)
	}
	return text, nil
}

// call runs one outbound request. Transport failures are reported to the
// recorder here; callers report the outcome of a delivered response once
// they know whether it was usable.
func (c *core) call(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.complete(ctx, req)
	latency := time.Since(start)

	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = transportErr(c.name, req.Model, err)
		}
		c.record(req.Model, nil, latency, err)
		return nil, err
	}
	resp.Provider = c.name
	if resp.Model == "" {
		resp.Model = req.Model
	}
	resp.Latency = latency
	return resp, nil
}

func (c *core) record(model string, resp *Response, latency time.Duration, err error) {
	if c.recorder == nil {
		return
	}
	var in, out int
	if resp != nil {
		in, out = resp.TokensIn, resp.TokensOut
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	c.recorder.RecordLLMCall(c.name, model, in, out, int(latency.Milliseconds()), err == nil, errMsg)
}
