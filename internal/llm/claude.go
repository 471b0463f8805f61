package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hazyhaar/scribby/internal/config"
)

const (
	claudeBaseURL      = "https://api.anthropic.com"
	claudeDefaultModel = "claude-haiku-4-5-20251001"
	claudeAPIVersion   = "2023-06-01"
	// Studies for long passages run well past the usual 3000 tokens.
	claudeStudyTokens = 20000
)

// claudeModels is what ListModels reports.
var claudeModels = []string{"claude-haiku-4-5-20251001", "claude-sonnet-4-5-20250929"}

// ClaudeProvider implements the Provider interface for Anthropic's Messages API.
type ClaudeProvider struct {
	*core
	baseURL string

	once sync.Once
	hc   *http.Client
}

func NewClaudeProvider(cfg config.BackendConfig, opts Options) *ClaudeProvider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = claudeBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = claudeDefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeStudyTokens
	}
	p := &ClaudeProvider{baseURL: baseURL}
	p.core = newCore("claude", "Claude", cfg.APIKey, model, maxTokens, opts)
	p.core.complete = p.Complete
	return p
}

func (p *ClaudeProvider) httpClient() *http.Client {
	p.once.Do(func() {
		p.hc = &http.Client{Timeout: httpTimeout}
	})
	return p.hc
}

// Complete sends one Messages API request.
func (p *ClaudeProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := p.model(req.Model)

	// System message travels outside the message list.
	body := claudeRequest{Model: model, MaxTokens: 4096}
	for _, m := range req.Messages {
		if m.Role == "system" {
			body.System = m.Content
			continue
		}
		body.Messages = append(body.Messages, m)
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	h := http.Header{}
	h.Set("x-api-key", p.apiKey)
	h.Set("anthropic-version", claudeAPIVersion)

	raw, err := postJSON(ctx, p.httpClient(), p.name, model, p.baseURL+"/v1/messages", h, body)
	if err != nil {
		return nil, err
	}

	var resp claudeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: p.name, Model: model, Kind: KindMalformed,
			Err: fmt.Errorf("decoding response: %w", err)}
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return &Response{
		Model:        resp.Model,
		Content:      content.String(),
		TokensIn:     resp.Usage.InputTokens,
		TokensOut:    resp.Usage.OutputTokens,
		FinishReason: resp.StopReason,
	}, nil
}

// ListModels returns the known model IDs without a network call.
func (p *ClaudeProvider) ListModels(context.Context) ([]string, error) {
	return append([]string(nil), claudeModels...), nil
}

type claudeRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
