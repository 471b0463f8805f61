package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/hazyhaar/scribby/internal/config"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "meta-llama/llama-3.2-3b-instruct:free"
	openRouterReferer      = "https://scribby.app"
	openRouterTitle        = "Bible Study Scribby"
)

// OpenRouterProvider calls OpenRouter's OpenAI-format chat API over plain
// HTTP; responses are read with gjson.
type OpenRouterProvider struct {
	*core
	baseURL string

	once sync.Once
	hc   *http.Client
}

func NewOpenRouterProvider(cfg config.BackendConfig, opts Options) *OpenRouterProvider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openRouterDefaultModel
	}
	p := &OpenRouterProvider{baseURL: baseURL}
	p.core = newCore("openrouter", "OpenRouter", cfg.APIKey, model, cfg.MaxTokens, opts)
	p.core.complete = p.Complete
	return p
}

func (p *OpenRouterProvider) httpClient() *http.Client {
	p.once.Do(func() {
		p.hc = &http.Client{Timeout: httpTimeout}
	})
	return p.hc
}

func (p *OpenRouterProvider) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.apiKey)
	h.Set("HTTP-Referer", openRouterReferer)
	h.Set("X-Title", openRouterTitle)
	return h
}

// Complete sends one chat completion request.
func (p *OpenRouterProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := p.model(req.Model)

	body := openRouterRequest{
		Model:    model,
		Messages: req.Messages,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}

	raw, err := postJSON(ctx, p.httpClient(), p.name, model, p.baseURL+"/chat/completions", p.header(), body)
	if err != nil {
		return nil, err
	}

	// OpenRouter reports upstream failures inside a 200 body.
	if msg := gjson.GetBytes(raw, "error.message"); msg.Exists() {
		return nil, transportErr(p.name, model, fmt.Errorf("upstream: %s", msg.String()))
	}
	choice := gjson.GetBytes(raw, "choices.0")
	if !choice.Exists() {
		return nil, &ProviderError{Provider: p.name, Model: model, Kind: KindMalformed,
			Err: fmt.Errorf("no choices in response: %w", ErrEmptyResponse)}
	}

	usage := gjson.GetBytes(raw, "usage")
	return &Response{
		Model:        gjson.GetBytes(raw, "model").String(),
		Content:      choice.Get("message.content").String(),
		TokensIn:     int(usage.Get("prompt_tokens").Int()),
		TokensOut:    int(usage.Get("completion_tokens").Int()),
		FinishReason: choice.Get("finish_reason").String(),
	}, nil
}

// ListModels returns the model IDs OpenRouter advertises.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]string, error) {
	raw, err := getJSON(ctx, p.httpClient(), p.name, p.baseURL+"/models", p.header())
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range gjson.GetBytes(raw, "data.#.id").Array() {
		ids = append(ids, id.String())
	}
	return ids, nil
}

type openRouterRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}
