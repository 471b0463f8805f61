package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hazyhaar/scribby/internal/config"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1/"
	groqDefaultModel = "llama-3.3-70b-versatile"
)

// GroqProvider calls Groq's OpenAI-compatible chat completions API through
// the openai-go SDK.
type GroqProvider struct {
	*core
	baseURL string

	once   sync.Once
	client *openai.Client
}

func NewGroqProvider(cfg config.BackendConfig, opts Options) *GroqProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	model := cfg.Model
	if model == "" {
		model = groqDefaultModel
	}
	p := &GroqProvider{baseURL: baseURL}
	p.core = newCore("groq", "Groq", cfg.APIKey, model, cfg.MaxTokens, opts)
	p.core.complete = p.Complete
	return p
}

func (p *GroqProvider) sdk() *openai.Client {
	p.once.Do(func() {
		p.client = openai.NewClient(
			option.WithAPIKey(p.apiKey),
			option.WithBaseURL(p.baseURL),
			option.WithMaxRetries(0),
		)
	})
	return p.client
}

// Complete sends one chat completion request.
func (p *GroqProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := p.model(req.Model)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Messages: openai.F(msgs),
		Model:    openai.F(model),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	chat, err := p.sdk().Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, transportErr(p.name, model, ErrRateLimited)
		}
		return nil, transportErr(p.name, model, err)
	}
	if len(chat.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Model: model, Kind: KindMalformed,
			Err: fmt.Errorf("no choices in response: %w", ErrEmptyResponse)}
	}

	choice := chat.Choices[0]
	return &Response{
		Model:        chat.Model,
		Content:      choice.Message.Content,
		TokensIn:     int(chat.Usage.PromptTokens),
		TokensOut:    int(chat.Usage.CompletionTokens),
		FinishReason: string(choice.FinishReason),
	}, nil
}

// ListModels returns the model IDs the account can use.
func (p *GroqProvider) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.sdk().Models.List(ctx)
	if err != nil {
		return nil, transportErr(p.name, "", err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
