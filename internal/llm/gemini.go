package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"github.com/hazyhaar/scribby/internal/config"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com"
	geminiDefaultModel = "gemini-2.0-flash"
)

// GeminiProvider implements the Provider interface for Google's Gemini API
// through the genai SDK.
type GeminiProvider struct {
	*core
	baseURL string

	once      sync.Once
	client    *genai.Client
	clientErr error
}

func NewGeminiProvider(cfg config.BackendConfig, opts Options) *GeminiProvider {
	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}
	p := &GeminiProvider{baseURL: cfg.BaseURL}
	p.core = newCore("gemini", "Gemini", cfg.APIKey, model, cfg.MaxTokens, opts)
	p.core.complete = p.Complete
	return p
}

func (p *GeminiProvider) sdk(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if p.baseURL != "" {
			cc.HTTPOptions.BaseURL = p.baseURL
		}
		p.client, p.clientErr = genai.NewClient(ctx, cc)
	})
	return p.client, p.clientErr
}

// Complete sends one generateContent request.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := p.model(req.Model)
	client, err := p.sdk(ctx)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Model: model, Kind: KindConfiguration,
			Err: fmt.Errorf("creating client: %w", err)}
	}

	gc := &genai.GenerateContentConfig{}
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		gc.Temperature = &t
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return nil, transportErr(p.name, model, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &ProviderError{Provider: p.name, Model: model, Kind: KindMalformed,
			Err: fmt.Errorf("no candidates in response: %w", ErrEmptyResponse)}
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	return &Response{
		Model:        model,
		Content:      text.String(),
		FinishReason: string(cand.FinishReason), // MAX_TOKENS on truncation
	}, nil
}

// ListModels returns the model names the key can reach. The SDK is not
// needed for a single GET.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	base := strings.TrimSuffix(p.baseURL, "/")
	if base == "" {
		base = geminiBaseURL
	}
	cl := &http.Client{Timeout: 15 * time.Second}
	raw, err := getJSON(ctx, cl, p.name, base+"/v1beta/models?key="+url.QueryEscape(p.apiKey), nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range gjson.GetBytes(raw, "models.#.name").Array() {
		names = append(names, strings.TrimPrefix(n.String(), "models/"))
	}
	return names, nil
}
