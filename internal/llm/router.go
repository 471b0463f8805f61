package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/scribby/internal/config"
	"github.com/hazyhaar/scribby/internal/study"
	"github.com/hazyhaar/scribby/pkg/trace"
)

// Source names returned alongside a study when no provider produced it.
const (
	SourceError = "error"
	SourceCache = "cache"
)

const noProvidersMessage = "No LLM providers configured. Set GROQ_API_KEY, OPENROUTER_API_KEY, GOOGLE_API_KEY or ANTHROPIC_API_KEY."

// StudyCache stores successful studies by normalized reference.
type StudyCache interface {
	GetStudy(ctx context.Context, reference string) (study.Document, bool, error)
	PutStudy(ctx context.Context, reference string, doc study.Document, provider string) error
}

// AttemptTracer records each provider attempt.
type AttemptTracer interface {
	Record(ctx context.Context, op, provider, model string, d time.Duration, err error)
}

// RouterConfig configures a Router. Zero values are usable.
type RouterConfig struct {
	Mode           string        // "auto" (default) or a provider name or alias
	AttemptTimeout time.Duration // per-candidate deadline; 0 means none beyond the caller's
	Cache          StudyCache
	Tracer         AttemptTracer
	Logger         *slog.Logger
}

// Router picks the provider for each request. In auto mode it walks the
// registry's fallback order and returns the first non-error study; with
// an explicit provider it makes exactly one attempt.
type Router struct {
	registry       *Registry
	mode           string
	attemptTimeout time.Duration
	cache          StudyCache
	tracer         AttemptTracer
	logger         *slog.Logger
	flight         singleflight.Group
	mu             sync.Mutex
	sharing        map[string]*sharedCall
}

func NewRouter(reg *Registry, rc RouterConfig) *Router {
	mode := strings.ToLower(strings.TrimSpace(rc.Mode))
	if mode == "" {
		mode = config.ModeAuto
	}
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry:       reg,
		mode:           mode,
		attemptTimeout: rc.AttemptTimeout,
		cache:          rc.Cache,
		tracer:         rc.Tracer,
		logger:         logger.With("component", "router"),
		sharing:        make(map[string]*sharedCall),
	}
}

// Mode returns the configured selection mode.
func (r *Router) Mode() string { return r.mode }

// Registry returns the providers the router chooses from.
func (r *Router) Registry() *Registry { return r.registry }

// GenerateStudy returns a study for req and the name of what produced it:
// a provider name, SourceCache, or SourceError when the document is an
// error document. It never returns a nil document.
//
// Concurrent misses for the same reference, provider and model share one
// generation. Each caller still waits under its own context.
func (r *Router) GenerateStudy(ctx context.Context, req study.Request) (study.Document, string) {
	ctx = trace.Ensure(ctx)
	req.Reference = study.NormalizeReference(req.Reference)

	if r.cache != nil {
		doc, ok, err := r.cache.GetStudy(ctx, req.Reference)
		switch {
		case err != nil:
			r.logger.Warn("study cache read failed", "reference", req.Reference, "error", err)
		case ok:
			r.logger.Debug("study cache hit", "reference", req.Reference)
			return doc, SourceCache
		}
	}

	key := req.Reference + "\x00" + strings.ToLower(req.Provider) + "\x00" + req.Model
	ch, sc := r.share(ctx, key, req)
	select {
	case res := <-ch:
		g := res.Val.(generated)
		if res.Shared {
			return g.doc.Clone(), g.provider
		}
		return g.doc, g.provider
	case <-ctx.Done():
		r.leave(key, sc)
		return study.NewErrorDocument(fmt.Sprintf("Study generation cancelled: %v", ctx.Err())), SourceError
	}
}

func (r *Router) generate(ctx context.Context, req study.Request) (study.Document, string) {
	name := req.Provider
	if name == "" {
		name = r.mode
	}
	if !strings.EqualFold(strings.TrimSpace(name), config.ModeAuto) {
		return r.generateWith(ctx, name, req)
	}
	return r.generateAuto(ctx, req)
}

// generateWith makes one attempt with the named provider. Its error
// document, if any, is returned as-is.
func (r *Router) generateWith(ctx context.Context, name string, req study.Request) (study.Document, string) {
	p, ok := r.registry.Lookup(name)
	if !ok {
		return study.NewErrorDocument(fmt.Sprintf("Unknown provider: %s", name)), SourceError
	}
	if !p.IsAvailable() {
		return study.NewErrorDocument(fmt.Sprintf("Provider %s is not configured", p.Name())), SourceError
	}
	doc := r.attemptStudy(ctx, p, req, req.Model)
	if doc.IsError() {
		return doc, SourceError
	}
	return doc, p.Name()
}

func (r *Router) generateAuto(ctx context.Context, req study.Request) (study.Document, string) {
	candidates := r.registry.Available()
	if len(candidates) == 0 {
		return study.NewErrorDocument(noProvidersMessage), SourceError
	}
	if req.Model != "" {
		r.logger.Debug("model override ignored in auto mode", "model", req.Model)
	}

	failures := make([]string, 0, len(candidates))
	for i, p := range candidates {
		if err := ctx.Err(); err != nil {
			return study.NewErrorDocument(fmt.Sprintf("Study generation cancelled: %v", err)), SourceError
		}
		doc := r.attemptStudy(ctx, p, req, "")
		if !doc.IsError() {
			return doc, p.Name()
		}
		failures = append(failures, fmt.Sprintf("%s: %s", p.Name(), doc.Message()))
		r.logger.Warn("provider failed, trying next",
			"provider", p.Name(), "attempt", i+1, "candidates", len(candidates), "reference", req.Reference)
	}

	doc := study.NewErrorDocument("All LLM providers failed. Please try again later or check your API keys.")
	doc[study.FieldContext] = "Providers tried: " + strings.Join(failures, "; ")
	return doc, SourceError
}

// attemptStudy runs one candidate under its own deadline. A panicking
// provider yields an error document like any other failure.
func (r *Router) attemptStudy(ctx context.Context, p Provider, req study.Request, model string) (doc study.Document) {
	actx, cancel := r.attemptContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("provider panicked", "provider", p.Name(), "panic", rec)
			doc = study.NewErrorDocument(fmt.Sprintf("%s failed unexpectedly: %v", p.Name(), rec))
		}
		if doc == nil {
			doc = study.NewErrorDocument(fmt.Sprintf("%s returned no study", p.Name()))
		}
		var err error
		if doc.IsError() {
			err = errors.New(doc.Message())
		}
		r.trace(ctx, "generate_study", p, model, time.Since(start), err)
	}()

	return p.GenerateStudy(actx, req.Reference, req.SourceText, model)
}

// CompletePrompt returns a free-form completion and the provider that
// produced it. Auto mode falls back on error; the final error wraps
// ErrAllProvidersFailed and every candidate's error.
func (r *Router) CompletePrompt(ctx context.Context, prompt, provider, model string) (string, string, error) {
	ctx = trace.Ensure(ctx)
	name := provider
	if name == "" {
		name = r.mode
	}

	if !strings.EqualFold(strings.TrimSpace(name), config.ModeAuto) {
		p, ok := r.registry.Lookup(name)
		if !ok {
			return "", "", &ProviderError{Provider: name, Kind: KindConfiguration, Err: ErrProviderNotFound}
		}
		if !p.IsAvailable() {
			return "", "", &ProviderError{Provider: p.Name(), Kind: KindConfiguration, Err: ErrNoAPIKey}
		}
		text, err := r.attemptCompletion(ctx, p, prompt, model)
		if err != nil {
			return "", "", err
		}
		return text, p.Name(), nil
	}

	candidates := r.registry.Available()
	if len(candidates) == 0 {
		return "", "", ErrNoProviders
	}
	var errs []error
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		text, err := r.attemptCompletion(ctx, p, prompt, "")
		if err == nil {
			return text, p.Name(), nil
		}
		errs = append(errs, err)
		r.logger.Warn("completion failed, trying next", "provider", p.Name(), "error", err)
	}
	return "", "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

func (r *Router) attemptCompletion(ctx context.Context, p Provider, prompt, model string) (text string, err error) {
	actx, cancel := r.attemptContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("provider panicked", "provider", p.Name(), "panic", rec)
			text, err = "", &ProviderError{Provider: p.Name(), Model: model, Kind: KindTransport,
				Err: fmt.Errorf("panic: %v", rec)}
		}
		r.trace(ctx, "complete_prompt", p, model, time.Since(start), err)
	}()

	return p.CompletePrompt(actx, prompt, model)
}

func (r *Router) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.attemptTimeout > 0 {
		return context.WithTimeout(ctx, r.attemptTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *Router) trace(ctx context.Context, op string, p Provider, model string, d time.Duration, err error) {
	if r.tracer == nil {
		return
	}
	if model == "" {
		model = p.DefaultModel()
	}
	r.tracer.Record(ctx, op, p.Name(), model, d, err)
}

// ProviderStatus describes one backend for diagnostics.
type ProviderStatus struct {
	Available bool   `json:"available"`
	Model     string `json:"model"`
}

// Status reports availability and default model for every registered
// provider without any network call.
func (r *Router) Status() map[string]ProviderStatus {
	out := make(map[string]ProviderStatus)
	for _, p := range r.registry.All() {
		out[p.Name()] = ProviderStatus{Available: p.IsAvailable(), Model: p.DefaultModel()}
	}
	return out
}
