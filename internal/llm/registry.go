package llm

import (
	"maps"
	"slices"
	"strings"

	"github.com/hazyhaar/scribby/internal/config"
)

// Constructor builds a provider from its config section.
type Constructor func(cfg config.BackendConfig, opts Options) Provider

var constructors = map[string]Constructor{
	"groq":       func(c config.BackendConfig, o Options) Provider { return NewGroqProvider(c, o) },
	"openrouter": func(c config.BackendConfig, o Options) Provider { return NewOpenRouterProvider(c, o) },
	"gemini":     func(c config.BackendConfig, o Options) Provider { return NewGeminiProvider(c, o) },
	"claude":     func(c config.BackendConfig, o Options) Provider { return NewClaudeProvider(c, o) },
}

// Registry names the providers and fixes the fallback order.
type Registry struct {
	order     []string
	providers map[string]Provider
	aliases   map[string]string
}

// NewRegistry indexes providers by name. A nil order falls back in the
// order the providers are given; names in order without a provider are
// skipped.
func NewRegistry(order []string, aliases map[string]string, providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		aliases:   make(map[string]string, len(aliases)),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	if order == nil {
		for _, p := range providers {
			order = append(order, p.Name())
		}
	}
	for _, name := range order {
		if _, ok := r.providers[name]; ok {
			r.order = append(r.order, name)
		}
	}
	for alias, target := range aliases {
		r.aliases[strings.ToLower(alias)] = target
	}
	return r
}

// NewFromConfig builds every supported backend, keyed or not, so an
// unconfigured backend can still report its status.
func NewFromConfig(cfg config.LLMConfig, opts Options) *Registry {
	providers := make([]Provider, 0, len(config.Backends))
	for _, name := range config.Backends {
		bc, _ := cfg.Backend(name)
		providers = append(providers, constructors[name](bc, opts))
	}
	order := cfg.Order
	if len(order) == 0 {
		order = config.Backends
	}
	return NewRegistry(order, cfg.Aliases, providers...)
}

// Lookup resolves a provider name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Provider, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	p, ok := r.providers[key]
	return p, ok
}

// Names returns the fallback order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Available returns the providers with credentials, in fallback order.
func (r *Registry) Available() []Provider {
	var out []Provider
	for _, name := range r.order {
		if p := r.providers[name]; p.IsAvailable() {
			out = append(out, p)
		}
	}
	return out
}

// All returns every registered provider: the fallback order first, then
// any provider left out of it.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.providers))
	seen := make(map[string]bool, len(r.providers))
	for _, name := range r.order {
		out = append(out, r.providers[name])
		seen[name] = true
	}
	for _, name := range slices.Sorted(maps.Keys(r.providers)) {
		if !seen[name] {
			out = append(out, r.providers[name])
		}
	}
	return out
}
