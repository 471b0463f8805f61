package llm

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ModelLister is implemented by providers that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ModelListing is the discovery result for one provider.
type ModelListing struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models,omitempty"`
	Error    string   `json:"error,omitempty"`
}

const discoveryConcurrency = 4

// DiscoverModels asks every available provider for its model list in
// parallel. A failing provider is reported in its listing and does not
// stop the others. Results follow the fallback order.
func (r *Router) DiscoverModels(ctx context.Context) []ModelListing {
	providers := r.registry.Available()
	out := make([]ModelListing, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryConcurrency)
	for i, p := range providers {
		out[i].Provider = p.Name()
		lister, ok := p.(ModelLister)
		if !ok {
			out[i].Models = []string{p.DefaultModel()}
			continue
		}
		g.Go(func() error {
			models, err := lister.ListModels(gctx)
			if err != nil {
				r.logger.Warn("model discovery failed", "provider", p.Name(), "error", err)
				out[i].Error = err.Error()
				return nil
			}
			slices.Sort(models)
			out[i].Models = models
			r.logger.Info("models discovered", "provider", p.Name(), "count", len(models))
			return nil
		})
	}
	_ = g.Wait()
	return out
}
