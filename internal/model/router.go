package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/harunnryd/copydesk/internal/config"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/logger"
	"github.com/harunnryd/copydesk/internal/model/contract"
	anthropicProvider "github.com/harunnryd/copydesk/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/copydesk/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/copydesk/internal/model/providers/openai"
)

// Router resolves registry names to providers. A failed completion moves on
// to the fallback model; an embedding walks every registered model until one
// can embed.
type Router struct {
	fallback    string
	maxAttempts int

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewModelRouter builds a provider for every registry entry. Entries that
// cannot be built are logged and skipped; it only fails when none could be.
func NewModelRouter(cfg config.ModelsConfig) (*Router, error) {
	r := &Router{
		fallback:    cfg.Fallback,
		maxAttempts: cfg.MaxFallbackAttempts,
		providers:   make(map[string]Provider, len(cfg.Registry)),
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = config.DefaultModelMaxFallbackAttempts
	}

	var failed []error
	for _, entry := range cfg.Registry {
		p, err := newProvider(entry)
		if err != nil {
			slog.Warn("Skipping model", "model", entry.Name, "provider", entry.Provider, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", entry.Name, err))
			continue
		}
		r.providers[entry.Name] = p
		slog.Debug("Model registered", "model", entry.Name, "provider", entry.Provider)
	}
	if len(r.providers) == 0 && len(failed) > 0 {
		return nil, copyErrors.WrapWithCategory(errors.Join(failed...), "no model providers initialized", copyErrors.ErrInternal)
	}
	return r, nil
}

// Register adds or replaces the provider for name.
func (r *Router) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Models lists registered names in sorted order.
func (r *Router) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Route tries model, then the fallback, stopping after maxAttempts
// registered candidates.
func (r *Router) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	var lastErr error
	attempts := 0
	for _, name := range candidates(model, r.fallback) {
		if attempts == r.maxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, copyErrors.Wrap(err, "completion cancelled")
		}
		p, ok := r.lookup(name)
		if !ok {
			slog.Warn("Model not registered", append([]any{"model", name}, logger.Attrs(ctx)...)...)
			continue
		}
		attempts++
		resp, err := p.Generate(ctx, req)
		if err == nil {
			slog.Info("Completion routed", append([]any{"requested", model, "model", name, "attempt", attempts}, logger.Attrs(ctx)...)...)
			return resp, nil
		}
		lastErr = err
		slog.Warn("Completion failed", append([]any{"model", name, "attempt", attempts, "error", err}, logger.Attrs(ctx)...)...)
	}

	if lastErr == nil {
		return nil, copyErrors.NotFound(fmt.Sprintf("model %s not found", model))
	}
	return nil, copyErrors.WrapWithCategory(lastErr, "provider request failed", copyErrors.ErrBackend)
}

// RouteEmbedding tries model, the fallback, then every other registered
// model by name. Providers that cannot embed are skipped silently.
func (r *Router) RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error) {
	var lastErr error
	for _, name := range candidates(model, r.fallback, r.Models()...) {
		if err := ctx.Err(); err != nil {
			return nil, copyErrors.Wrap(err, "embedding cancelled")
		}
		p, ok := r.lookup(name)
		if !ok {
			continue
		}
		vec, err := p.Embed(ctx, text)
		switch {
		case err == nil:
			slog.Debug("Embedding routed", append([]any{"model", name}, logger.Attrs(ctx)...)...)
			return vec, nil
		case errors.Is(err, contract.ErrEmbeddingUnsupported):
			continue
		}
		lastErr = err
		slog.Warn("Embedding failed", append([]any{"model", name, "error", err}, logger.Attrs(ctx)...)...)
	}

	if lastErr == nil {
		return nil, copyErrors.NotFound("no embedding-capable model configured")
	}
	return nil, copyErrors.WrapWithCategory(lastErr, "embedding failed", copyErrors.ErrBackend)
}

func (r *Router) lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// candidates drops empty and repeated names, keeping first occurrence.
func candidates(names ...string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

type vendorFactory func(entry config.ModelRegistry, vendorModel string) (vendorProvider, error)

var vendors = map[string]vendorFactory{
	"openai": func(entry config.ModelRegistry, vendorModel string) (vendorProvider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}
		return openaiProvider.New(entry.APIKey, baseURL, vendorModel), nil
	},
	"anthropic": func(entry config.ModelRegistry, _ string) (vendorProvider, error) {
		return anthropicProvider.New(entry.APIKey, entry.BaseURL), nil
	},
	"gemini": func(entry config.ModelRegistry, vendorModel string) (vendorProvider, error) {
		p, err := geminiProvider.New(context.Background(), entry.APIKey, vendorModel)
		if err != nil {
			return nil, copyErrors.WrapWithCategory(err, "create gemini client", copyErrors.ErrInternal)
		}
		return p, nil
	},
}

// newProvider binds a registry entry to its vendor client. Model defaults
// to the entry name.
func newProvider(entry config.ModelRegistry) (Provider, error) {
	factory, ok := vendors[entry.Provider]
	if !ok {
		return nil, copyErrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
	if entry.APIKey == "" {
		return nil, copyErrors.InvalidInput(fmt.Sprintf("API key required for %s provider", entry.Provider))
	}
	vendorModel := entry.Model
	if vendorModel == "" {
		vendorModel = entry.Name
	}
	client, err := factory(entry, vendorModel)
	if err != nil {
		return nil, err
	}
	return &ProviderAdapter{provider: client, name: entry.Name, model: vendorModel, providerType: entry.Provider}, nil
}
