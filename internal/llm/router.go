package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Router manages LLM providers and routes completions by model name
type Router struct {
	providers       map[string]Provider
	defaultProvider string
	mu              sync.RWMutex
}

// NewRouter creates a new LLM router
func NewRouter(defaultProvider string) *Router {
	return &Router{
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider registers an LLM provider
func (r *Router) RegisterProvider(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider returns a provider by name
func (r *Router) GetProvider(name string) (Provider, error) {
	if name == "" {
		name = r.defaultProvider
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}

	if !p.IsConfigured() {
		return nil, fmt.Errorf("provider not configured: %s", name)
	}

	return p, nil
}

// ProviderFor returns the configured provider serving model. The default
// provider is checked first so it wins when several providers match.
func (r *Router) ProviderFor(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[r.defaultProvider]; ok && p.IsConfigured() && p.Supports(model) {
		return p, nil
	}
	for _, name := range r.sortedNames() {
		p := r.providers[name]
		if p.IsConfigured() && p.Supports(model) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no configured provider for model %q", model)
}

// Complete routes req to the provider serving req.Model
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	p, err := r.ProviderFor(req.Model)
	if err != nil {
		return nil, err
	}
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	return resp, nil
}

// ListProviders returns list of configured provider names
func (r *Router) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var providers []string
	for _, name := range r.sortedNames() {
		if r.providers[name].IsConfigured() {
			providers = append(providers, name)
		}
	}
	return providers
}

// ConfiguredModels returns the models of every configured provider
func (r *Router) ConfiguredModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []string
	for _, name := range r.sortedNames() {
		if p := r.providers[name]; p.IsConfigured() {
			models = append(models, p.AvailableModels()...)
		}
	}
	return models
}

// DefaultProvider returns the default provider name
func (r *Router) DefaultProvider() string {
	return r.defaultProvider
}

// ProviderInfo contains information about an LLM provider
type ProviderInfo struct {
	Name       string   `json:"name"`
	Models     []string `json:"models"`
	Default    bool     `json:"default"`
	Configured bool     `json:"configured"`
}

// GetProvidersInfo returns information about all providers
func (r *Router) GetProvidersInfo() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var infos []ProviderInfo
	for _, name := range r.sortedNames() {
		p := r.providers[name]
		infos = append(infos, ProviderInfo{
			Name:       name,
			Models:     p.AvailableModels(),
			Default:    name == r.defaultProvider,
			Configured: p.IsConfigured(),
		})
	}
	return infos
}

// caller holds r.mu
func (r *Router) sortedNames() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
