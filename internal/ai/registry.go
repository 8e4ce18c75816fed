package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry builds chat providers by name and keeps one instance per
// provider and model.
type Registry struct {
	mu        sync.Mutex
	factories map[string]ProviderFactory
	built     map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		built:     make(map[string]Provider),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Register(name string, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalizeName(name)] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = normalizeName(name)
	model = strings.TrimSpace(model)
	key := name + "\x00" + model

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.built[key]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s (known: %s)", name, strings.Join(r.names(), ", "))
	}
	p, err := f(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", name, err)
	}
	r.built[key] = p
	return p, nil
}

// Resolve accepts "provider:model" or a bare model served by defaultProvider.
// Model names may contain slashes (OpenRouter), so only a registered prefix
// before the first colon selects a provider.
func (r *Registry) Resolve(ctx context.Context, ref, defaultProvider string) (Provider, error) {
	ref = strings.TrimSpace(ref)
	if name, model, found := strings.Cut(ref, ":"); found {
		r.mu.Lock()
		_, known := r.factories[normalizeName(name)]
		r.mu.Unlock()
		if known {
			return r.Get(ctx, name, model)
		}
	}
	return r.Get(ctx, defaultProvider, ref)
}

// names expects r.mu held.
func (r *Registry) names() []string {
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
