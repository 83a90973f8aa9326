package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// Registry maps provider names to providers.
type Registry struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

// RegisterConfigs builds and registers a provider per config. The first construction
// failure is returned; providers registered before it remain available.
func (r *Registry) RegisterConfigs(ctx context.Context, configs ...Config) error {
	for _, cfg := range configs {
		p, err := NewProvider(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
		}
		r.Register(p)
	}
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, common.NewConfigurationError("llm.provider",
			fmt.Errorf("%w: provider %q is not registered", common.ErrMissingConfig, name))
	}
	return p, nil
}

// Names lists registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
