package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Built-in provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderArk       = "ark"
)

// Factory constructs a Client from a Config.
type Factory func(ctx context.Context, cfg Config) (Client, error)

// Registry maps provider identifiers to client factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(ProviderOpenAI, NewOpenAIClient)
	r.Register(ProviderAnthropic, NewAnthropicClient)
	r.Register("claude", NewAnthropicClient)
	r.Register(ProviderArk, NewArkClient)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// Get retrieves a factory by provider ID.
func (r *Registry) Get(id string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", id)
	}
	return factory, nil
}

// List returns the registered provider IDs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New builds a client for cfg. The provider comes from cfg.Provider or a
// known "provider/" prefix on cfg.Model; anything else is sent to the
// OpenAI-compatible client with the model string unchanged.
func (r *Registry) New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.Provider == "" {
		cfg.Provider, cfg.Model = r.ParseModelString(cfg.Model)
	}
	factory, err := r.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return factory(ctx, cfg)
}

// ParseModelString splits "provider/model" when provider is registered.
func (r *Registry) ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		r.mu.RLock()
		_, ok := r.factories[parts[0]]
		r.mu.RUnlock()
		if ok {
			return parts[0], parts[1]
		}
	}
	return ProviderOpenAI, s
}
