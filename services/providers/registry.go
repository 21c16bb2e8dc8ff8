package providers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/upb/model-router/services/registry"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry maps provider tags to provider instances
type Registry struct {
	mu        sync.RWMutex
	providers map[registry.Provider]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[registry.Provider]Provider),
	}
}

// Register registers a provider instance under tag
func (r *Registry) Register(tag registry.Provider, provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}
	if !tag.Valid() {
		return fmt.Errorf("unknown provider tag %q", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[tag]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, tag)
	}

	r.providers[tag] = provider
	return nil
}

// Get retrieves the provider registered under tag
func (r *Registry) Get(tag registry.Provider) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[tag]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, tag)
	}

	return provider, nil
}

// ListProviders returns registered provider tags in canonical order
func (r *Registry) ListProviders() []registry.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]registry.Provider, 0, len(r.providers))
	for _, tag := range registry.Providers() {
		if _, ok := r.providers[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// ProviderBuilder is a function that creates a provider instance
type ProviderBuilder func(tag registry.Provider, config ProviderConfig) (Provider, error)

// RegistryBuilder helps build a registry with multiple providers
type RegistryBuilder struct {
	builders map[registry.Provider]ProviderBuilder
	order    []registry.Provider
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		builders: make(map[registry.Provider]ProviderBuilder),
	}
}

// WithProviderBuilder registers a provider builder for tag
func (rb *RegistryBuilder) WithProviderBuilder(tag registry.Provider, builder ProviderBuilder) *RegistryBuilder {
	if _, exists := rb.builders[tag]; !exists {
		rb.order = append(rb.order, tag)
	}
	rb.builders[tag] = builder
	return rb
}

// Build creates providers for every tag that has both a builder and a config
func (rb *RegistryBuilder) Build(configs map[registry.Provider]ProviderConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, tag := range rb.order {
		config, ok := configs[tag]
		if !ok {
			continue
		}
		provider, err := rb.builders[tag](tag, config)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", tag, err)
		}
		if err := reg.Register(tag, provider); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", tag, err)
		}
	}
	return reg, nil
}
