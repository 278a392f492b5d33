package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/llm-failover/models"
)

var (
	// ErrAdapterNotFound is returned when no adapter serves a platform
	ErrAdapterNotFound = errors.New("adapter not found")

	// ErrAdapterAlreadyRegistered is returned when trying to register a duplicate channel
	ErrAdapterAlreadyRegistered = errors.New("adapter already registered")
)

// Registry maps platform channels to probe adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// RegisterAdapter registers an adapter under its channel name
func (r *Registry) RegisterAdapter(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	name := adapter.Name()
	if name == "" {
		return errors.New("adapter name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return ErrAdapterAlreadyRegistered
	}

	r.adapters[name] = adapter
	return nil
}

// GetAdapter retrieves an adapter by channel name
func (r *Registry) GetAdapter(channel string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[channel]
	if !exists {
		return nil, ErrAdapterNotFound
	}

	return adapter, nil
}

// ForPlatform resolves the adapter for a platform; custom:* platforms share the "custom" adapter
func (r *Registry) ForPlatform(platform models.Platform) (Adapter, error) {
	adapter, err := r.GetAdapter(platform.Channel())
	if err != nil {
		return nil, fmt.Errorf("%w for platform %s", err, platform)
	}
	return adapter, nil
}

// ListAdapters returns the registered channel names in sorted order
func (r *Registry) ListAdapters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// RegistryBuilder helps build a registry with multiple adapters
type RegistryBuilder struct {
	registry *Registry
	errs     []error
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		registry: NewRegistry(),
	}
}

// WithAdapter adds an adapter instance
func (rb *RegistryBuilder) WithAdapter(adapter Adapter) *RegistryBuilder {
	if err := rb.registry.RegisterAdapter(adapter); err != nil {
		rb.errs = append(rb.errs, err)
	}
	return rb
}

// Build returns the registry, or the joined registration errors
func (rb *RegistryBuilder) Build() (*Registry, error) {
	if len(rb.errs) > 0 {
		return nil, fmt.Errorf("failed to build adapter registry: %w", errors.Join(rb.errs...))
	}
	return rb.registry, nil
}
