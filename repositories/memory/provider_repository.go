// Package memory provides repository implementations backed by process memory.
// They are used when no database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
)

type providerKey struct {
	platform models.Platform
	id       int64
}

// ProviderRepository implements repositories.ProviderRepository
type ProviderRepository struct {
	mu        sync.RWMutex
	providers map[providerKey]*models.Provider
}

// NewProviderRepository creates a provider repository seeded with the given providers
func NewProviderRepository(seed ...*models.Provider) *ProviderRepository {
	r := &ProviderRepository{providers: make(map[providerKey]*models.Provider)}
	for _, p := range seed {
		r.providers[providerKey{p.Platform, p.ID}] = copyProvider(p)
	}
	return r
}

// ListByPlatform returns copies ordered by level, then id
func (r *ProviderRepository) ListByPlatform(_ context.Context, platform models.Platform) ([]*models.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Provider, 0)
	for key, p := range r.providers {
		if key.platform == platform {
			out = append(out, copyProvider(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetByID returns a copy of one provider
func (r *ProviderRepository) GetByID(_ context.Context, platform models.Platform, id int64) (*models.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[providerKey{platform, id}]
	if !ok {
		return nil, fmt.Errorf("provider %d on %s: %w", id, platform, repositories.ErrNotFound)
	}
	return copyProvider(p), nil
}

// ListPlatforms returns every platform with at least one provider, sorted
func (r *ProviderRepository) ListPlatforms(_ context.Context) ([]models.Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[models.Platform]struct{})
	for key := range r.providers {
		seen[key.platform] = struct{}{}
	}
	out := make([]models.Platform, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Upsert creates or replaces a provider
func (r *ProviderRepository) Upsert(_ context.Context, provider *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[providerKey{provider.Platform, provider.ID}] = copyProvider(provider)
	return nil
}

// Delete removes a provider; it is a no-op when absent
func (r *ProviderRepository) Delete(platform models.Platform, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, providerKey{platform, id})
}

func copyProvider(p *models.Provider) *models.Provider {
	c := *p
	if p.ProxyOverride != nil {
		o := *p.ProxyOverride
		c.ProxyOverride = &o
	}
	return &c
}
