package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/llm-failover/models"
)

// ResultRepository implements repositories.ResultRepository
type ResultRepository struct {
	mu      sync.RWMutex
	results map[providerKey]models.ConnectivityResult
}

// NewResultRepository creates an empty result repository
func NewResultRepository() *ResultRepository {
	return &ResultRepository{results: make(map[providerKey]models.ConnectivityResult)}
}

// Upsert stores a copy of the result. A result checked before the stored one is ignored.
func (r *ResultRepository) Upsert(_ context.Context, result *models.ConnectivityResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := providerKey{result.Platform, result.ProviderID}
	if existing, ok := r.results[key]; ok && existing.LastChecked != nil && result.LastChecked != nil &&
		result.LastChecked.Before(*existing.LastChecked) {
		return nil
	}
	r.results[key] = copyResult(*result)
	return nil
}

// ListAll returns copies ordered by platform, then provider id
func (r *ResultRepository) ListAll(_ context.Context) ([]*models.ConnectivityResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.ConnectivityResult, 0, len(r.results))
	for _, res := range r.results {
		c := copyResult(res)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	return out, nil
}

// DeleteByPlatform removes all results of a platform
func (r *ResultRepository) DeleteByPlatform(_ context.Context, platform models.Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.results {
		if key.platform == platform {
			delete(r.results, key)
		}
	}
	return nil
}

func copyResult(r models.ConnectivityResult) models.ConnectivityResult {
	if r.LastChecked != nil {
		t := *r.LastChecked
		r.LastChecked = &t
	}
	if r.HTTPCode != nil {
		c := *r.HTTPCode
		r.HTTPCode = &c
	}
	return r
}
