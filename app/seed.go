package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/utils"
)

// providerSeed is one entry of the providers file. Unlike the API model it carries the key.
type providerSeed struct {
	models.Provider
	APIKey string `json:"api_key"`
}

// LoadProviderSeed reads a JSON array of providers, normalizing platform aliases
// and rejecting invalid or duplicate entries.
func LoadProviderSeed(path string) ([]*models.Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var entries []providerSeed
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	type key struct {
		platform models.Platform
		id       int64
	}
	seen := make(map[key]struct{}, len(entries))

	out := make([]*models.Provider, 0, len(entries))
	for i, e := range entries {
		p := e.Provider
		p.APIKey = e.APIKey

		platform, ok := models.NormalizePlatform(string(p.Platform))
		if !ok {
			return nil, fmt.Errorf("provider entry %d: unknown platform %q", i, p.Platform)
		}
		p.Platform = platform

		if err := utils.ValidateStruct(&p); err != nil {
			return nil, fmt.Errorf("provider entry %d: %w", i, err)
		}

		k := key{platform: p.Platform, id: p.ID}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("provider entry %d: duplicate id %d on platform %s", i, p.ID, p.Platform)
		}
		seen[k] = struct{}{}

		out = append(out, &p)
	}
	return out, nil
}
