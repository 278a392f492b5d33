package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/upb/llm-failover/services/providers"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// GeminiAdapter builds probes against the generateContent endpoint
type GeminiAdapter struct{}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter() *GeminiAdapter {
	return &GeminiAdapter{}
}

// Name returns the channel name
func (a *GeminiAdapter) Name() string {
	return "gemini"
}

// DefaultModel returns the model probed when none is configured
func (a *GeminiAdapter) DefaultModel() string {
	return defaultModel
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens"`
}

// BuildProbeRequest creates a one-token generateContent request
func (a *GeminiAdapter) BuildProbeRequest(ctx context.Context, target providers.ProbeTarget) (*http.Request, error) {
	baseURL := target.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := target.Model
	if model == "" {
		model = defaultModel
	}

	reqBody, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: providers.ProbePrompt}}}},
		GenerationConfig: generationConfig{MaxOutputTokens: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal probe request: %w", err)
	}

	path := "v1beta/models/" + url.PathEscape(model) + ":generateContent"
	if providers.HasVersionSuffix(baseURL, "v1beta") {
		path = "models/" + url.PathEscape(model) + ":generateContent"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, providers.JoinURL(baseURL, path), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if target.APIKey != "" {
		httpReq.Header.Set("x-goog-api-key", target.APIKey)
	}
	providers.ApplyHeaders(httpReq, target.Headers)

	return httpReq, nil
}

// MatchContent accepts responses carrying a candidates array
func (a *GeminiAdapter) MatchContent(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	candidates := gjson.GetBytes(body, "candidates")
	return candidates.Exists() && candidates.IsArray()
}
