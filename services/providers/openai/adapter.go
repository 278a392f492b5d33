package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/upb/llm-failover/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o-mini"
)

// OpenAIAdapter builds probes for OpenAI-compatible chat completion endpoints.
// It serves the codex platform and, registered under "custom", user-defined channels.
type OpenAIAdapter struct {
	name string
}

// NewOpenAIAdapter creates a new OpenAI adapter registered under the given channel name
func NewOpenAIAdapter(name string) *OpenAIAdapter {
	if name == "" {
		name = "codex"
	}
	return &OpenAIAdapter{name: name}
}

// Name returns the channel name
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// DefaultModel returns the model probed when none is configured
func (a *OpenAIAdapter) DefaultModel() string {
	return defaultModel
}

// chatRequest is the minimal chat completion payload used for probing
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildProbeRequest creates a one-token chat completion request
func (a *OpenAIAdapter) BuildProbeRequest(ctx context.Context, target providers.ProbeTarget) (*http.Request, error) {
	baseURL := target.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := target.Model
	if model == "" {
		model = defaultModel
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: providers.ProbePrompt}},
		MaxTokens: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal probe request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatCompletionsURL(baseURL), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if target.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+target.APIKey)
	}
	providers.ApplyHeaders(httpReq, target.Headers)

	return httpReq, nil
}

// MatchContent accepts chat completion objects carrying a choices array
func (a *OpenAIAdapter) MatchContent(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	if choices := gjson.GetBytes(body, "choices"); choices.Exists() && choices.IsArray() {
		return true
	}
	return gjson.GetBytes(body, "object").String() == "chat.completion"
}

func chatCompletionsURL(baseURL string) string {
	if providers.HasVersionSuffix(baseURL, "v1") {
		return providers.JoinURL(baseURL, "chat/completions")
	}
	return providers.JoinURL(baseURL, "v1/chat/completions")
}
