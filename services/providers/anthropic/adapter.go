package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/upb/llm-failover/services/providers"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-3-5-haiku-latest"

	// DefaultAPIVersion is sent as anthropic-version unless ANTHROPIC_API_VERSION overrides it
	DefaultAPIVersion = "2023-06-01"

	apiVersionEnv = "ANTHROPIC_API_VERSION"
)

// AnthropicAdapter builds probes against the Messages API
type AnthropicAdapter struct {
	apiVersion string
}

// NewAnthropicAdapter creates a new adapter. An empty apiVersion resolves from the
// environment and then the built-in default.
func NewAnthropicAdapter(apiVersion string) *AnthropicAdapter {
	if apiVersion == "" {
		apiVersion = strings.TrimSpace(os.Getenv(apiVersionEnv))
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return &AnthropicAdapter{apiVersion: apiVersion}
}

// Name returns the channel name
func (a *AnthropicAdapter) Name() string {
	return "claude"
}

// DefaultModel returns the model probed when none is configured
func (a *AnthropicAdapter) DefaultModel() string {
	return defaultModel
}

// APIVersion returns the anthropic-version header value
func (a *AnthropicAdapter) APIVersion() string {
	return a.apiVersion
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildProbeRequest creates a one-token Messages API request
func (a *AnthropicAdapter) BuildProbeRequest(ctx context.Context, target providers.ProbeTarget) (*http.Request, error) {
	baseURL := target.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := target.Model
	if model == "" {
		model = defaultModel
	}

	reqBody, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: 1,
		Messages:  []message{{Role: "user", Content: providers.ProbePrompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal probe request: %w", err)
	}

	url := providers.JoinURL(baseURL, "v1/messages")
	if providers.HasVersionSuffix(baseURL, "v1") {
		url = providers.JoinURL(baseURL, "messages")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", a.apiVersion)
	if target.APIKey != "" {
		httpReq.Header.Set("x-api-key", target.APIKey)
	}
	providers.ApplyHeaders(httpReq, target.Headers)

	return httpReq, nil
}

// MatchContent accepts message objects with a content array
func (a *AnthropicAdapter) MatchContent(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	if gjson.GetBytes(body, "type").String() == "message" {
		return true
	}
	content := gjson.GetBytes(body, "content")
	return content.Exists() && content.IsArray()
}
