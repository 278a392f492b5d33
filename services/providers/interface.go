package providers

import (
	"context"
	"net/http"
	"strings"
)

// Adapter knows how to build a minimal connectivity probe for one platform family
// and how to recognise a well-formed response from it.
type Adapter interface {
	// Name returns the channel the adapter serves (e.g., "claude", "codex", "gemini", "custom")
	Name() string

	// BuildProbeRequest creates the HTTP request for a single connectivity check
	BuildProbeRequest(ctx context.Context, target ProbeTarget) (*http.Request, error)

	// MatchContent reports whether a successful response body has the expected shape.
	// The body may be a truncated sample of the full response.
	MatchContent(body []byte) bool

	// DefaultModel returns the model used when a provider does not configure one
	DefaultModel() string
}

// ProbeTarget holds the endpoint configuration needed to probe one provider
type ProbeTarget struct {
	// BaseURL for the API (e.g., "https://api.anthropic.com")
	BaseURL string

	// APIKey for authentication
	APIKey string

	// Model to use for the probe; adapters fall back to DefaultModel when empty
	Model string

	// Additional headers
	Headers map[string]string
}

// ContentMatcher checks the shape of a response body
type ContentMatcher func(body []byte) bool

// ProbePrompt is the user message sent by every probe
const ProbePrompt = "ping"

// JoinURL joins a base URL and a path, tolerating duplicate or missing slashes
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// HasVersionSuffix reports whether a base URL already ends in a version segment such as /v1
func HasVersionSuffix(base, version string) bool {
	return strings.HasSuffix(strings.TrimRight(base, "/"), "/"+version)
}

// ApplyHeaders sets extra headers on a request
func ApplyHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}
