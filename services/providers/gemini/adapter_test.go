package gemini

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-failover/services/providers"
)

func TestGeminiAdapter_BuildProbeRequest(t *testing.T) {
	adapter := NewGeminiAdapter()
	assert.Equal(t, "gemini", adapter.Name())

	tests := []struct {
		name    string
		target  providers.ProbeTarget
		wantURL string
	}{
		{
			name:    "default model",
			target:  providers.ProbeTarget{BaseURL: "https://g.example.com", APIKey: "k"},
			wantURL: "https://g.example.com/v1beta/models/gemini-2.0-flash:generateContent",
		},
		{
			name:    "explicit model and versioned base",
			target:  providers.ProbeTarget{BaseURL: "https://g.example.com/v1beta/", Model: "gemini-1.5-pro", APIKey: "k"},
			wantURL: "https://g.example.com/v1beta/models/gemini-1.5-pro:generateContent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := adapter.BuildProbeRequest(context.Background(), tt.target)
			require.NoError(t, err)

			assert.Equal(t, "POST", req.Method)
			assert.Equal(t, tt.wantURL, req.URL.String())
			assert.Equal(t, "k", req.Header.Get("x-goog-api-key"))

			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)

			var payload generateRequest
			require.NoError(t, json.Unmarshal(body, &payload))
			assert.Equal(t, 1, payload.GenerationConfig.MaxOutputTokens)
			require.Len(t, payload.Contents, 1)
			assert.Equal(t, providers.ProbePrompt, payload.Contents[0].Parts[0].Text)
		})
	}
}

func TestGeminiAdapter_MatchContent(t *testing.T) {
	adapter := NewGeminiAdapter()

	assert.True(t, adapter.MatchContent([]byte(`{"candidates":[{"content":{"parts":[{"text":"p"}]}}]}`)))
	assert.False(t, adapter.MatchContent([]byte(`{"error":{"code":400}}`)))
	assert.False(t, adapter.MatchContent([]byte(`{"candidates":"none"}`)))
	assert.False(t, adapter.MatchContent(nil))
}
