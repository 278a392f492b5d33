package models

import (
	"strings"
	"time"
)

// Platform identifies a family of API providers that is tested and routed independently
type Platform string

const (
	PlatformClaude Platform = "claude"
	PlatformCodex  Platform = "codex"
	PlatformGemini Platform = "gemini"

	// customPlatformPrefix marks user-defined OpenAI-compatible channels (custom:<name>)
	customPlatformPrefix = "custom:"
)

// BuiltinPlatforms lists the platforms known without any configuration
var BuiltinPlatforms = []Platform{PlatformClaude, PlatformCodex, PlatformGemini}

// NormalizePlatform maps aliases onto canonical platform names.
// Returns false when the value does not name a platform.
func NormalizePlatform(raw string) (Platform, bool) {
	p := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(p, customPlatformPrefix) {
		if len(p) == len(customPlatformPrefix) {
			return "", false
		}
		return Platform(p), true
	}

	switch p {
	case "claude", "claude-code", "claude_code":
		return PlatformClaude, true
	case "codex":
		return PlatformCodex, true
	case "gemini":
		return PlatformGemini, true
	default:
		return "", false
	}
}

// IsCustom reports whether the platform is a user-defined channel
func (p Platform) IsCustom() bool {
	return strings.HasPrefix(string(p), customPlatformPrefix)
}

// Channel returns the proxy channel the platform belongs to (claude, codex, gemini or custom)
func (p Platform) Channel() string {
	if p.IsCustom() {
		return "custom"
	}
	return string(p)
}

// String implements fmt.Stringer
func (p Platform) String() string {
	return string(p)
}

// ProxyOverride is a per-provider outbound proxy that takes precedence over app settings
type ProxyOverride struct {
	Address string `json:"address" validate:"required"`
	Type    string `json:"type" validate:"omitempty,oneof=http https socks5"`
}

// Provider is one configured endpoint/account within a platform.
// It is reference data owned by configuration storage; the routing core never mutates it.
type Provider struct {
	ID                int64          `json:"id" db:"id" validate:"gt=0"`
	Name              string         `json:"name" db:"name" validate:"required,max=255"`
	Platform          Platform       `json:"platform" db:"platform" validate:"required"`
	Level             int            `json:"level" db:"level" validate:"gte=0"`
	Enabled           bool           `json:"enabled" db:"enabled"`
	ConnectivityCheck bool           `json:"connectivity_check" db:"connectivity_check"`
	APIURL            string         `json:"api_url" db:"api_url" validate:"required,url"`
	APIKey            string         `json:"-" db:"api_key"`
	Model             string         `json:"model,omitempty" db:"model"`
	ProxyOverride     *ProxyOverride `json:"proxy_override,omitempty" db:"-" validate:"omitempty"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Provider model
func (Provider) TableName() string {
	return "providers"
}

// Routable reports whether the provider takes part in active-provider selection
func (p *Provider) Routable() bool {
	return p.Enabled
}

// Testable reports whether the provider should be probed by sweeps
func (p *Provider) Testable() bool {
	return p.ConnectivityCheck
}
