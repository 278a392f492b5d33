package models

import "strings"

// AppSettings are the user settings this service consumes.
// JSON keys match the settings document shared with the desktop client.
type AppSettings struct {
	AutoConnectivityTest bool `json:"auto_connectivity_test"`
	EnableSwitchNotify   bool `json:"enable_switch_notify"`
	EnableRoundRobin     bool `json:"enable_round_robin"`

	ProxyAddress string `json:"proxy_address"`
	ProxyType    string `json:"proxy_type" validate:"omitempty,oneof=http https socks5"`
	ProxyClaude  bool   `json:"proxy_claude"`
	ProxyCodex   bool   `json:"proxy_codex"`
	ProxyGemini  bool   `json:"proxy_gemini"`
	ProxyCustom  bool   `json:"proxy_custom"`
}

// DefaultAppSettings returns the settings used before anything is configured
func DefaultAppSettings() AppSettings {
	return AppSettings{
		AutoConnectivityTest: false,
		EnableSwitchNotify:   true,
		EnableRoundRobin:     false,
		ProxyType:            "http",
	}
}

// Normalized trims the proxy fields and applies the default proxy type
func (s AppSettings) Normalized() AppSettings {
	s.ProxyAddress = strings.TrimSpace(s.ProxyAddress)
	s.ProxyType = strings.ToLower(strings.TrimSpace(s.ProxyType))
	if s.ProxyType == "" {
		s.ProxyType = "http"
	}
	return s
}

// ProxyEnabledFor reports whether outbound traffic for a platform should use the global proxy.
// An empty proxy address disables the proxy regardless of channel flags.
func (s AppSettings) ProxyEnabledFor(platform Platform) bool {
	if strings.TrimSpace(s.ProxyAddress) == "" {
		return false
	}
	switch platform.Channel() {
	case "claude":
		return s.ProxyClaude
	case "codex":
		return s.ProxyCodex
	case "gemini":
		return s.ProxyGemini
	case "custom":
		return s.ProxyCustom
	default:
		return false
	}
}
