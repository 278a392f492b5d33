package providers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/upb/llm-failover/models"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

// proxyPolicy is the subset of app settings that decides outbound routing
type proxyPolicy struct {
	address string
	kind    string
	claude  bool
	codex   bool
	gemini  bool
	custom  bool
}

func policyFromSettings(settings models.AppSettings) proxyPolicy {
	s := settings.Normalized()
	return proxyPolicy{
		address: s.ProxyAddress,
		kind:    s.ProxyType,
		claude:  s.ProxyClaude,
		codex:   s.ProxyCodex,
		gemini:  s.ProxyGemini,
		custom:  s.ProxyCustom,
	}
}

type transportKey struct {
	useProxy bool
	address  string
	kind     string
}

// TransportPool hands out pooled transports following the per-channel proxy policy.
// Transports are cached per (useProxy, address, type); a policy change closes idle
// connections and empties the cache.
type TransportPool struct {
	logger *zap.Logger

	policyMu sync.RWMutex
	policy   proxyPolicy

	cacheMu sync.Mutex
	cache   map[transportKey]*http.Transport
}

// NewTransportPool creates a pool configured from the given settings
func NewTransportPool(settings models.AppSettings, logger *zap.Logger) *TransportPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransportPool{
		logger: logger,
		policy: policyFromSettings(settings),
		cache:  make(map[transportKey]*http.Transport),
	}
}

// UpdateSettings applies new proxy settings. It reports whether the policy changed.
func (p *TransportPool) UpdateSettings(settings models.AppSettings) bool {
	next := policyFromSettings(settings)

	p.policyMu.Lock()
	unchanged := next == p.policy
	if !unchanged {
		p.policy = next
	}
	p.policyMu.Unlock()

	if unchanged {
		return false
	}

	p.cacheMu.Lock()
	for _, tr := range p.cache {
		tr.CloseIdleConnections()
	}
	clear(p.cache)
	p.cacheMu.Unlock()

	p.logger.Info("proxy policy updated",
		zap.String("proxy_type", next.kind),
		zap.Bool("proxy_configured", next.address != ""),
	)
	return true
}

// UsesProxy reports whether traffic for a platform goes through the global proxy
func (p *TransportPool) UsesProxy(platform models.Platform) bool {
	p.policyMu.RLock()
	defer p.policyMu.RUnlock()
	return p.policy.enabledFor(platform)
}

// Transport returns the transport for a platform. A provider override wins over the
// global policy. Invalid proxy settings degrade to a direct transport.
func (p *TransportPool) Transport(platform models.Platform, override *models.ProxyOverride) *http.Transport {
	key := transportKey{}
	if override != nil && strings.TrimSpace(override.Address) != "" {
		key = transportKey{useProxy: true, address: strings.TrimSpace(override.Address), kind: normalizeProxyType(override.Type)}
	} else {
		p.policyMu.RLock()
		pol := p.policy
		p.policyMu.RUnlock()
		if pol.enabledFor(platform) {
			key = transportKey{useProxy: true, address: pol.address, kind: pol.kind}
		}
	}

	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	if tr, ok := p.cache[key]; ok {
		return tr
	}

	var tr *http.Transport
	if !key.useProxy {
		tr = newDirectTransport()
	} else {
		var err error
		tr, err = newProxyTransport(key.kind, key.address)
		if err != nil {
			p.logger.Warn("invalid proxy configuration, falling back to direct connection",
				zap.String("platform", platform.String()),
				zap.String("proxy_type", key.kind),
				zap.Error(err),
			)
			tr = newDirectTransport()
		}
	}

	p.cache[key] = tr
	return tr
}

// Client returns a lightweight client over the pooled transport for a platform
func (p *TransportPool) Client(platform models.Platform, override *models.ProxyOverride) *http.Client {
	return &http.Client{
		Transport: p.Transport(platform, override),
		// probes classify redirects themselves
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Close releases idle connections held by every cached transport
func (p *TransportPool) Close() {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	for _, tr := range p.cache {
		tr.CloseIdleConnections()
	}
	clear(p.cache)
}

func (pol proxyPolicy) enabledFor(platform models.Platform) bool {
	if pol.address == "" {
		return false
	}
	switch platform.Channel() {
	case "claude":
		return pol.claude
	case "codex":
		return pol.codex
	case "gemini":
		return pol.gemini
	case "custom":
		return pol.custom
	default:
		return false
	}
}

func normalizeProxyType(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	if k == "" {
		return "http"
	}
	return k
}

func baseDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

func newDirectTransport() *http.Transport {
	return &http.Transport{
		// direct means direct: ignore HTTP_PROXY from the environment
		Proxy:                 nil,
		DialContext:           baseDialer().DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

func newProxyTransport(kind, address string) (*http.Transport, error) {
	switch kind {
	case "http", "https":
		return newHTTPProxyTransport(address)
	case "socks5":
		return newSOCKS5Transport(address)
	default:
		return nil, fmt.Errorf("unsupported proxy type: %s", kind)
	}
}

func newHTTPProxyTransport(address string) (*http.Transport, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return nil, fmt.Errorf("proxy address is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy address has no host: %s", address)
	}

	tr := newDirectTransport()
	tr.Proxy = http.ProxyURL(u)
	return tr, nil
}

func newSOCKS5Transport(address string) (*http.Transport, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return nil, fmt.Errorf("proxy address is empty")
	}

	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy address: %w", err)
		}
		host = u.Host
	}
	if host == "" {
		return nil, fmt.Errorf("proxy address has no host: %s", address)
	}

	dialer, err := proxy.SOCKS5("tcp", host, nil, baseDialer())
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
	}

	tr := newDirectTransport()
	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return contextDialer.DialContext(ctx, network, addr)
	}
	// SOCKS5 relays rarely negotiate HTTP/2
	tr.ForceAttemptHTTP2 = false
	return tr, nil
}
