package connectivity

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/upb/llm-failover/internal/redact"
	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/services/providers"
	"go.uber.org/zap"
)

const (
	// DefaultProbeTimeout bounds a single probe, including reading the body sample
	DefaultProbeTimeout = 10 * time.Second

	// DefaultBodySampleBytes caps how much of a response body is retained
	DefaultBodySampleBytes = 4096

	maxMessageLength = 256
)

// TransportErrorKind names the network-layer failure behind a probe
type TransportErrorKind string

const (
	TransportTimeout TransportErrorKind = "timeout"
	TransportDNS     TransportErrorKind = "dns"
	TransportTLS     TransportErrorKind = "tls"
	TransportRefused TransportErrorKind = "refused"
	TransportOther   TransportErrorKind = "other"
)

// TransportError is a probe failure below HTTP. It is carried as data in RawOutcome.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *TransportError) Unwrap() error {
	return e.Err
}

// newTransportError classifies a network error
func newTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Kind: transportKind(err), Err: err}
}

func transportKind(err error) TransportErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TransportDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return TransportRefused
	}

	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	if errors.As(err, &recordErr) || errors.As(err, &verifyErr) || errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) || errors.As(err, &invalidErr) {
		return TransportTLS
	}

	return TransportOther
}

// ClientProvider hands out HTTP clients honouring the outbound proxy policy
type ClientProvider interface {
	Client(platform models.Platform, override *models.ProxyOverride) *http.Client
}

// ProberConfig holds configuration for the prober
type ProberConfig struct {
	// Timeout bounds each probe
	Timeout time.Duration

	// BodySampleBytes caps the retained response body
	BodySampleBytes int64
}

// DefaultProberConfig returns a sensible default configuration
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		Timeout:         DefaultProbeTimeout,
		BodySampleBytes: DefaultBodySampleBytes,
	}
}

// Prober executes one connectivity check against one provider
type Prober struct {
	config   ProberConfig
	registry *providers.Registry
	clients  ClientProvider
	logger   *zap.Logger
}

// NewProber creates a new prober
func NewProber(config ProberConfig, registry *providers.Registry, clients ClientProvider, logger *zap.Logger) *Prober {
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeTimeout
	}
	if config.BodySampleBytes <= 0 {
		config.BodySampleBytes = DefaultBodySampleBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		config:   config,
		registry: registry,
		clients:  clients,
		logger:   logger,
	}
}

// Probe performs one bounded request. Network failures are returned inside the outcome;
// the error is reserved for configuration problems that make a request impossible to build.
func (p *Prober) Probe(ctx context.Context, provider *models.Provider) (RawOutcome, error) {
	adapter, err := p.registry.ForPlatform(provider.Platform)
	if err != nil {
		return RawOutcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := adapter.BuildProbeRequest(ctx, providers.ProbeTarget{
		BaseURL: provider.APIURL,
		APIKey:  provider.APIKey,
		Model:   provider.Model,
	})
	if err != nil {
		return RawOutcome{}, fmt.Errorf("failed to build probe request for provider %d: %w", provider.ID, err)
	}

	client := p.clients.Client(provider.Platform, provider.ProxyOverride)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return RawOutcome{Elapsed: time.Since(start), TransportErr: newTransportError(err)}, nil
	}
	defer resp.Body.Close()

	sample, err := io.ReadAll(io.LimitReader(resp.Body, p.config.BodySampleBytes))
	elapsed := time.Since(start)
	if err != nil {
		return RawOutcome{
			Elapsed:      elapsed,
			HTTPStatus:   resp.StatusCode,
			BodySample:   sample,
			TransportErr: newTransportError(err),
		}, nil
	}

	return RawOutcome{
		Elapsed:    elapsed,
		HTTPStatus: resp.StatusCode,
		BodySample: sample,
	}, nil
}

// ContentCheck returns the response shape check for a platform, or nil when none is registered
func (p *Prober) ContentCheck(platform models.Platform) providers.ContentMatcher {
	adapter, err := p.registry.ForPlatform(platform)
	if err != nil {
		return nil
	}
	return adapter.MatchContent
}

// Timeout returns the per-probe bound
func (p *Prober) Timeout() time.Duration {
	return p.config.Timeout
}

// outcomeMessage extracts a short human-readable explanation for a non-available result.
// Upstream text is redacted before truncation so a cut never exposes part of a key.
func outcomeMessage(outcome RawOutcome, sub models.SubStatus) string {
	if outcome.TransportErr != nil {
		return truncate(outcome.TransportErr.Error())
	}

	switch sub {
	case models.SubStatusNone:
		return ""
	case models.SubStatusSlowLatency:
		return fmt.Sprintf("response took %dms", outcome.Elapsed.Milliseconds())
	case models.SubStatusContentMismatch:
		return "response body did not match the expected shape"
	}

	for _, path := range []string{"error.message", "message", "error"} {
		if v := gjson.GetBytes(outcome.BodySample, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return truncate(v.String())
		}
	}

	if text := http.StatusText(outcome.HTTPStatus); text != "" {
		return fmt.Sprintf("HTTP %d %s", outcome.HTTPStatus, text)
	}
	return fmt.Sprintf("HTTP %d", outcome.HTTPStatus)
}

func truncate(s string) string {
	s = strings.TrimSpace(redact.String(s))
	if len(s) <= maxMessageLength {
		return s
	}
	// cut on a rune boundary so multi-byte text stays valid UTF-8
	cut := maxMessageLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
