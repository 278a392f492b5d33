package connectivity

import (
	"net/http"
	"time"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/services/providers"
)

// DefaultSlowLatency is the latency above which a successful probe counts as degraded
const DefaultSlowLatency = 5 * time.Second

// Thresholds tune classification per deployment
type Thresholds struct {
	SlowLatency time.Duration
}

// DefaultThresholds returns the built-in thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{SlowLatency: DefaultSlowLatency}
}

// RawOutcome is what a single probe observed, before classification
type RawOutcome struct {
	Elapsed      time.Duration
	HTTPStatus   int
	BodySample   []byte
	TransportErr error
}

// Classify maps a raw probe outcome to a status pair. Rules are evaluated in order and the
// first match wins, so transport and auth failures always dominate latency degradation.
// A nil content check passes.
func Classify(outcome RawOutcome, thresholds Thresholds, contentCheck providers.ContentMatcher) (models.Status, models.SubStatus) {
	if outcome.TransportErr != nil {
		return models.StatusUnavailable, models.SubStatusNetworkError
	}

	code := outcome.HTTPStatus
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.StatusUnavailable, models.SubStatusAuthError
	case code == http.StatusTooManyRequests:
		return models.StatusDegraded, models.SubStatusRateLimit
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return models.StatusUnavailable, models.SubStatusInvalidRequest
	case code >= 500 && code <= 599:
		return models.StatusUnavailable, models.SubStatusServerError
	case code >= 400 && code <= 499:
		return models.StatusUnavailable, models.SubStatusClientError
	case code < 200 || code > 299:
		// 1xx, 3xx and anything outside the HTTP range match no rule
		return models.StatusUnavailable, models.SubStatusClientError
	}

	if contentCheck != nil && !contentCheck(outcome.BodySample) {
		return models.StatusDegraded, models.SubStatusContentMismatch
	}

	if thresholds.SlowLatency > 0 && outcome.Elapsed > thresholds.SlowLatency {
		return models.StatusDegraded, models.SubStatusSlowLatency
	}

	return models.StatusAvailable, models.SubStatusNone
}

// IsAmbiguous reports whether an outcome fell through every rule to the client_error default
func IsAmbiguous(outcome RawOutcome) bool {
	if outcome.TransportErr != nil {
		return false
	}
	code := outcome.HTTPStatus
	return code < 200 || (code > 299 && code < 400) || code > 599
}
