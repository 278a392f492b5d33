package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the coarse health classification of a provider.
// The integer values are part of the persisted/observed vocabulary and must not change.
type Status int

const (
	StatusMissing     Status = -1
	StatusUnavailable Status = 0
	StatusAvailable   Status = 1
	StatusDegraded    Status = 2
)

// String returns a human-readable status name
func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusDegraded:
		return "degraded"
	case StatusUnavailable:
		return "unavailable"
	case StatusMissing:
		return "missing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Eligible reports whether a provider with this status may be selected as active
func (s Status) Eligible() bool {
	return s == StatusAvailable || s == StatusDegraded
}

// ColorClass returns the display colour class used by UI consumers
func (s Status) ColorClass() string {
	switch s {
	case StatusAvailable:
		return "connectivity-green"
	case StatusDegraded:
		return "connectivity-yellow"
	case StatusUnavailable:
		return "connectivity-red"
	default:
		return "connectivity-gray"
	}
}

// TextKey returns the i18n key for the status label
func (s Status) TextKey() string {
	switch s {
	case StatusAvailable:
		return "components.main.connectivity.status.available"
	case StatusDegraded:
		return "components.main.connectivity.status.degraded"
	case StatusUnavailable:
		return "components.main.connectivity.status.unavailable"
	default:
		return "components.main.connectivity.status.missing"
	}
}

// SubStatus is the finer-grained cause code for a Degraded/Unavailable status.
// It is a closed enumeration; every value has exactly one row in subStatusTable.
type SubStatus uint8

const (
	SubStatusNone SubStatus = iota
	SubStatusSlowLatency
	SubStatusRateLimit
	SubStatusServerError
	SubStatusClientError
	SubStatusAuthError
	SubStatusInvalidRequest
	SubStatusNetworkError
	SubStatusContentMismatch

	subStatusCount
)

type subStatusInfo struct {
	key     string
	textKey string
}

var subStatusTable = [...]subStatusInfo{
	SubStatusNone:            {"", ""},
	SubStatusSlowLatency:     {"slow_latency", "components.main.connectivity.subStatus.slowLatency"},
	SubStatusRateLimit:       {"rate_limit", "components.main.connectivity.subStatus.rateLimit"},
	SubStatusServerError:     {"server_error", "components.main.connectivity.subStatus.serverError"},
	SubStatusClientError:     {"client_error", "components.main.connectivity.subStatus.clientError"},
	SubStatusAuthError:       {"auth_error", "components.main.connectivity.subStatus.authError"},
	SubStatusInvalidRequest:  {"invalid_request", "components.main.connectivity.subStatus.invalidRequest"},
	SubStatusNetworkError:    {"network_error", "components.main.connectivity.subStatus.networkError"},
	SubStatusContentMismatch: {"content_mismatch", "components.main.connectivity.subStatus.contentMismatch"},
}

// The table and the enumeration must have the same length; either array type below has a
// negative length (and fails to compile) when they drift apart.
var (
	_ [len(subStatusTable) - int(subStatusCount)]struct{}
	_ [int(subStatusCount) - len(subStatusTable)]struct{}
)

var subStatusByKey = func() map[string]SubStatus {
	m := make(map[string]SubStatus, len(subStatusTable))
	for i, info := range subStatusTable {
		m[info.key] = SubStatus(i)
	}
	return m
}()

// AllSubStatuses returns every sub-status in declaration order
func AllSubStatuses() []SubStatus {
	out := make([]SubStatus, 0, subStatusCount)
	for i := SubStatus(0); i < subStatusCount; i++ {
		out = append(out, i)
	}
	return out
}

// ParseSubStatus converts a wire key into a SubStatus
func ParseSubStatus(key string) (SubStatus, error) {
	s, ok := subStatusByKey[key]
	if !ok {
		return SubStatusNone, fmt.Errorf("unknown sub-status %q", key)
	}
	return s, nil
}

// String returns the wire key ("" for none)
func (s SubStatus) String() string {
	if s >= subStatusCount {
		return fmt.Sprintf("substatus(%d)", uint8(s))
	}
	return subStatusTable[s].key
}

// TextKey returns the i18n key for the sub-status label ("" for none)
func (s SubStatus) TextKey() string {
	if s >= subStatusCount {
		return ""
	}
	return subStatusTable[s].textKey
}

// MarshalText implements encoding.TextMarshaler
func (s SubStatus) MarshalText() ([]byte, error) {
	if s >= subStatusCount {
		return nil, fmt.Errorf("invalid sub-status %d", uint8(s))
	}
	return []byte(subStatusTable[s].key), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *SubStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSubStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConnectivityResult is the latest classified probe outcome for one provider
type ConnectivityResult struct {
	ProviderID   int64      `json:"providerId"`
	ProviderName string     `json:"providerName"`
	Platform     Platform   `json:"platform"`
	Status       Status     `json:"status"`
	SubStatus    SubStatus  `json:"subStatus"`
	LatencyMs    int64      `json:"latencyMs"`
	LastChecked  *time.Time `json:"lastChecked,omitempty"`
	HTTPCode     *int       `json:"httpCode,omitempty"`
	Message      string     `json:"message,omitempty"`

	// Sequence orders writes for the same provider; stale writes are discarded
	Sequence uint64 `json:"-"`
}

// MarshalJSON adds the display colour class and i18n keys for UI consumers
func (r ConnectivityResult) MarshalJSON() ([]byte, error) {
	type wire ConnectivityResult
	return json.Marshal(struct {
		wire
		ColorClass       string `json:"colorClass"`
		StatusTextKey    string `json:"statusTextKey"`
		SubStatusTextKey string `json:"subStatusTextKey,omitempty"`
	}{
		wire:             wire(r),
		ColorClass:       r.Status.ColorClass(),
		StatusTextKey:    r.Status.TextKey(),
		SubStatusTextKey: r.SubStatus.TextKey(),
	})
}

// MissingResult returns the placeholder for a provider that has never been probed
func MissingResult(platform Platform, providerID int64, providerName string) ConnectivityResult {
	return ConnectivityResult{
		ProviderID:   providerID,
		ProviderName: providerName,
		Platform:     platform,
		Status:       StatusMissing,
		SubStatus:    SubStatusNone,
	}
}

// IsMissing reports whether no probe has ever been recorded
func (r ConnectivityResult) IsMissing() bool {
	return r.Status == StatusMissing
}

// RoutingDecision is the active provider for a platform; ProviderID is nil when none is eligible
type RoutingDecision struct {
	Platform   Platform `json:"platform"`
	ProviderID *int64   `json:"providerId"`
	Level      *int     `json:"level,omitempty"`
	Status     Status   `json:"status"`
}

// HasActive reports whether a provider was selected
func (d RoutingDecision) HasActive() bool {
	return d.ProviderID != nil
}
