package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SwitchReason explains why the active provider changed
type SwitchReason string

const (
	SwitchReasonInitial     SwitchReason = "initial"
	SwitchReasonIneligible  SwitchReason = "previous_ineligible"
	SwitchReasonPreferred   SwitchReason = "preferred_available"
	SwitchReasonRoundRobin  SwitchReason = "round_robin"
	SwitchReasonNoneActive  SwitchReason = "none_eligible"
	SwitchReasonHigherLevel SwitchReason = "higher_priority_level"
)

// SwitchEvent records a change of the active provider for a platform
type SwitchEvent struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	Platform           Platform        `json:"platform" db:"platform"`
	PreviousProviderID *int64          `json:"previous_provider_id,omitempty" db:"previous_provider_id"`
	NewProviderID      *int64          `json:"new_provider_id,omitempty" db:"new_provider_id"`
	Reason             SwitchReason    `json:"reason" db:"reason"`
	Details            json.RawMessage `json:"details,omitempty" db:"details"` // JSONB for flexible metadata
	OccurredAt         time.Time       `json:"occurred_at" db:"occurred_at"`
}

// TableName returns the table name for the SwitchEvent model
func (SwitchEvent) TableName() string {
	return "provider_switch_events"
}

// NewSwitchEvent creates a new SwitchEvent instance
func NewSwitchEvent(platform Platform, previous, next *int64, reason SwitchReason) *SwitchEvent {
	return &SwitchEvent{
		ID:                 uuid.New(),
		Platform:           platform,
		PreviousProviderID: copyID(previous),
		NewProviderID:      copyID(next),
		Reason:             reason,
		OccurredAt:         time.Now().UTC(),
	}
}

// WithDetails sets the details
func (e *SwitchEvent) WithDetails(details interface{}) *SwitchEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
