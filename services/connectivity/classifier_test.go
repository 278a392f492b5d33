package connectivity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/upb/llm-failover/models"
)

func alwaysMatch([]byte) bool { return true }
func neverMatch([]byte) bool  { return false }

func TestClassify(t *testing.T) {
	thresholds := Thresholds{SlowLatency: 5 * time.Second}
	fast := 200 * time.Millisecond

	tests := []struct {
		name    string
		outcome RawOutcome
		check   func([]byte) bool
		status  models.Status
		sub     models.SubStatus
	}{
		{
			name:    "healthy",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 200, BodySample: []byte(`{}`)},
			check:   alwaysMatch,
			status:  models.StatusAvailable,
			sub:     models.SubStatusNone,
		},
		{
			name:    "transport error dominates everything",
			outcome: RawOutcome{Elapsed: 10 * time.Second, HTTPStatus: 401, TransportErr: errors.New("refused")},
			check:   neverMatch,
			status:  models.StatusUnavailable,
			sub:     models.SubStatusNetworkError,
		},
		{
			name:    "unauthorized",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 401},
			status:  models.StatusUnavailable,
			sub:     models.SubStatusAuthError,
		},
		{
			name:    "forbidden",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 403},
			status:  models.StatusUnavailable,
			sub:     models.SubStatusAuthError,
		},
		{
			name:    "rate limited even when slow",
			outcome: RawOutcome{Elapsed: 8 * time.Second, HTTPStatus: 429},
			status:  models.StatusDegraded,
			sub:     models.SubStatusRateLimit,
		},
		{
			name:    "bad request",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 400},
			status:  models.StatusUnavailable,
			sub:     models.SubStatusInvalidRequest,
		},
		{
			name:    "unprocessable",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 422},
			status:  models.StatusUnavailable,
			sub:     models.SubStatusInvalidRequest,
		},
		{
			name:    "server error",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 503},
			status:  models.StatusUnavailable,
			sub:     models.SubStatusServerError,
		},
		{
			name:    "other client error",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 404},
			status:  models.StatusUnavailable,
			sub:     models.SubStatusClientError,
		},
		{
			name:    "content mismatch beats slow latency",
			outcome: RawOutcome{Elapsed: 6 * time.Second, HTTPStatus: 200, BodySample: []byte(`<html>`)},
			check:   neverMatch,
			status:  models.StatusDegraded,
			sub:     models.SubStatusContentMismatch,
		},
		{
			name:    "slow latency",
			outcome: RawOutcome{Elapsed: 5001 * time.Millisecond, HTTPStatus: 200},
			check:   alwaysMatch,
			status:  models.StatusDegraded,
			sub:     models.SubStatusSlowLatency,
		},
		{
			name:    "exactly at threshold is not slow",
			outcome: RawOutcome{Elapsed: 5 * time.Second, HTTPStatus: 204},
			status:  models.StatusAvailable,
			sub:     models.SubStatusNone,
		},
		{
			name:    "redirect is ambiguous",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 302},
			check:   alwaysMatch,
			status:  models.StatusUnavailable,
			sub:     models.SubStatusClientError,
		},
		{
			name:    "informational is ambiguous",
			outcome: RawOutcome{Elapsed: fast, HTTPStatus: 100},
			status:  models.StatusUnavailable,
			sub:     models.SubStatusClientError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, sub := Classify(tt.outcome, thresholds, tt.check)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.sub, sub)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	outcome := RawOutcome{Elapsed: 7 * time.Second, HTTPStatus: 200, BodySample: []byte(`{"ok":true}`)}
	firstStatus, firstSub := Classify(outcome, DefaultThresholds(), alwaysMatch)

	for i := 0; i < 100; i++ {
		status, sub := Classify(outcome, DefaultThresholds(), alwaysMatch)
		assert.Equal(t, firstStatus, status)
		assert.Equal(t, firstSub, sub)
	}
}

func TestClassify_ZeroThresholdDisablesSlowLatency(t *testing.T) {
	status, sub := Classify(RawOutcome{Elapsed: time.Minute, HTTPStatus: 200}, Thresholds{}, nil)
	assert.Equal(t, models.StatusAvailable, status)
	assert.Equal(t, models.SubStatusNone, sub)
}

func TestIsAmbiguous(t *testing.T) {
	assert.True(t, IsAmbiguous(RawOutcome{HTTPStatus: 301}))
	assert.True(t, IsAmbiguous(RawOutcome{HTTPStatus: 0}))
	assert.False(t, IsAmbiguous(RawOutcome{HTTPStatus: 200}))
	assert.False(t, IsAmbiguous(RawOutcome{HTTPStatus: 404}))
	assert.False(t, IsAmbiguous(RawOutcome{TransportErr: errors.New("x")}))
}
