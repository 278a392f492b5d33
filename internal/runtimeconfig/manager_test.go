package runtimeconfig

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-failover/models"
)

func TestManager_Update(t *testing.T) {
	m := NewManager(models.DefaultAppSettings(), nil, nil)

	var calls int
	var seen models.AppSettings
	m.Subscribe(func(previous, current models.AppSettings) {
		calls++
		seen = current
		assert.False(t, previous.EnableRoundRobin)
	})

	next, err := m.Update(func(s *models.AppSettings) { s.EnableRoundRobin = true })
	require.NoError(t, err)
	assert.True(t, next.EnableRoundRobin)
	assert.True(t, m.RoundRobinEnabled())
	assert.True(t, m.SwitchNotifyEnabled())
	assert.Equal(t, 1, calls)
	assert.True(t, seen.EnableRoundRobin)

	// no change, no callback
	_, err = m.Update(func(s *models.AppSettings) { s.EnableRoundRobin = true })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestManager_ReplaceNormalizes(t *testing.T) {
	m := NewManager(models.DefaultAppSettings(), nil, nil)

	got, err := m.Replace(models.AppSettings{ProxyAddress: "  127.0.0.1:1080 ", ProxyType: "SOCKS5"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1080", got.ProxyAddress)
	assert.Equal(t, "socks5", m.Current().ProxyType)
	assert.False(t, m.SwitchNotifyEnabled())
}

func TestManager_ValidationRejects(t *testing.T) {
	reject := errors.New("bad proxy type")
	m := NewManager(models.DefaultAppSettings(), func(s models.AppSettings) error {
		if s.ProxyType == "ftp" {
			return reject
		}
		return nil
	}, nil)

	called := false
	m.Subscribe(func(models.AppSettings, models.AppSettings) { called = true })

	_, err := m.Update(func(s *models.AppSettings) { s.ProxyType = "ftp" })
	assert.ErrorIs(t, err, reject)
	assert.Equal(t, "http", m.Current().ProxyType)
	assert.False(t, called)
}
