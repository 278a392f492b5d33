package runtimeconfig

import (
	"sync"

	"github.com/upb/llm-failover/models"
	"go.uber.org/zap"
)

// Validator checks settings before they are applied
type Validator func(models.AppSettings) error

// Subscriber is called after settings change, outside the manager lock
type Subscriber func(previous, current models.AppSettings)

// Manager provides access to the runtime settings.
type Manager struct {
	mu          sync.RWMutex
	current     models.AppSettings
	validate    Validator
	subscribers []Subscriber
	logger      *zap.Logger
}

// NewManager creates a manager holding the initial settings. validate may be nil.
func NewManager(initial models.AppSettings, validate Validator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		current:  initial.Normalized(),
		validate: validate,
		logger:   logger,
	}
}

// Current returns a snapshot of the settings
func (m *Manager) Current() models.AppSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers a callback for future changes
func (m *Manager) Subscribe(fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Replace swaps in a complete settings document
func (m *Manager) Replace(next models.AppSettings) (models.AppSettings, error) {
	return m.Update(func(s *models.AppSettings) { *s = next })
}

// Update applies a mutation to a copy of the settings, validates it and publishes it.
// Subscribers run only when something actually changed.
func (m *Manager) Update(mutate func(*models.AppSettings)) (models.AppSettings, error) {
	m.mu.Lock()
	previous := m.current
	next := previous
	mutate(&next)
	next = next.Normalized()

	if m.validate != nil {
		if err := m.validate(next); err != nil {
			m.mu.Unlock()
			return previous, err
		}
	}

	if next == previous {
		m.mu.Unlock()
		return next, nil
	}
	m.current = next
	subscribers := append([]Subscriber(nil), m.subscribers...)
	m.mu.Unlock()

	m.logger.Info("runtime settings updated",
		zap.Bool("auto_connectivity_test", next.AutoConnectivityTest),
		zap.Bool("enable_switch_notify", next.EnableSwitchNotify),
		zap.Bool("enable_round_robin", next.EnableRoundRobin),
	)
	for _, fn := range subscribers {
		fn(previous, next)
	}
	return next, nil
}

// SwitchNotifyEnabled reports the enable_switch_notify flag
func (m *Manager) SwitchNotifyEnabled() bool {
	return m.Current().EnableSwitchNotify
}

// RoundRobinEnabled reports the enable_round_robin flag
func (m *Manager) RoundRobinEnabled() bool {
	return m.Current().EnableRoundRobin
}
