package observability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Metrics collects application metrics.
type Metrics interface {
	RecordProbe(ctx context.Context, labels ProbeLabels, latency time.Duration)
	RecordSweep(ctx context.Context, platform string, duration time.Duration)
	RecordCoalescedSweep(ctx context.Context, platform string)
	RecordSwitch(ctx context.Context, platform string)
}

// ProbeLabels contains metric dimensions.
type ProbeLabels struct {
	Platform  string
	Provider  string
	Status    string
	SubStatus string
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordProbe(context.Context, ProbeLabels, time.Duration) {}
func (NoopMetrics) RecordSweep(context.Context, string, time.Duration)     {}
func (NoopMetrics) RecordCoalescedSweep(context.Context, string)           {}
func (NoopMetrics) RecordSwitch(context.Context, string)                   {}

// PlatformStats is a point-in-time view of the counters of one platform.
type PlatformStats struct {
	Platform        string           `json:"platform"`
	Probes          int64            `json:"probes"`
	ProbesByStatus  map[string]int64 `json:"probes_by_status"`
	AvgProbeLatency float64          `json:"avg_probe_latency_ms"`
	Sweeps          int64            `json:"sweeps"`
	CoalescedSweeps int64            `json:"coalesced_sweeps"`
	LastSweepMs     int64            `json:"last_sweep_ms"`
	Switches        int64            `json:"switches"`
}

type platformCounters struct {
	probes          int64
	byStatus        map[string]int64
	latencyTotal    time.Duration
	sweeps          int64
	coalescedSweeps int64
	lastSweep       time.Duration
	switches        int64
}

// InMemoryMetrics keeps counters per platform for the status endpoint.
type InMemoryMetrics struct {
	mu        sync.Mutex
	platforms map[string]*platformCounters
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{platforms: make(map[string]*platformCounters)}
}

func (m *InMemoryMetrics) counters(platform string) *platformCounters {
	c, ok := m.platforms[platform]
	if !ok {
		c = &platformCounters{byStatus: make(map[string]int64)}
		m.platforms[platform] = c
	}
	return c
}

// RecordProbe counts one classified probe.
func (m *InMemoryMetrics) RecordProbe(_ context.Context, labels ProbeLabels, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters(labels.Platform)
	c.probes++
	c.byStatus[labels.Status]++
	c.latencyTotal += latency
}

// RecordSweep counts one completed sweep.
func (m *InMemoryMetrics) RecordSweep(_ context.Context, platform string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters(platform)
	c.sweeps++
	c.lastSweep = duration
}

// RecordCoalescedSweep counts a sweep request that joined one in progress.
func (m *InMemoryMetrics) RecordCoalescedSweep(_ context.Context, platform string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters(platform).coalescedSweeps++
}

// RecordSwitch counts an active-provider change.
func (m *InMemoryMetrics) RecordSwitch(_ context.Context, platform string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters(platform).switches++
}

// Snapshot returns the counters of every platform, sorted by platform name.
func (m *InMemoryMetrics) Snapshot() []PlatformStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PlatformStats, 0, len(m.platforms))
	for name, c := range m.platforms {
		stats := PlatformStats{
			Platform:        name,
			Probes:          c.probes,
			ProbesByStatus:  make(map[string]int64, len(c.byStatus)),
			Sweeps:          c.sweeps,
			CoalescedSweeps: c.coalescedSweeps,
			LastSweepMs:     c.lastSweep.Milliseconds(),
			Switches:        c.switches,
		}
		for k, v := range c.byStatus {
			stats.ProbesByStatus[k] = v
		}
		if c.probes > 0 {
			stats.AvgProbeLatency = float64(c.latencyTotal.Milliseconds()) / float64(c.probes)
		}
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}
