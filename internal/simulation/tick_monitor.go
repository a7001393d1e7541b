package simulation

import (
	"sync"
	"time"
)

// TickStats summarises observed tick durations for the metrics endpoint.
type TickStats struct {
	Samples int
	Average time.Duration
	Max     time.Duration
	Last    time.Duration
}

// AverageFPS derives the ticks-per-second equivalent of the average duration.
func (s TickStats) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the simulation loop.
type TickMonitor struct {
	mu      sync.Mutex
	samples int
	total   time.Duration
	max     time.Duration
	last    time.Duration
}

// NewTickMonitor constructs an empty monitor ready to collect samples.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the duration of a completed tick.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	//1.- Track count and total for averages, the worst case for spike hunting,
	// and the latest sample for dashboards.
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickStats {
	if m == nil {
		return TickStats{}
	}
	m.mu.Lock()
	samples := m.samples
	total := m.total
	max := m.max
	last := m.last
	m.mu.Unlock()

	average := time.Duration(0)
	if samples > 0 {
		average = total / time.Duration(samples)
	}
	return TickStats{Samples: samples, Average: average, Max: max, Last: last}
}

// Reset clears the accumulated statistics so a fresh run starts cleanly.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples = 0
	m.total = 0
	m.max = 0
	m.last = 0
	m.mu.Unlock()
}
