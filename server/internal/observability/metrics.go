package observability

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// UnknownCommand is the bucket for command names outside the known set.
const UnknownCommand = "unknown"

// Metrics counts handled updates for status reporting.
type Metrics struct {
	startTime time.Time
	known     map[string]struct{}

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	mu       sync.Mutex
	commands map[string]int64
}

// NewMetrics creates a metrics collector started now. Only the known command
// names get their own counter; everything else is counted as UnknownCommand.
func NewMetrics(now time.Time, known ...string) *Metrics {
	m := &Metrics{
		startTime: now,
		known:     make(map[string]struct{}, len(known)),
		commands:  make(map[string]int64),
	}
	for _, name := range known {
		m.known[name] = struct{}{}
	}
	return m
}

// RecordCommand counts one invocation of command.
func (m *Metrics) RecordCommand(command string) {
	if _, ok := m.known[command]; !ok {
		command = UnknownCommand
	}
	m.mu.Lock()
	m.commands[command]++
	m.mu.Unlock()
}

// RecordRequest records a processed valuation request.
func (m *Metrics) RecordRequest() {
	m.requestTotal.Add(1)
}

// RecordFailure records a failed valuation request.
func (m *Metrics) RecordFailure() {
	m.requestFailed.Add(1)
}

// RequestTotal returns the number of valuation requests processed.
func (m *Metrics) RequestTotal() int64 {
	return m.requestTotal.Load()
}

// RequestFailed returns the number of failed valuation requests.
func (m *Metrics) RequestFailed() int64 {
	return m.requestFailed.Load()
}

// Commands returns a copy of the per-command counters.
func (m *Metrics) Commands() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.commands)
}

// StartTime returns when collection started.
func (m *Metrics) StartTime() time.Time {
	return m.startTime
}

// Uptime returns the time since collection started.
func (m *Metrics) Uptime(now time.Time) time.Duration {
	return now.Sub(m.startTime)
}
