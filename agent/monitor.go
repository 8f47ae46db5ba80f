package agent

import (
	"sync"
	"time"

	"github.com/gatewaylab/agentrun/memory"
)

// Monitor accumulates token usage and step durations of an agent.
type Monitor struct {
	mu        sync.Mutex
	usage     memory.TokenUsage
	durations []time.Duration
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Update adds a finished step.
func (m *Monitor) Update(step *memory.ActionStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = m.usage.Add(step.TokenUsage)
	m.durations = append(m.durations, step.Timing.Duration())
}

// Reset clears the counters.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = memory.TokenUsage{}
	m.durations = nil
}

// TotalInputTokens is the number of prompt tokens since the last reset.
func (m *Monitor) TotalInputTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage.InputTokens
}

// TotalOutputTokens is the number of completion tokens since the last reset.
func (m *Monitor) TotalOutputTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage.OutputTokens
}

// TokenUsage is the total usage since the last reset.
func (m *Monitor) TokenUsage() memory.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// StepDurations returns the duration of every step since the last reset.
func (m *Monitor) StepDurations() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.durations))
	copy(out, m.durations)
	return out
}
