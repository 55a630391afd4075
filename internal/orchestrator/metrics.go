package orchestrator

import (
	"sync"
	"time"
)

const (
	// metricsWindowSize bounds the rolling execution history per capability.
	metricsWindowSize = 1000
	// recentSampleSize is how many trailing executions feed the success rate
	// and average duration.
	recentSampleSize = 100
)

type execution struct {
	elapsed time.Duration
	success bool
	at      time.Time
}

// CapabilityStats is the pull-API view of one capability's recent history.
type CapabilityStats struct {
	TotalExecutions      int           `json:"total_executions"`
	RecentSuccessRate    float64       `json:"recent_success_rate"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	LastExecution        time.Time     `json:"last_execution"`
}

// MetricsWindow keeps a bounded rolling window of executions per capability,
// oldest evicted first.
type MetricsWindow struct {
	mu     sync.Mutex
	window map[string][]execution
	totals map[string]int
}

// NewMetricsWindow creates an empty metrics window.
func NewMetricsWindow() *MetricsWindow {
	return &MetricsWindow{
		window: make(map[string][]execution),
		totals: make(map[string]int),
	}
}

// Record appends one execution outcome for a capability.
func (m *MetricsWindow) Record(capability string, elapsed time.Duration, success bool, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := append(m.window[capability], execution{elapsed: elapsed, success: success, at: at})
	if len(w) > metricsWindowSize {
		w = w[len(w)-metricsWindowSize:]
	}
	m.window[capability] = w
	m.totals[capability]++
}

// Analytics returns per-capability stats over the recent sample.
func (m *MetricsWindow) Analytics() map[string]CapabilityStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]CapabilityStats, len(m.window))
	for capability, w := range m.window {
		recent := w
		if len(recent) > recentSampleSize {
			recent = recent[len(recent)-recentSampleSize:]
		}

		var successes int
		var total time.Duration
		for _, e := range recent {
			if e.success {
				successes++
			}
			total += e.elapsed
		}

		stats := CapabilityStats{
			TotalExecutions: m.totals[capability],
			LastExecution:   w[len(w)-1].at,
		}
		if len(recent) > 0 {
			stats.RecentSuccessRate = float64(successes) / float64(len(recent))
			stats.AverageExecutionTime = total / time.Duration(len(recent))
		}
		out[capability] = stats
	}
	return out
}
