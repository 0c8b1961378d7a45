package agent

import (
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/paperforge/orchestrator/pkg/types"
)

// emaWindow is the number of samples the exponential moving average tracks;
// alpha = 2 / (emaWindow + 1).
const emaWindow = 100

// Histogram bounds for response times, in microseconds.
const (
	histMinMicros = 1
	histMaxMicros = int64(time.Hour / time.Microsecond)
	histSigFigs   = 3
)

// metricsTracker keeps the rolling execution metrics for one agent.
type metricsTracker struct {
	mu sync.Mutex

	completed   int64
	failed      int64
	emaMicros   float64
	haveSamples bool
	hist        *hdrhistogram.Histogram
	currentLoad int
	lastActive  time.Time
}

func newMetricsTracker() *metricsTracker {
	return &metricsTracker{
		hist: hdrhistogram.New(histMinMicros, histMaxMicros, histSigFigs),
	}
}

// enter marks the start of an execution attempt.
func (m *metricsTracker) enter() {
	m.mu.Lock()
	m.currentLoad++
	m.lastActive = time.Now()
	m.mu.Unlock()
}

// leave marks the end of an execution attempt.
func (m *metricsTracker) leave() {
	m.mu.Lock()
	if m.currentLoad > 0 {
		m.currentLoad--
	}
	m.mu.Unlock()
}

func (m *metricsTracker) recordSuccess(d time.Duration) {
	m.mu.Lock()
	m.completed++
	m.observe(d)
	m.mu.Unlock()
}

func (m *metricsTracker) recordFailure(d time.Duration) {
	m.mu.Lock()
	m.failed++
	if d > 0 {
		m.observe(d)
	}
	m.mu.Unlock()
}

// observe folds a duration sample into the EMA and the histogram. Callers
// hold m.mu.
func (m *metricsTracker) observe(d time.Duration) {
	micros := float64(d.Microseconds())
	if !m.haveSamples {
		m.emaMicros = micros
		m.haveSamples = true
	} else {
		const alpha = 2.0 / (emaWindow + 1)
		m.emaMicros = alpha*micros + (1-alpha)*m.emaMicros
	}
	_ = m.hist.RecordValue(clampMicros(d.Microseconds()))
	m.lastActive = time.Now()
}

func clampMicros(v int64) int64 {
	if v < histMinMicros {
		return histMinMicros
	}
	if v > histMaxMicros {
		return histMaxMicros
	}
	return v
}

// snapshot returns a point-in-time copy of the metrics.
func (m *metricsTracker) snapshot() types.AgentMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := types.AgentMetrics{
		TasksCompleted:      m.completed,
		TasksFailed:         m.failed,
		AverageResponseTime: time.Duration(m.emaMicros) * time.Microsecond,
		CurrentLoad:         m.currentLoad,
		LastActive:          m.lastActive,
	}
	if m.hist.TotalCount() > 0 {
		snap.P50ResponseTime = time.Duration(m.hist.ValueAtQuantile(50)) * time.Microsecond
		snap.P95ResponseTime = time.Duration(m.hist.ValueAtQuantile(95)) * time.Microsecond
		snap.P99ResponseTime = time.Duration(m.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	return snap
}
