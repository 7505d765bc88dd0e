package metrics

import (
	"sync"
	"time"
)

// TimerMetric is the aggregated view of one timer.
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

// ErrorRateMetric is the aggregated success/error ratio of one operation.
type ErrorRateMetric struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

type timerState struct {
	count   int64
	totalMs int64
	minMs   int64
	maxMs   int64
}

type errorRateState struct {
	total  int64
	errors int64
}

// Metrics is an in-process collector for the engine's counters, timers,
// error rates and component health. It is safe for concurrent use and is
// exposed through the /metrics endpoint.
type Metrics struct {
	mu           sync.Mutex
	counters     map[string]int64
	gauges       map[string]int64
	timers       map[string]*timerState
	errorRates   map[string]*errorRateState
	healthChecks map[string]bool
	startTime    time.Time
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]int64),
		gauges:       make(map[string]int64),
		timers:       make(map[string]*timerState),
		errorRates:   make(map[string]*errorRateState),
		healthChecks: make(map[string]bool),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1.
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the given value.
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	m.mu.Lock()
	m.counters[name] += value
	m.mu.Unlock()
}

// SetGauge sets a gauge to a point-in-time value.
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.Lock()
	m.gauges[name] = value
	m.mu.Unlock()
}

// RecordTimer records one duration sample in milliseconds.
func (m *Metrics) RecordTimer(name string, durationMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[name]
	if !ok {
		t = &timerState{minMs: durationMs, maxMs: durationMs}
		m.timers[name] = t
	}
	t.count++
	t.totalMs += durationMs
	if durationMs < t.minMs {
		t.minMs = durationMs
	}
	if durationMs > t.maxMs {
		t.maxMs = durationMs
	}
}

// RecordSuccess records a successful operation for error rate tracking.
func (m *Metrics) RecordSuccess(name string) {
	m.recordOutcome(name, false)
}

// RecordError records a failed operation for error rate tracking.
func (m *Metrics) RecordError(name string) {
	m.recordOutcome(name, true)
}

func (m *Metrics) recordOutcome(name string, isError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	er, ok := m.errorRates[name]
	if !ok {
		er = &errorRateState{}
		m.errorRates[name] = er
	}
	er.total++
	if isError {
		er.errors++
	}
}

// SetHealth records whether a dependency is currently reachable.
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	m.mu.Lock()
	m.healthChecks[component] = isHealthy
	m.mu.Unlock()
}

// GetCounters returns a snapshot of all counters.
func (m *Metrics) GetCounters() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		out[name] = v
	}
	return out
}

// GetGauges returns a snapshot of all gauges.
func (m *Metrics) GetGauges() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		out[name] = v
	}
	return out
}

// GetTimers returns a snapshot of all timers with computed averages.
func (m *Metrics) GetTimers() map[string]TimerMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]TimerMetric, len(m.timers))
	for name, t := range m.timers {
		var avg float64
		if t.count > 0 {
			avg = float64(t.totalMs) / float64(t.count)
		}
		out[name] = TimerMetric{
			Count:         t.count,
			TotalTimeMs:   t.totalMs,
			AverageTimeMs: avg,
			MinTimeMs:     t.minMs,
			MaxTimeMs:     t.maxMs,
		}
	}
	return out
}

// GetErrorRates returns a snapshot of all error rates as percentages.
func (m *Metrics) GetErrorRates() map[string]ErrorRateMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ErrorRateMetric, len(m.errorRates))
	for name, er := range m.errorRates {
		var rate float64
		if er.total > 0 {
			rate = float64(er.errors) / float64(er.total) * 100.0
		}
		out[name] = ErrorRateMetric{Total: er.total, Errors: er.errors, ErrorRate: rate}
	}
	return out
}

// GetHealthChecks returns a snapshot of component health.
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool, len(m.healthChecks))
	for name, v := range m.healthChecks {
		out[name] = v
	}
	return out
}

// GetUptimeSeconds returns the process uptime in seconds.
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns everything the collector knows in one document.
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"timers":         m.GetTimers(),
		"error_rates":    m.GetErrorRates(),
		"health_checks":  m.GetHealthChecks(),
	}
}
