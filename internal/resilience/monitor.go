// Package resilience provides the connection health monitor, retry helpers
// and the error taxonomy for upstream registry calls.
package resilience

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of the monitor's circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state — requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many consecutive failures — requests are rejected.
	CircuitOpen
	// CircuitHalfOpen allows a single probe request to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Status classifies overall connection health.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// durationWindow is the number of samples in the rolling average.
const durationWindow = 10

// MonitorConfig controls the circuit breaker inside the Monitor.
type MonitorConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Default: 3.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a single
	// half-open probe is allowed through. Default: 30s.
	ResetTimeout time.Duration

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState)
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
	}
}

// Metrics is a snapshot of the monitor's rolling connection counters.
// Lifetime is the process lifetime unless explicitly reset.
type Metrics struct {
	TotalAttempts       int64      `json:"total_attempts"`
	SuccessfulAttempts  int64      `json:"successful_attempts"`
	FailedAttempts      int64      `json:"failed_attempts"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	AverageDurationMS   float64    `json:"average_duration_ms"`
	LastAttemptAt       *time.Time `json:"last_attempt_at"`
}

// SuccessRate returns the success percentage over all recorded attempts,
// or 100 when nothing has been attempted yet.
func (m Metrics) SuccessRate() float64 {
	if m.TotalAttempts == 0 {
		return 100
	}
	return float64(m.SuccessfulAttempts) / float64(m.TotalAttempts) * 100
}

// Report is the operator-facing health classification.
type Report struct {
	Status              Status     `json:"status"`
	CircuitBreakerOpen  bool       `json:"circuit_breaker_active"`
	SuccessRate         int        `json:"success_rate"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastAttempt         *time.Time `json:"last_attempt"`
	Issues              []string   `json:"issues"`
	Recommendations     []string   `json:"recommendations"`
}

// Monitor guards all upstream calls: it tracks connection metrics and trips
// a circuit breaker after repeated failures. Construct one per service
// instance and pass it by reference; it is safe for concurrent use.
type Monitor struct {
	cfg MonitorConfig

	mu    sync.Mutex
	state CircuitState

	totalAttempts       int64
	successfulAttempts  int64
	failedAttempts      int64
	consecutiveFailures int
	lastAttemptAt       time.Time
	lastFailureAt       time.Time
	lastFailureReason   string

	// durations is a ring of the last durationWindow sample values (ms).
	durations []float64

	probeInFlight bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewMonitor creates a connection health monitor with the given config.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Monitor{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Allow reports whether a new upstream call may be attempted. When the
// circuit has been open for at least ResetTimeout it admits exactly one
// half-open probe; further callers are rejected until the probe's result
// is recorded.
func (m *Monitor) Allow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if m.nowFunc().Sub(m.lastFailureAt) >= m.cfg.ResetTimeout {
			m.transition(CircuitHalfOpen)
			m.probeInFlight = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if m.probeInFlight {
			return false
		}
		m.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordAttempt counts an attempted upstream call and timestamps it.
func (m *Monitor) RecordAttempt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalAttempts++
	m.lastAttemptAt = m.nowFunc()
}

// RecordSuccess resets the failure streak and folds the call duration into
// the rolling average. A success recorded while half-open closes the circuit.
func (m *Monitor) RecordSuccess(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.successfulAttempts++
	m.consecutiveFailures = 0
	m.probeInFlight = false

	m.durations = append(m.durations, float64(d.Milliseconds()))
	if len(m.durations) > durationWindow {
		m.durations = m.durations[len(m.durations)-durationWindow:]
	}

	if m.state != CircuitClosed {
		m.transition(CircuitClosed)
	}
}

// RecordFailure counts a failed call. Crossing the failure threshold, or any
// failure while half-open, opens the circuit.
func (m *Monitor) RecordFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failedAttempts++
	m.consecutiveFailures++
	m.lastFailureAt = m.nowFunc()
	m.lastFailureReason = reason
	m.probeInFlight = false

	switch m.state {
	case CircuitClosed:
		if m.consecutiveFailures >= m.cfg.FailureThreshold {
			m.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		m.transition(CircuitOpen)
	}
}

// State returns the current circuit state.
func (m *Monitor) State() CircuitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == CircuitOpen && m.nowFunc().Sub(m.lastFailureAt) >= m.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return m.state
}

// Snapshot returns a copy of the current metrics.
func (m *Monitor) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metricsLocked()
}

func (m *Monitor) metricsLocked() Metrics {
	snap := Metrics{
		TotalAttempts:       m.totalAttempts,
		SuccessfulAttempts:  m.successfulAttempts,
		FailedAttempts:      m.failedAttempts,
		ConsecutiveFailures: m.consecutiveFailures,
	}
	if len(m.durations) > 0 {
		var sum float64
		for _, d := range m.durations {
			sum += d
		}
		snap.AverageDurationMS = sum / float64(len(m.durations))
	}
	if !m.lastAttemptAt.IsZero() {
		t := m.lastAttemptAt
		snap.LastAttemptAt = &t
	}
	return snap
}

// HealthStatus classifies the connection: healthy when the success rate is
// at least 90% with no failure streak, degraded at 70% with a streak below
// the threshold, unhealthy otherwise.
func (m *Monitor) HealthStatus() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.metricsLocked()
	rate := snap.SuccessRate()

	r := Report{
		CircuitBreakerOpen:  m.state == CircuitOpen,
		SuccessRate:         int(rate),
		ConsecutiveFailures: snap.ConsecutiveFailures,
		LastAttempt:         snap.LastAttemptAt,
		Issues:              []string{},
		Recommendations:     []string{},
	}

	switch {
	case rate >= 90 && snap.ConsecutiveFailures == 0:
		r.Status = StatusHealthy
	case rate >= 70 && snap.ConsecutiveFailures < m.cfg.FailureThreshold:
		r.Status = StatusDegraded
		r.Issues = append(r.Issues, fmt.Sprintf("upstream success rate dropped to %d%%", r.SuccessRate))
		r.Recommendations = append(r.Recommendations, "check upstream registry availability and recent error logs")
	default:
		r.Status = StatusUnhealthy
		r.Issues = append(r.Issues, fmt.Sprintf("upstream success rate at %d%% with %d consecutive failures", r.SuccessRate, snap.ConsecutiveFailures))
		if m.lastFailureReason != "" {
			r.Issues = append(r.Issues, "last failure: "+m.lastFailureReason)
		}
		r.Recommendations = append(r.Recommendations,
			"verify upstream credentials and network reachability",
			"reset the circuit breaker once the upstream recovers (POST /health {\"action\":\"reset_circuit_breaker\"})",
		)
	}

	if r.CircuitBreakerOpen {
		r.Issues = append(r.Issues, "circuit breaker is open; upstream calls are being rejected")
	}

	return r
}

// ResetCircuit forces the circuit back to closed and clears the failure
// streak. Explicit operator action.
func (m *Monitor) ResetCircuit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != CircuitClosed {
		m.transition(CircuitClosed)
	}
	m.consecutiveFailures = 0
	m.probeInFlight = false
}

// ResetMetrics clears all counters. Explicit operator action.
func (m *Monitor) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalAttempts = 0
	m.successfulAttempts = 0
	m.failedAttempts = 0
	m.consecutiveFailures = 0
	m.durations = nil
	m.lastAttemptAt = time.Time{}
	m.lastFailureReason = ""
}

func (m *Monitor) transition(to CircuitState) {
	from := m.state
	m.state = to
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(from, to)
	}
}
