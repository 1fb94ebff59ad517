// Package safety provides the global halt (kill) signal and the idle hook
// registry. Probe waits and calibration loops poll the halt signal at every
// yield point, and dispatch the idle hooks so other firmware duties (serial
// I/O, watchdogs) are serviced while the foreground busy-waits.
package safety

import (
	"sync"
	"sync/atomic"
)

// HaltReason describes why the machine was halted.
type HaltReason string

const (
	ReasonNone          HaltReason = ""
	ReasonEmergencyStop HaltReason = "emergency_stop"
	ReasonProbeFail     HaltReason = "probe_fail"
	ReasonUserRequest   HaltReason = "user_request"
)

// IdleFunc is a housekeeping callback. It must not block.
type IdleFunc func()

// Monitor owns the halt flag and the idle hooks. The zero value is ready
// to use.
type Monitor struct {
	halted atomic.Bool

	mu     sync.RWMutex
	reason HaltReason
	hooks  []IdleFunc
}

// New creates a Monitor.
func New() *Monitor {
	return &Monitor{}
}

// Kill raises the halt signal. All in-progress probe and calibration
// operations abort at their next yield point.
func (m *Monitor) Kill(reason HaltReason) {
	m.mu.Lock()
	m.reason = reason
	m.mu.Unlock()
	m.halted.Store(true)
}

// IsHalted reports whether the machine is in an emergency-stopped state.
func (m *Monitor) IsHalted() bool {
	return m.halted.Load()
}

// Reason returns why the machine was halted.
func (m *Monitor) Reason() HaltReason {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// Reset clears the halt state, e.g. after an M999-style recovery.
func (m *Monitor) Reset() {
	m.halted.Store(false)
	m.mu.Lock()
	m.reason = ReasonNone
	m.mu.Unlock()
}

// OnIdle registers a housekeeping hook.
func (m *Monitor) OnIdle(fn IdleFunc) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Idle dispatches the housekeeping hooks once. Called at every wait-loop
// iteration in the probing core.
func (m *Monitor) Idle() {
	m.mu.RLock()
	hooks := m.hooks
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}
