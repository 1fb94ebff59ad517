package safety

import (
	"sync"
	"testing"
)

func TestKillAndReset(t *testing.T) {
	m := New()

	if m.IsHalted() {
		t.Fatal("new monitor should not be halted")
	}

	m.Kill(ReasonEmergencyStop)
	if !m.IsHalted() {
		t.Fatal("Kill should set halted")
	}
	if m.Reason() != ReasonEmergencyStop {
		t.Errorf("Reason = %q, want emergency_stop", m.Reason())
	}

	m.Reset()
	if m.IsHalted() {
		t.Error("Reset should clear halted")
	}
	if m.Reason() != ReasonNone {
		t.Errorf("Reason after reset = %q, want empty", m.Reason())
	}
}

func TestIdleHooks(t *testing.T) {
	m := New()
	calls := 0
	m.OnIdle(func() { calls++ })
	m.OnIdle(func() { calls += 10 })

	m.Idle()
	m.Idle()

	if calls != 22 {
		t.Errorf("calls = %d, want 22", calls)
	}
}

func TestConcurrentHaltPolling(t *testing.T) {
	m := New()
	var wg sync.WaitGroup

	// Foreground poller and a concurrent Kill must not race.
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			m.IsHalted()
		}
	}()
	go func() {
		defer wg.Done()
		m.Kill(ReasonUserRequest)
	}()
	wg.Wait()

	if !m.IsHalted() {
		t.Error("monitor should be halted")
	}
}
