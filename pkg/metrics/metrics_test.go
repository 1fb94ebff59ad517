package metrics

import (
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("probe_attempts_total", "test counter")

	c.Inc(nil)
	c.Inc(nil)
	c.Add(Labels{"routine": "endstops"}, 5)

	if got := c.Get(nil); got != 2 {
		t.Errorf("Get(nil) = %d, want 2", got)
	}
	if got := c.Get(Labels{"routine": "endstops"}); got != 5 {
		t.Errorf("Get(labeled) = %d, want 5", got)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("endstop_spread_mm", "test gauge")
	g.Set(nil, 0.042)
	if got := g.Get(nil); got != 0.042 {
		t.Errorf("Get = %v, want 0.042", got)
	}
	g.Set(nil, -1.5)
	if got := g.Get(nil); got != -1.5 {
		t.Errorf("Get = %v, want -1.5", got)
	}
}

func TestRegistryGather(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("runout_faults_total", "runout faults")
	g := NewGauge("delta_radius_mm", "delta radius")
	r.MustRegister(c)
	r.MustRegister(g)

	c.Inc(Labels{"result": "fault"})
	g.Set(nil, 105.25)

	out := r.Gather()
	if !strings.Contains(out, "# TYPE runout_faults_total counter") {
		t.Errorf("missing counter type line:\n%s", out)
	}
	if !strings.Contains(out, `runout_faults_total{result="fault"} 1`) {
		t.Errorf("missing counter sample:\n%s", out)
	}
	if !strings.Contains(out, "delta_radius_mm 105.25") {
		t.Errorf("missing gauge sample:\n%s", out)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewCounter("dup", "first"))
	if err := r.Register(NewCounter("dup", "second")); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestProbeMetricsRegistered(t *testing.T) {
	r := NewRegistry()
	m := NewProbeMetrics(r)
	m.ProbeAttempts.Inc(nil)
	m.CenterDepth.Set(nil, 5.12)

	out := r.Gather()
	if !strings.Contains(out, "zprobe_attempts_total 1") {
		t.Errorf("probe attempts missing:\n%s", out)
	}
	if !strings.Contains(out, "calibration_center_depth_mm 5.12") {
		t.Errorf("center depth missing:\n%s", out)
	}
}
