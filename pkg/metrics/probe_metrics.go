// Probe and calibration metrics definitions
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import "sync"

// ProbeMetrics holds all probing and calibration metrics
type ProbeMetrics struct {
	// Probe trigger state machine
	ProbeAttempts  *Counter
	ProbeTriggers  *Counter
	SensorFaults   *Counter
	RunoutFaults   *Counter
	ProbeSteps     *Gauge

	// Calibration loops
	CalibrationRuns       *Counter
	CalibrationIterations *Counter
	EndstopSpread         *Gauge
	DeltaRadius           *Gauge
	CenterDepth           *Gauge // probe-height-to-trigger at bed center, mm

	// Repeatability
	DiscardedSamples *Counter
	RepeatRange      *Gauge
}

var (
	probeMetricsOnce sync.Once
	probeMetrics     *ProbeMetrics
)

// NewProbeMetrics creates the probe metric set and registers it.
func NewProbeMetrics(r *Registry) *ProbeMetrics {
	m := &ProbeMetrics{
		ProbeAttempts:         NewCounter("zprobe_attempts_total", "Dedicated probe moves started"),
		ProbeTriggers:         NewCounter("zprobe_triggers_total", "Probe moves that ended in an accepted trigger"),
		SensorFaults:          NewCounter("zprobe_sensor_faults_total", "Probe moves exhausted without trigger"),
		RunoutFaults:          NewCounter("zprobe_runout_faults_total", "Deceleration runout safety faults"),
		ProbeSteps:            NewGauge("zprobe_last_steps", "Steps measured by the last probe"),
		CalibrationRuns:       NewCounter("calibration_runs_total", "Calibration routines started, by routine and result"),
		CalibrationIterations: NewCounter("calibration_iterations_total", "Calibration loop iterations, by routine"),
		EndstopSpread:         NewGauge("calibration_endstop_spread_mm", "Last measured max-min tower spread"),
		DeltaRadius:           NewGauge("calibration_delta_radius_mm", "Delta radius as last written"),
		CenterDepth:           NewGauge("calibration_center_depth_mm", "Probe height to trigger at bed center"),
		DiscardedSamples:      NewCounter("repeatability_discarded_total", "Samples discarded by the sanity ceiling"),
		RepeatRange:           NewGauge("repeatability_range_mm", "Range of the last repeatability run"),
	}
	r.MustRegister(m.ProbeAttempts)
	r.MustRegister(m.ProbeTriggers)
	r.MustRegister(m.SensorFaults)
	r.MustRegister(m.RunoutFaults)
	r.MustRegister(m.ProbeSteps)
	r.MustRegister(m.CalibrationRuns)
	r.MustRegister(m.CalibrationIterations)
	r.MustRegister(m.EndstopSpread)
	r.MustRegister(m.DeltaRadius)
	r.MustRegister(m.CenterDepth)
	r.MustRegister(m.DiscardedSamples)
	r.MustRegister(m.RepeatRange)
	return m
}

// DefaultProbeMetrics returns a process-wide probe metric set backed by its
// own registry.
func DefaultProbeMetrics() *ProbeMetrics {
	probeMetricsOnce.Do(func() {
		probeMetrics = NewProbeMetrics(NewRegistry())
	})
	return probeMetrics
}
