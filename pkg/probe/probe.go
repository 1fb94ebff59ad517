// Probe trigger state machine.
//
// A dedicated probe move commands the Z actuator (all three actuators in
// lock-step on a delta) directly, bypassing the planner, while the
// acceleration tick handler ramps speed and the foreground blocks in a
// cooperative wait polling the sensor line. See tick.go for the interrupt
// side and axisprobe.go for the planner-ridden straight probe.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package probe

import (
	"math"
	"sync/atomic"
	"time"

	perrors "zprobe-go-migration/pkg/errors"
	"zprobe-go-migration/pkg/log"
	"zprobe-go-migration/pkg/metrics"
	"zprobe-go-migration/pkg/motion"
	"zprobe-go-migration/pkg/safety"
)

// Deps are the collaborators a ZProbe drives.
type Deps struct {
	Axes    [3]motion.Axis
	Mover   motion.Mover
	Monitor *safety.Monitor
	Ticker  motion.TickAttacher

	// PinRead is the raw sensor line; polarity comes from the config.
	PinRead func() bool

	// Forward maps actuator positions to cartesian, for straight-probe
	// readback. Optional when straight probes are unused.
	Forward func([3]float64) [3]float64

	Log     *log.Logger
	Metrics *metrics.ProbeMetrics
}

// ZProbe owns a single probe attempt at a time. It is single-owner: only
// one foreground routine may call its probe methods; the tick handler is
// the only concurrent entrant and touches nothing but the state cell and
// the axis drivers.
type ZProbe struct {
	cfg    Config
	axes   [3]motion.Axis
	mover  motion.Mover
	mon    *safety.Monitor
	sensor *SensorLine
	fwd    func([3]float64) [3]float64
	logger *log.Logger
	pm     *metrics.ProbeMetrics

	cell stateCell

	// Straight-probe sampler state, see axisprobe.go.
	probing       atomic.Bool
	probeDetected atomic.Bool
}

var nan = math.NaN()

// New creates a ZProbe and attaches its tick handlers to the timer source.
func New(cfg Config, deps Deps) *ZProbe {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 1000
	}
	if deps.Log == nil {
		deps.Log = log.New("probe")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultProbeMetrics()
	}
	z := &ZProbe{
		cfg:    cfg,
		axes:   deps.Axes,
		mover:  deps.Mover,
		mon:    deps.Monitor,
		sensor: NewSensorLine(deps.PinRead, cfg.InvertPin),
		fwd:    deps.Forward,
		logger: deps.Log,
		pm:     deps.Metrics,
	}
	if deps.Ticker != nil {
		deps.Ticker.Attach(cfg.TickRateHz, z.AccelerationTick)
		// The straight-probe sampler runs on the slow ticker.
		deps.Ticker.Attach(samplerRateHz, z.ReadProbe)
	}
	return z
}

// Sensor returns the polarity-applying sensor line.
func (z *ZProbe) Sensor() *SensorLine {
	return z.sensor
}

// Config accessors and the runtime setters used by calibration routines.

func (z *ZProbe) SlowFeedrate() float64 { return z.cfg.SlowFeedrate }
func (z *ZProbe) FastFeedrate() float64 { return z.cfg.FastFeedrate }
func (z *ZProbe) ProbeHeight() float64  { return z.cfg.ProbeHeight }
func (z *ZProbe) DebounceCount() int    { return z.cfg.DebounceCount }

func (z *ZProbe) SetSlowFeedrate(fr float64) { z.cfg.SlowFeedrate = fr }
func (z *ZProbe) SetFastFeedrate(fr float64) { z.cfg.FastFeedrate = fr }
func (z *ZProbe) SetDebounceCount(n int) {
	if n < 0 {
		n = 0
	}
	z.cfg.DebounceCount = n
}

// DecelerateOnTrigger reports whether post-trigger deceleration is active.
func (z *ZProbe) DecelerateOnTrigger() bool { return z.cfg.DecelerateOnTrigger }

// SetDecelerateOnTrigger enables or disables post-trigger deceleration.
// Enabling requires a configured runout distance.
func (z *ZProbe) SetDecelerateOnTrigger(enable bool) {
	if enable && z.cfg.DecelerateRunout < 0 {
		z.logger.Warnf("can't enable on-trigger deceleration because decelerate_runout isn't set")
		z.cfg.DecelerateOnTrigger = false
		return
	}
	z.cfg.DecelerateOnTrigger = enable
}

// StepsAtDecelEnd returns the stepped distance where deceleration ended,
// which is the retraction distance after a decelerated probe.
func (z *ZProbe) StepsAtDecelEnd() int {
	return int(z.cell.stepsAtDecelEnd.Load())
}

// ZStepsToMM converts Z steps to millimeters.
func (z *ZProbe) ZStepsToMM(steps float64) float64 {
	return steps / z.axes[motion.ZAxis].StepsPerMM()
}

// RunProbeFast runs a probe at the fast or slow configured feedrate.
func (z *ZProbe) RunProbeFast(fast bool) (int, error) {
	fr := z.cfg.SlowFeedrate
	if fast {
		fr = z.cfg.FastFeedrate
	}
	return z.RunProbe(fr, -1, false)
}

// RunProbe runs a single directed probe move: command the actuators toward
// the bed, wait for the debounced trigger, stop (or decelerate), and report
// the Z stepped distance. The caller is responsible for checking that the
// sensor is not already triggered before starting.
//
// A maxDist < 0 means twice the configured maximum travel.
func (z *ZProbe) RunProbe(feedrate, maxDist float64, reverse bool) (int, error) {
	z.cell.reset()
	z.pm.ProbeAttempts.Inc(nil)

	// Not a block move, so clear the last-block bookkeeping.
	for _, a := range z.axes {
		a.SetMovedLastBlock(false)
	}

	z.mover.EnableMotors()
	z.cell.targetRate.Store(feedrate * z.axes[motion.ZAxis].StepsPerMM())

	maxz := maxDist
	if maxDist < 0 {
		maxz = z.cfg.MaxTravel * 2
	}

	// Default probes toward the bed; ReverseZ or an explicit reverse flips
	// it, and both together cancel out.
	dir := z.cfg.ReverseZ == reverse
	z.axes[motion.ZAxis].Move(dir, int(maxz*z.axes[motion.ZAxis].StepsPerMM()))
	if z.cfg.IsDelta {
		// A delta needs all three actuators in lock-step.
		z.axes[motion.XAxis].Move(dir, int(maxz*z.axes[motion.XAxis].StepsPerMM()))
		z.axes[motion.YAxis].Move(dir, int(maxz*z.axes[motion.YAxis].StepsPerMM()))
	}

	z.cell.mode.Store(modeAccelerating)
	z.cell.running.Store(true)

	steps, err := z.waitForTrigger()

	z.cell.running.Store(false)
	z.cell.mode.Store(modeIdle)

	if err != nil {
		if perrors.Is(err, perrors.ErrSensorFault) {
			z.pm.SensorFaults.Inc(nil)
		}
		if perrors.Is(err, perrors.ErrSafetyRunout) {
			z.pm.RunoutFaults.Inc(nil)
		}
		return steps, err
	}
	z.pm.ProbeTriggers.Inc(nil)
	z.pm.ProbeSteps.Set(nil, float64(steps))
	return steps, nil
}

// waitForTrigger is the cooperative wait: yield to the idle hook, poll the
// halt signal, the axis motion state, and the debounced sensor line.
func (z *ZProbe) waitForTrigger() (int, error) {
	debounce := 0

	for {
		z.yield()
		if z.mon.IsHalted() {
			return 0, perrors.Canceled("probe")
		}

		// If no relevant axis is moving, the move exhausted without a
		// touch.
		if !z.anyProbeAxisMoving() {
			return 0, perrors.SensorFault("probe not triggered within travel limit")
		}

		if !z.sensor.Triggered() {
			// Not hit yet; any low reading resets the debounce counter.
			debounce = 0
			continue
		}
		if debounce < z.cfg.DebounceCount {
			debounce++
			continue
		}

		// Accepted trigger: capture the result before anything stops.
		steps := z.axes[motion.ZAxis].GetStepped()

		if !z.cfg.DecelerateOnTrigger {
			z.stopProbeAxes()
			return steps, nil
		}

		// Publish the runout ceiling, then hand the move to the tick
		// handler by flipping the mode. This ordering is the handoff:
		// the tick handler never reads the ceiling before it observes
		// the decelerating mode.
		runoutSteps := int64(z.cfg.DecelerateRunout * z.axes[motion.ZAxis].StepsPerMM())
		z.cell.runoutCeiling.Store(int64(steps) + runoutSteps)
		z.cell.mode.Store(modeDecelerating)

		for z.anyProbeAxisMoving() {
			z.yield()
			if z.mon.IsHalted() {
				return 0, perrors.Canceled("probe")
			}
		}

		if z.cell.exceededRunout.Load() {
			z.logger.Warnf("runout protection was triggered")
			return steps, perrors.RunoutExceeded(int(z.cell.stepsAtDecelEnd.Load()))
		}
		return steps, nil
	}
}

func (z *ZProbe) yield() {
	z.mon.Idle()
	if z.cfg.PollInterval > 0 {
		time.Sleep(z.cfg.PollInterval)
	}
}

func (z *ZProbe) anyProbeAxisMoving() bool {
	if z.axes[motion.ZAxis].IsMoving() {
		return true
	}
	if z.cfg.IsDelta {
		return z.axes[motion.XAxis].IsMoving() || z.axes[motion.YAxis].IsMoving()
	}
	return false
}

func (z *ZProbe) stopProbeAxes() {
	if z.cfg.IsDelta {
		for c := motion.XAxis; c <= motion.ZAxis; c++ {
			if z.axes[c].IsMoving() {
				z.axes[c].Move(false, 0)
			}
		}
		return
	}
	if z.axes[motion.ZAxis].IsMoving() {
		z.axes[motion.ZAxis].Move(false, 0)
	}
}

// ReturnProbe retracts by the given stepped distance back to the starting
// height, at twice the slow feedrate capped by the fast feedrate.
func (z *ZProbe) ReturnProbe(steps int) error {
	fr := z.cfg.SlowFeedrate * 2
	if z.cfg.ReturnFeedrate > 0 {
		fr = z.cfg.ReturnFeedrate
	}
	if fr > z.cfg.FastFeedrate {
		fr = z.cfg.FastFeedrate
	}

	err := z.mover.CoordinatedMove(nan, nan, z.ZStepsToMM(float64(steps)), fr, true)

	for _, a := range z.axes {
		a.Move(false, 0)
	}
	return err
}
