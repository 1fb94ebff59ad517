// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package probe

import (
	"testing"

	"github.com/stretchr/testify/require"

	perrors "zprobe-go-migration/pkg/errors"
	"zprobe-go-migration/pkg/metrics"
	"zprobe-go-migration/pkg/motion"
	"zprobe-go-migration/pkg/safety"
)

// rig wires a ZProbe to a simulated delta whose timer is driven from the
// monitor's idle hook, so every foreground wait iteration advances the
// machine by one tick.
type rig struct {
	sim *motion.SimDelta
	mon *safety.Monitor
	z   *ZProbe
	pm  *metrics.ProbeMetrics
}

func newRig(simCfg motion.SimConfig, mutate func(*Config)) *rig {
	sim := motion.NewSimDelta(simCfg)
	mon := safety.New()
	mon.OnIdle(func() { sim.Advance(0.001) })

	cfg := DefaultConfig()
	cfg.IsDelta = true
	if mutate != nil {
		mutate(&cfg)
	}

	pm := metrics.NewProbeMetrics(metrics.NewRegistry())
	z := New(cfg, Deps{
		Axes:    [3]motion.Axis{sim.Axis(0), sim.Axis(1), sim.Axis(2)},
		Mover:   sim,
		Monitor: mon,
		Ticker:  sim,
		PinRead: sim.PinRead,
		Forward: sim.Solution().Forward,
		Metrics: pm,
	})
	return &rig{sim: sim, mon: mon, z: z, pm: pm}
}

// Small home height keeps the tick-at-a-time runs short.
func quickSim() motion.SimConfig {
	return motion.SimConfig{HomeZ: 20}
}

func TestRunProbeTriggersAtSurface(t *testing.T) {
	r := newRig(quickSim(), nil)

	steps, err := r.z.RunProbeFast(true)
	require.NoError(t, err)

	// Flat bed at z=0, start at z=20: 20mm of travel.
	require.InDelta(t, 20.0, r.z.ZStepsToMM(float64(steps)), 0.2)

	require.Equal(t, uint64(1), r.pm.ProbeAttempts.Get(nil))
	require.Equal(t, uint64(1), r.pm.ProbeTriggers.Get(nil))
}

func TestRunProbeDirectionSelection(t *testing.T) {
	// An explicit reverse flips the move away from the bed, so it
	// exhausts without ever touching.
	r := newRig(quickSim(), nil)
	_, err := r.z.RunProbe(r.z.FastFeedrate(), 5, true)
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrSensorFault))

	// reverse_z flips it back: both together probe toward the bed.
	r = newRig(quickSim(), func(c *Config) {
		c.ReverseZ = true
	})
	steps, err := r.z.RunProbe(r.z.FastFeedrate(), -1, true)
	require.NoError(t, err)
	require.InDelta(t, 20.0, r.z.ZStepsToMM(float64(steps)), 0.2)
}

func TestRunProbeStopsAllTowers(t *testing.T) {
	r := newRig(quickSim(), nil)

	_, err := r.z.RunProbeFast(true)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.False(t, r.sim.Axis(i).IsMoving(), "axis %d still moving after probe", i)
	}
}

func TestRunProbeExhaustedIsSensorFault(t *testing.T) {
	r := newRig(quickSim(), nil)

	// 5mm of allowed travel from 20mm up never reaches the bed.
	_, err := r.z.RunProbe(r.z.FastFeedrate(), 5, false)
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrSensorFault))
	require.Equal(t, uint64(1), r.pm.SensorFaults.Get(nil))
	require.Equal(t, uint64(0), r.pm.ProbeTriggers.Get(nil))
}

func TestRunProbeCanceledOnHalt(t *testing.T) {
	r := newRig(quickSim(), nil)

	calls := 0
	r.mon.OnIdle(func() {
		calls++
		if calls == 50 {
			r.mon.Kill(safety.ReasonEmergencyStop)
		}
	})

	_, err := r.z.RunProbeFast(true)
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrCanceled))
}

func TestDebounceRejectsFlappingSensor(t *testing.T) {
	r := newRig(quickSim(), func(c *Config) {
		c.DebounceCount = 2
	})

	// Alternating readings never produce the 3 consecutive highs a
	// debounce count of 2 demands, so the move exhausts.
	calls := 0
	r.z.sensor = NewSensorLine(func() bool {
		calls++
		return calls%2 == 0
	}, false)

	_, err := r.z.RunProbe(r.z.FastFeedrate(), 5, false)
	require.True(t, perrors.Is(err, perrors.ErrSensorFault))
}

func TestDebounceAcceptsSteadySensor(t *testing.T) {
	r := newRig(quickSim(), func(c *Config) {
		c.DebounceCount = 3
	})

	steps, err := r.z.RunProbeFast(true)
	require.NoError(t, err)

	// The confirming polls run at full speed, so acceptance lands a few
	// tenths of a millimeter past the touch.
	require.InDelta(t, 20.0, r.z.ZStepsToMM(float64(steps)), 0.5)
}

func TestDecelerateStopsWithinRunout(t *testing.T) {
	r := newRig(quickSim(), func(c *Config) {
		c.DecelerateRunout = 1.0
		c.DecelerateOnTrigger = true
	})

	// The slow feedrate stops well inside 1mm of runout.
	steps, err := r.z.RunProbeFast(false)
	require.NoError(t, err)

	end := r.z.StepsAtDecelEnd()
	require.GreaterOrEqual(t, end, steps)
	require.LessOrEqual(t, float64(end-steps), 1.0*r.sim.Axis(motion.ZAxis).StepsPerMM())
	require.Equal(t, uint64(0), r.pm.RunoutFaults.Get(nil))
}

func TestDecelerateRunoutFault(t *testing.T) {
	r := newRig(quickSim(), func(c *Config) {
		c.DecelerateRunout = 0.1
		c.DecelerateOnTrigger = true
	})

	// At the fast feedrate the ramp-down needs far more than 0.1mm, so
	// the tick handler must force the stop and flag the fault.
	_, err := r.z.RunProbeFast(true)
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrSafetyRunout))
	require.Equal(t, uint64(1), r.pm.RunoutFaults.Get(nil))

	for i := 0; i < 3; i++ {
		require.False(t, r.sim.Axis(i).IsMoving(), "axis %d still moving after runout stop", i)
	}
}

func TestSetDecelerateOnTriggerRequiresRunout(t *testing.T) {
	r := newRig(quickSim(), nil) // DecelerateRunout defaults to -1

	r.z.SetDecelerateOnTrigger(true)
	require.False(t, r.z.DecelerateOnTrigger())
}

func TestReturnProbeRetracts(t *testing.T) {
	r := newRig(quickSim(), nil)

	steps, err := r.z.RunProbeFast(true)
	require.NoError(t, err)
	require.NoError(t, r.z.ReturnProbe(steps))

	require.InDelta(t, 20.0, r.sim.AxisPosition()[2], 0.2)
}

func TestStraightProbeTouch(t *testing.T) {
	r := newRig(quickSim(), nil)

	res, err := r.z.StraightProbe(0, 0, -5, 30, false, false)
	require.NoError(t, err)
	require.True(t, res.Triggered)

	// The sampler observes the move in 0.25mm segments, so the stop is
	// within one segment of the surface.
	require.InDelta(t, 0.0, res.Position[2], 0.3)
}

func TestStraightProbeStrictMissHalts(t *testing.T) {
	r := newRig(quickSim(), nil)

	res, err := r.z.StraightProbe(0, 0, 5, 30, true, false)
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrSensorFault))
	require.False(t, res.Triggered)
	require.True(t, r.mon.IsHalted())
	require.Equal(t, safety.ReasonProbeFail, r.mon.Reason())
}

func TestStraightProbeAlreadyTriggered(t *testing.T) {
	r := newRig(quickSim(), nil)
	r.sim.ResetAxisPosition([3]float64{0, 0, -1})

	_, err := r.z.StraightProbe(0, 0, -5, 30, false, false)
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrSensorFault))
}

func TestStraightProbeInvertedProbesAway(t *testing.T) {
	r := newRig(quickSim(), nil)
	r.sim.ResetAxisPosition([3]float64{0, 0, -1})

	res, err := r.z.StraightProbe(0, 0, 5, 30, false, true)
	require.NoError(t, err)
	require.True(t, res.Triggered)
	require.InDelta(t, 0.0, res.Position[2], 0.3)

	// The temporary inversion must not leak.
	require.False(t, r.z.Sensor().IsInverting())
}
