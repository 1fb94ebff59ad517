// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"zprobe-go-migration/pkg/config"
	perrors "zprobe-go-migration/pkg/errors"
	"zprobe-go-migration/pkg/metrics"
	"zprobe-go-migration/pkg/motion"
	"zprobe-go-migration/pkg/probe"
	"zprobe-go-migration/pkg/safety"
)

type calRig struct {
	sim *motion.SimDelta
	mon *safety.Monitor
	zp  *probe.ZProbe
	st  *Strategy
}

func newCalRig(simCfg motion.SimConfig) *calRig {
	if simCfg.HomeZ == 0 {
		simCfg.HomeZ = 20
	}
	sim := motion.NewSimDelta(simCfg)
	mon := safety.New()
	mon.OnIdle(func() { sim.Advance(0.001) })

	pcfg := probe.DefaultConfig()
	pcfg.IsDelta = true
	zp := probe.New(pcfg, probe.Deps{
		Axes:    [3]motion.Axis{sim.Axis(0), sim.Axis(1), sim.Axis(2)},
		Mover:   sim,
		Monitor: mon,
		Ticker:  sim,
		PinRead: sim.PinRead,
		Forward: sim.Solution().Forward,
		Metrics: metrics.NewProbeMetrics(metrics.NewRegistry()),
	})

	st := New(DefaultConfig(), zp, sim, sim, sim)
	st.SetMetrics(metrics.NewProbeMetrics(metrics.NewRegistry()))
	return &calRig{sim: sim, mon: mon, zp: zp, st: st}
}

func TestFindBedCenterHeight(t *testing.T) {
	r := newCalRig(motion.SimConfig{})

	require.NoError(t, r.st.findBedCenterHeight())

	// Flat bed 20mm below home, 5mm probe clearance.
	require.InDelta(t, 5.0, r.st.ProbeHeightToTrigger(), 0.2)
	require.InDelta(t, 20.0, r.st.BedHeight(), 0.3)
	require.InDelta(t, 20.0, r.sim.BedHeight(), 0.3)
}

func TestProbeFromHeightMeasuredOnce(t *testing.T) {
	r := newCalRig(motion.SimConfig{})

	require.NoError(t, r.st.prepareToProbe())
	first := r.st.probeFromHeight
	require.Greater(t, first, 0.0)

	require.NoError(t, r.st.prepareToProbe())
	require.Equal(t, first, r.st.probeFromHeight)
}

func TestProbeAtSanityFloor(t *testing.T) {
	r := newCalRig(motion.SimConfig{})
	require.NoError(t, r.st.prepareToProbe())

	// Pretend the cached probing height sits almost on the surface, as
	// a probe_height misconfiguration would.
	r.st.probeFromHeight = 19.5
	require.NoError(t, r.st.prepareToProbe())

	_, err := r.st.probeAt(0, 0)
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrSensorFault))
}

func TestCalibrateEndstopsConverges(t *testing.T) {
	r := newCalRig(motion.SimConfig{TowerErrors: [3]float64{0.5, -0.5, 0.2}})

	require.NoError(t, r.st.CalibrateEndstops(EndstopOptions{}))

	trim, err := r.sim.Trim()
	require.NoError(t, err)

	// Normalization: the maximum trim component is exactly zero.
	max := math.Max(trim.X, math.Max(trim.Y, trim.Z))
	require.Equal(t, 0.0, max)
	require.LessOrEqual(t, trim.X, 0.0)
	require.LessOrEqual(t, trim.Y, 0.0)
	require.LessOrEqual(t, trim.Z, 0.0)
}

func TestCalibrateEndstopsIdempotent(t *testing.T) {
	r := newCalRig(motion.SimConfig{TowerErrors: [3]float64{0.4, -0.3, 0}})

	require.NoError(t, r.st.CalibrateEndstops(EndstopOptions{}))
	trim, err := r.sim.Trim()
	require.NoError(t, err)
	probes := r.sim.ProbeMoves

	// Re-running with the trim kept succeeds off the initial three
	// probes alone and leaves the trim untouched.
	require.NoError(t, r.st.CalibrateEndstops(EndstopOptions{KeepTrim: true}))
	again, err := r.sim.Trim()
	require.NoError(t, err)
	require.Equal(t, trim, again)
	require.Equal(t, 3, r.sim.ProbeMoves-probes)
}

func TestCalibrateEndstopsUnavailable(t *testing.T) {
	r := newCalRig(motion.SimConfig{})
	r.sim.TrimEnabled = false

	err := r.st.CalibrateEndstops(EndstopOptions{})
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrConfigEndstops))
}

func TestCalibrateDeltaRadiusConverges(t *testing.T) {
	r := newCalRig(motion.SimConfig{Radius: 107, TrueRadius: 105})

	require.NoError(t, r.st.CalibrateDeltaRadius(RadiusOptions{}))

	g, err := r.sim.BasicGeometry()
	require.NoError(t, err)
	require.InDelta(t, 105.0, g.Radius, 0.2)
}

func TestCalibrateDeltaRadiusUnsupported(t *testing.T) {
	r := newCalRig(motion.SimConfig{})
	r.sim.GeometrySupported = false

	err := r.st.CalibrateDeltaRadius(RadiusOptions{})
	require.Error(t, err)
	require.True(t, perrors.Is(err, perrors.ErrConfigGeometry))
}

func TestDepthMapFlatBed(t *testing.T) {
	r := newCalRig(motion.SimConfig{})

	rep, err := r.st.DepthMap()
	require.NoError(t, err)

	for i, d := range rep.Points {
		require.Zero(t, d, "point %d deviation", i)
	}
	require.Zero(t, rep.BestAbs)
	require.Zero(t, rep.WorstAbs)
}

func TestDepthMapSeesTilt(t *testing.T) {
	r := newCalRig(motion.SimConfig{TowerErrors: [3]float64{0.4, 0, 0}})

	rep, err := r.st.DepthMap()
	require.NoError(t, err)

	// The bed is lower under the errored tower (deviation negative
	// relative to center) and higher opposite it.
	require.Less(t, rep.Points[pointTowerX], 0.0)
	require.Greater(t, rep.Points[pointOppositeX], 0.0)
	require.Greater(t, rep.WorstAbs, 0.0)
}

func TestDepthMapSnapshotsPrevious(t *testing.T) {
	r := newCalRig(motion.SimConfig{TowerErrors: [3]float64{0.4, 0, 0}})

	first, err := r.st.DepthMap()
	require.NoError(t, err)

	_, err = r.st.DepthMap()
	require.NoError(t, err)

	prev := r.st.PreviousDepthMap()
	for i := range prev {
		require.Equal(t, float64(first.Steps[i]), prev[i], "point %d", i)
	}
}

func TestSaveDepthMapClearsCurrent(t *testing.T) {
	r := newCalRig(motion.SimConfig{TowerErrors: [3]float64{0.4, 0, 0}})

	first, err := r.st.DepthMap()
	require.NoError(t, err)
	require.Greater(t, first.WorstAbs, 0.0)

	r.st.SaveDepthMap()
	prev := r.st.PreviousDepthMap()
	for i := range prev {
		require.Equal(t, float64(first.Steps[i]), prev[i], "point %d", i)
	}

	// The save cleared the working map, so the next scan snapshots an
	// empty previous map, not the saved one again.
	_, err = r.st.DepthMap()
	require.NoError(t, err)
	for i, v := range r.st.PreviousDepthMap() {
		require.Zero(t, v, "point %d", i)
	}
}

func TestDirtyGeometryForcesRecalibration(t *testing.T) {
	r := newCalRig(motion.SimConfig{TowerErrors: [3]float64{0.3, -0.2, 0}})
	r.st.MarkGeometryDirty()

	_, err := r.st.DepthMap()
	require.NoError(t, err)

	// The forced endstop pass normalized the trim.
	trim, err := r.sim.Trim()
	require.NoError(t, err)
	max := math.Max(trim.X, math.Max(trim.Y, trim.Z))
	require.Equal(t, 0.0, max)
}

func TestRepeatabilityRun(t *testing.T) {
	r := newCalRig(motion.SimConfig{})

	noise := []float64{0, 0.0125, 0.025, 0.0125, 0}
	idx := 0
	r.sim.SetNoise(func() float64 {
		v := noise[idx%len(noise)]
		idx++
		return v
	})

	rep, err := r.st.Repeatability(RepeatOptions{Samples: 5})
	require.NoError(t, err)
	require.Len(t, rep.Samples, 5)
	require.Zero(t, rep.Discarded)
	require.Greater(t, rep.MeanSteps, 0.0)
	require.NotEqual(t, VerdictUnusable, rep.Verdict)
}

func TestRepeatabilityEccentricityReturnsToOrigin(t *testing.T) {
	r := newCalRig(motion.SimConfig{})

	rep, err := r.st.Repeatability(RepeatOptions{Samples: 3, Eccentricity: true})
	require.NoError(t, err)
	require.Len(t, rep.Samples, 3)

	// All samples probe the same flat origin depth.
	require.Zero(t, rep.RangeSteps)
}

func TestRepeatabilityRestoresOverrides(t *testing.T) {
	r := newCalRig(motion.SimConfig{})

	savedAccel := r.sim.Acceleration()
	savedFeed := r.zp.SlowFeedrate()
	savedDebounce := r.zp.DebounceCount()

	_, err := r.st.Repeatability(RepeatOptions{
		Samples:      2,
		Acceleration: 3000,
		Feedrate:     10,
		Debounce:     2,
	})
	require.NoError(t, err)

	require.Equal(t, savedAccel, r.sim.Acceleration())
	require.Equal(t, savedFeed, r.zp.SlowFeedrate())
	require.Equal(t, savedDebounce, r.zp.DebounceCount())
}

func TestProbeTriforceFlatBed(t *testing.T) {
	r := newCalRig(motion.SimConfig{})

	rep, err := r.st.ProbeTriforce()
	require.NoError(t, err)
	require.InDelta(t, 0.0, rep.Mean, 0.05)
	require.InDelta(t, 0.0, rep.Intersextile, 0.05)
}

func TestProbeTriforceOpposingTiltsDoNotCancel(t *testing.T) {
	// Equal and opposite tower errors tilt the bed through its center:
	// the signed deviations sum to zero, but the quality score has to
	// reflect the tilt, not average it away.
	r := newCalRig(motion.SimConfig{TowerErrors: [3]float64{0.4, -0.4, 0}})

	rep, err := r.st.ProbeTriforce()
	require.NoError(t, err)

	require.Greater(t, rep.Mean, 0.2)
	require.Greater(t, rep.Intersextile, 0.2)
	require.InDelta(t, -0.4, rep.Deviations[0], 0.05)
	require.InDelta(t, 0.4, rep.Deviations[1], 0.05)
}

func TestLoadConfigClampsSmoothing(t *testing.T) {
	src := `
[calibration]
probe_smoothing: 25
`
	cfg, err := config.Parse(strings.NewReader(src))
	require.NoError(t, err)

	c, err := LoadConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, maxProbeSmoothing, c.ProbeSmoothing)
}

func TestProbeSmoothingCeiling(t *testing.T) {
	r := newCalRig(motion.SimConfig{})
	require.NoError(t, r.st.prepareToProbe())

	before := r.sim.ProbeMoves
	_, err := r.st.probeAtSmoothed(0, 0, 99)
	require.NoError(t, err)
	require.Equal(t, maxProbeSmoothing, r.sim.ProbeMoves-before)
}
