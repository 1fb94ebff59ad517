// Package calibrate implements the iterative calibration routines built on
// the probe: endstop trim leveling, delta radius convergence, depth
// mapping, repeatability statistics and the triforce quality scan.
//
// A Strategy is single-owner: one calibration routine runs at a time and
// owns the geometry parameters and trim vector for its whole duration.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"math"

	"zprobe-go-migration/pkg/config"
	perrors "zprobe-go-migration/pkg/errors"
	"zprobe-go-migration/pkg/kinematics"
	"zprobe-go-migration/pkg/log"
	"zprobe-go-migration/pkg/metrics"
	"zprobe-go-migration/pkg/motion"
	"zprobe-go-migration/pkg/probe"
)

// A probed average below this many steps means the probe was already at
// (or nearly at) the surface when the move started, which points at a
// probe_height misconfiguration.
const minPlausibleSteps = 100

// Smoothing averages between 1 and 10 probes per point.
const maxProbeSmoothing = 10

func clampSmoothing(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxProbeSmoothing {
		return maxProbeSmoothing
	}
	return n
}

var nan = math.NaN()

// Config holds the calibration settings from the [calibration] section.
type Config struct {
	// ProbeRadius is the radius of the test-point circle, mm.
	ProbeRadius float64

	// ProbeSmoothing is how many probes probeAt averages per point.
	ProbeSmoothing int

	// Probe-to-nozzle displacement.
	ProbeOffsetX float64
	ProbeOffsetY float64
	ProbeOffsetZ float64

	// TravelFeedrate paces the XY positioning moves, mm/sec.
	TravelFeedrate float64

	// Default tolerances, mm.
	EndstopTarget float64
	RadiusTarget  float64
}

// DefaultConfig returns the calibration defaults.
func DefaultConfig() Config {
	return Config{
		ProbeRadius:    100,
		ProbeSmoothing: 1,
		TravelFeedrate: 100,
		EndstopTarget:  0.03,
		RadiusTarget:   0.03,
	}
}

// LoadConfig reads the [calibration] section.
func LoadConfig(cfg *config.Config) (Config, error) {
	c := DefaultConfig()
	sec := cfg.SectionOrDefault("calibration")

	var err error
	if c.ProbeRadius, err = sec.GetFloat("probe_radius", 100); err != nil {
		return c, err
	}
	if c.ProbeSmoothing, err = sec.GetInt("probe_smoothing", 1); err != nil {
		return c, err
	}
	if c.ProbeOffsetX, err = sec.GetFloat("probe_offset_x", 0); err != nil {
		return c, err
	}
	if c.ProbeOffsetY, err = sec.GetFloat("probe_offset_y", 0); err != nil {
		return c, err
	}
	if c.ProbeOffsetZ, err = sec.GetFloat("probe_offset_z", 0); err != nil {
		return c, err
	}
	if c.TravelFeedrate, err = sec.GetFloat("travel_feedrate", 100); err != nil {
		return c, err
	}
	if c.EndstopTarget, err = sec.GetFloat("endstop_target", 0.03); err != nil {
		return c, err
	}
	if c.RadiusTarget, err = sec.GetFloat("radius_target", 0.03); err != nil {
		return c, err
	}
	c.ProbeSmoothing = clampSmoothing(c.ProbeSmoothing)
	return c, nil
}

// Reporter receives calibration progress events. The status hub implements
// it; a nil reporter is quietly ignored.
type Reporter interface {
	Publish(event string, payload interface{})
}

// Strategy drives calibration against a probe and the machine's geometry
// and trim stores.
type Strategy struct {
	cfg    Config
	probe  *probe.ZProbe
	mover  motion.Mover
	geom   kinematics.GeometryStore
	trim   kinematics.TrimStore
	logger *log.Logger
	pm     *metrics.ProbeMetrics
	rep    Reporter

	// Session state, reset with the machine.
	probeFromHeight float64 // -1 until measured, once per power cycle
	bedHeight       float64
	phtt            float64 // probe height to trigger at bed center, mm
	geomDirty       bool

	depthCur  [numTestPoints]float64 // reference - measured, steps
	depthPrev [numTestPoints]float64
}

// New creates a Strategy.
func New(cfg Config, zp *probe.ZProbe, mover motion.Mover, geom kinematics.GeometryStore, trim kinematics.TrimStore) *Strategy {
	cfg.ProbeSmoothing = clampSmoothing(cfg.ProbeSmoothing)
	return &Strategy{
		cfg:             cfg,
		probe:           zp,
		mover:           mover,
		geom:            geom,
		trim:            trim,
		logger:          log.New("calibrate"),
		pm:              metrics.DefaultProbeMetrics(),
		probeFromHeight: -1,
	}
}

// SetReporter installs a progress event sink.
func (s *Strategy) SetReporter(r Reporter) { s.rep = r }

// SetMetrics overrides the metric set, for tests.
func (s *Strategy) SetMetrics(pm *metrics.ProbeMetrics) { s.pm = pm }

func (s *Strategy) report(event string, payload interface{}) {
	if s.rep != nil {
		s.rep.Publish(event, payload)
	}
}

// MarkGeometryDirty flags that a geometry parameter changed outside the
// calibration loops, forcing a recalibration before the next depth map.
func (s *Strategy) MarkGeometryDirty() { s.geomDirty = true }

// ProbeHeightToTrigger returns the last measured center depth, mm.
func (s *Strategy) ProbeHeightToTrigger() float64 { return s.phtt }

// BedHeight returns the last computed bed height, mm.
func (s *Strategy) BedHeight() float64 { return s.bedHeight }

// findBedCenterHeight homes, measures the safe probing height once per
// power cycle with a fast probe, then slow-probes the center to establish
// the probe-height-to-trigger reference and the bed height, which is
// pushed to the machine.
func (s *Strategy) findBedCenterHeight() error {
	if err := s.mover.Home(); err != nil {
		return err
	}

	if s.probeFromHeight < 0 {
		steps, err := s.probe.RunProbeFast(true)
		if err != nil {
			return err
		}
		mm := s.probe.ZStepsToMM(float64(steps))
		s.probeFromHeight = mm - s.probe.ProbeHeight()
		s.logger.Infof("probe_from_height set to %.3f", s.probeFromHeight)
		if err := s.mover.Home(); err != nil {
			return err
		}
	}

	if err := s.descendToProbeHeight(); err != nil {
		return err
	}

	steps, err := s.probeAt(0, 0)
	if err != nil {
		return err
	}
	s.phtt = s.probe.ZStepsToMM(float64(steps))
	s.bedHeight = s.probeFromHeight + s.phtt + s.cfg.ProbeOffsetZ

	s.mover.SetBedHeight(s.bedHeight)
	s.pm.CenterDepth.Set(nil, s.phtt)
	s.logger.Infof("bed height %.3f, probe height to trigger %.3f", s.bedHeight, s.phtt)
	return nil
}

func (s *Strategy) descendToProbeHeight() error {
	return s.mover.CoordinatedMove(nan, nan, -s.probeFromHeight, s.probe.FastFeedrate(), true)
}

// prepareToProbe homes and descends to the cached probing height,
// measuring it first if this is the first probe since power-up.
func (s *Strategy) prepareToProbe() error {
	if s.probeFromHeight < 0 {
		if err := s.findBedCenterHeight(); err != nil {
			return err
		}
	}
	if err := s.mover.Home(); err != nil {
		return err
	}
	return s.descendToProbeHeight()
}

// requireCleanGeometry runs a full endstop and radius recalibration if
// geometry changed since the last one.
func (s *Strategy) requireCleanGeometry() error {
	if !s.geomDirty {
		return nil
	}
	s.logger.Infof("geometry dirty, recalibrating before scan")
	if err := s.CalibrateEndstops(EndstopOptions{}); err != nil {
		return err
	}
	if err := s.CalibrateDeltaRadius(RadiusOptions{}); err != nil {
		return err
	}
	s.geomDirty = false
	return nil
}

// probeAt moves to the target (offset by the probe displacement) and
// probes it, averaging the configured smoothing count of samples with a
// retract between each. Any failed attempt or an implausibly small
// average aborts the calibration.
func (s *Strategy) probeAt(x, y float64) (int, error) {
	return s.probeAtSmoothed(x, y, s.cfg.ProbeSmoothing)
}

func (s *Strategy) probeAtSmoothed(x, y float64, smoothing int) (int, error) {
	err := s.mover.CoordinatedMove(x+s.cfg.ProbeOffsetX, y+s.cfg.ProbeOffsetY, nan, s.cfg.TravelFeedrate, false)
	if err != nil {
		return 0, err
	}

	smoothing = clampSmoothing(smoothing)
	total := 0
	for i := 0; i < smoothing; i++ {
		steps, err := s.probe.RunProbeFast(false)
		if err != nil {
			return 0, err
		}
		total += steps

		retract := steps
		if s.probe.DecelerateOnTrigger() {
			retract = s.probe.StepsAtDecelEnd()
		}
		if err := s.probe.ReturnProbe(retract); err != nil {
			return 0, err
		}
	}

	avg := int(math.Round(float64(total) / float64(smoothing)))
	if avg < minPlausibleSteps {
		return 0, perrors.Newf(perrors.ErrSensorFault,
			"probe at (%.1f, %.1f) triggered after only %d steps; check probe_height", x, y, avg)
	}
	s.report("probe_result", map[string]interface{}{"x": x, "y": y, "steps": avg})
	return avg, nil
}

// probeTowers probes the three tower bases and returns their depths in mm.
func (s *Strategy) probeTowers(radius float64) ([3]float64, error) {
	var heights [3]float64
	for i, p := range towerCoordinates(radius) {
		steps, err := s.probeAt(p[0], p[1])
		if err != nil {
			return heights, err
		}
		heights[i] = s.probe.ZStepsToMM(float64(steps))
	}
	return heights, nil
}

// postAdjustKinematics resynchronizes the controller's position tracking
// after a geometry write, without which the next move would jump.
func (s *Strategy) postAdjustKinematics() {
	s.mover.ResetAxisPosition(s.mover.AxisPosition())
}

func minMax3(v [3]float64) (min, max float64) {
	min, max = v[0], v[0]
	for _, x := range v[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}
