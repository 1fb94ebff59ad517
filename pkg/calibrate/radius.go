// Delta radius calibration: make the center depth and the average
// tower-base depth agree by adjusting the effective delta radius.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"math"

	perrors "zprobe-go-migration/pkg/errors"
	"zprobe-go-migration/pkg/metrics"
)

const (
	radiusIterationCeiling = 10

	// Proportional gain on the center-vs-towers depth delta. Fixed, no
	// damping: a machine whose height/radius sensitivity makes
	// gain*sensitivity leave |1-gain*k| >= 1 will oscillate until the
	// ceiling. Known limitation, kept from the original tuning.
	radiusGain = 2.5
)

// RadiusOptions tunes a CalibrateDeltaRadius run. Zero values take the
// configured defaults.
type RadiusOptions struct {
	// Target is the acceptable |center - towers| depth delta, mm.
	Target float64

	// ProbeRadius overrides the configured test-point radius.
	ProbeRadius float64
}

// CalibrateDeltaRadius probes the center once as a fixed reference, then
// iterates: probe the three tower bases, compare their average depth to
// the center, and nudge the delta radius proportionally until they agree.
// Every radius write is followed by a position resync and a fresh homing
// cycle, since the cached probing height is no longer trustworthy.
func (s *Strategy) CalibrateDeltaRadius(opts RadiusOptions) error {
	target := opts.Target
	if target <= 0 {
		target = s.cfg.RadiusTarget
	}
	radius := opts.ProbeRadius
	if radius <= 0 {
		radius = s.cfg.ProbeRadius
	}
	labels := metrics.Labels{"routine": "delta_radius"}
	s.pm.CalibrationRuns.Inc(labels)
	s.logger.Infof("calibrating delta radius: target %.3f, probe radius %.1f", target, radius)

	if err := s.prepareToProbe(); err != nil {
		return err
	}

	// Center depth is independent of the radius parameter, so one
	// reading serves the whole loop.
	centerSteps, err := s.probeAt(0, 0)
	if err != nil {
		return err
	}
	center := s.probe.ZStepsToMM(float64(centerSteps))

	geometry, err := s.geom.BasicGeometry()
	if err != nil {
		return perrors.GeometryUnsupported("delta radius")
	}
	if geometry.Radius == 0 {
		return perrors.GeometryUnsupported("delta radius")
	}

	delta := 0.0
	for iter := 0; iter < radiusIterationCeiling; iter++ {
		s.pm.CalibrationIterations.Inc(labels)

		heights, err := s.probeTowers(radius)
		if err != nil {
			return err
		}
		avg := (heights[0] + heights[1] + heights[2]) / 3
		delta = center - avg
		s.logger.Infof("iteration %d: center %.3f, towers avg %.3f, delta %.3f, radius %.3f", iter+1, center, avg, delta, geometry.Radius)
		s.report("calibration_progress", map[string]interface{}{
			"routine": "delta_radius", "iteration": iter + 1, "delta": delta,
		})

		if math.Abs(delta) <= target {
			s.pm.DeltaRadius.Set(nil, geometry.Radius)
			s.logger.Infof("delta radius converged at %.3f", geometry.Radius)
			return nil
		}

		geometry.Radius += delta * radiusGain
		if err := s.geom.SetBasicGeometry(geometry); err != nil {
			return perrors.GeometryUnsupported("delta radius")
		}
		s.postAdjustKinematics()
		s.pm.DeltaRadius.Set(nil, geometry.Radius)

		if err := s.prepareToProbe(); err != nil {
			return err
		}
	}

	return perrors.ConvergenceFailed("delta_radius", math.Abs(delta), target)
}
