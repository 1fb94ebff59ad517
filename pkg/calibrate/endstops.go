// Endstop trim calibration: equalize the probe depth at the three tower
// bases by adjusting the per-tower trim.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	perrors "zprobe-go-migration/pkg/errors"
	"zprobe-go-migration/pkg/kinematics"
	"zprobe-go-migration/pkg/metrics"
)

const (
	endstopIterationCeiling = 20

	// Initial correction scale, empirically tuned, damped toward the
	// 0.9 floor when the spread stops improving.
	initialTrimScale = 1.3
)

// EndstopOptions tunes a CalibrateEndstops run. Zero values take the
// configured defaults.
type EndstopOptions struct {
	// Target is the acceptable max-min tower spread, mm.
	Target float64

	// ProbeRadius overrides the configured test-point radius.
	ProbeRadius float64

	// KeepTrim starts from the current trim instead of zeroing it.
	KeepTrim bool
}

// CalibrateEndstops drives the three tower-base probe depths to within the
// target spread of each other by accumulating per-tower trim corrections.
// On success the trim is normalized so its maximum component is zero; on
// hitting the iteration ceiling the last attempted trim stays applied.
func (s *Strategy) CalibrateEndstops(opts EndstopOptions) error {
	target := opts.Target
	if target <= 0 {
		target = s.cfg.EndstopTarget
	}
	radius := opts.ProbeRadius
	if radius <= 0 {
		radius = s.cfg.ProbeRadius
	}
	labels := metrics.Labels{"routine": "endstops"}
	s.pm.CalibrationRuns.Inc(labels)
	s.logger.Infof("calibrating endstops: target %.3f, radius %.1f, keep trim %v", target, radius, opts.KeepTrim)

	var trim kinematics.Trim
	if opts.KeepTrim {
		var err error
		if trim, err = s.trim.Trim(); err != nil {
			return perrors.EndstopsUnavailable()
		}
	} else {
		if err := s.trim.SetTrim(kinematics.Trim{}); err != nil {
			return perrors.EndstopsUnavailable()
		}
	}

	if err := s.prepareToProbe(); err != nil {
		return err
	}

	heights, err := s.probeTowers(radius)
	if err != nil {
		return err
	}
	min, max := minMax3(heights)
	spread := max - min
	s.pm.EndstopSpread.Set(nil, spread)
	s.logger.Infof("initial tower depths %.3f %.3f %.3f, spread %.3f", heights[0], heights[1], heights[2], spread)

	// Already level: succeed without touching anything.
	if spread <= target {
		return nil
	}

	// A tower reading shallow (high bed) gets its trim pulled down
	// toward the deepest tower; trim is only ever applied in the
	// direction that lowers, so the later normalization can pin the
	// maximum at zero.
	trimscale := initialTrimScale
	applyCorrection := func() {
		trim.X += (min - heights[0]) * trimscale
		trim.Y += (min - heights[1]) * trimscale
		trim.Z += (min - heights[2]) * trimscale
	}
	applyCorrection()

	lastSpread := spread
	for iter := 0; iter < endstopIterationCeiling; iter++ {
		s.pm.CalibrationIterations.Inc(labels)

		if err := s.trim.SetTrim(trim); err != nil {
			return perrors.EndstopsUnavailable()
		}
		if err := s.prepareToProbe(); err != nil {
			return err
		}
		if heights, err = s.probeTowers(radius); err != nil {
			return err
		}
		min, max = minMax3(heights)
		spread = max - min
		s.pm.EndstopSpread.Set(nil, spread)
		s.logger.Infof("iteration %d: depths %.3f %.3f %.3f, spread %.3f, scale %.3f", iter+1, heights[0], heights[1], heights[2], spread, trimscale)
		s.report("calibration_progress", map[string]interface{}{
			"routine": "endstops", "iteration": iter + 1, "spread": spread,
		})

		if spread <= target {
			// Subtract the maximum component so repeated runs
			// cannot drift the whole vector downward.
			m := trim.X
			if trim.Y > m {
				m = trim.Y
			}
			if trim.Z > m {
				m = trim.Z
			}
			trim.X -= m
			trim.Y -= m
			trim.Z -= m
			if err := s.trim.SetTrim(trim); err != nil {
				return perrors.EndstopsUnavailable()
			}
			s.logger.Infof("endstops converged: trim %.3f %.3f %.3f", trim.X, trim.Y, trim.Z)
			return nil
		}

		// Damp the step size when the spread stopped improving, down
		// to a floor. The scale never grows back.
		if spread >= lastSpread && trimscale*0.95 >= 0.9 {
			trimscale *= 0.9
			s.logger.Debugf("spread not improving, damping scale to %.3f", trimscale)
		}
		applyCorrection()
		lastSpread = spread
	}

	return perrors.ConvergenceFailed("endstops", spread, target)
}
