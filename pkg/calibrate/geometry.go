// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

// PrintGeometry logs the basic geometry and the per-tower offsets, for
// operator inspection before and after a calibration run.
func (s *Strategy) PrintGeometry() {
	g, err := s.geom.BasicGeometry()
	if err != nil {
		s.logger.Warnf("geometry not adjustable on this kinematics: %v", err)
		return
	}
	s.logger.Infof("arm length %.3f, delta radius %.3f", g.ArmLength, g.Radius)

	if o, err := s.geom.TowerRadiusOffsets(); err == nil {
		s.logger.Infof("tower radius offsets %.3f %.3f %.3f", o.A, o.B, o.C)
	}
	if o, err := s.geom.TowerAngleOffsets(); err == nil {
		s.logger.Infof("tower angle offsets %.3f %.3f %.3f", o.A, o.B, o.C)
	}
	if o, err := s.geom.TowerArmOffsets(); err == nil {
		s.logger.Infof("tower arm offsets %.3f %.3f %.3f", o.A, o.B, o.C)
	}

	if t, err := s.trim.Trim(); err == nil {
		s.logger.Infof("trim %.3f %.3f %.3f", t.X, t.Y, t.Z)
	}
}
