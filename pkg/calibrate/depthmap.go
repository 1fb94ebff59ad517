// Depth-map surface scan: deviation from the center depth at the twelve
// fixed test points.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import "math"

// DepthReport is the result of a full surface scan. Deviations are
// reference minus measured: positive means the surface there is higher
// than the center.
type DepthReport struct {
	// Points holds the signed deviations at the twelve test points, mm.
	Points [numTestPoints]float64

	// Steps holds the same deviations in raw steps.
	Steps [numTestPoints]int

	// BestAbs and WorstAbs are the smallest and largest absolute
	// deviations seen in the scan, mm.
	BestAbs  float64
	WorstAbs float64
}

// DepthMap probes the machine center for a reference depth, then all
// twelve test points, reporting each point's deviation from the center.
// A dirty geometry triggers a full endstop and radius recalibration
// first. The scan is a pure measurement pass: no geometry parameter is
// touched, only the depth-map arrays. The previous map is snapshotted
// before the scan so a later run can be diffed against it.
func (s *Strategy) DepthMap() (*DepthReport, error) {
	if err := s.requireCleanGeometry(); err != nil {
		return nil, err
	}
	if err := s.prepareToProbe(); err != nil {
		return nil, err
	}

	s.depthPrev = s.depthCur

	centerSteps, err := s.probeAt(0, 0)
	if err != nil {
		return nil, err
	}

	rep := &DepthReport{BestAbs: math.Inf(1)}
	for i, p := range testPoints(s.cfg.ProbeRadius) {
		steps, err := s.probeAt(p[0], p[1])
		if err != nil {
			return nil, err
		}
		dev := centerSteps - steps
		s.depthCur[i] = float64(dev)
		rep.Steps[i] = dev
		rep.Points[i] = s.probe.ZStepsToMM(float64(dev))

		abs := math.Abs(rep.Points[i])
		if abs < rep.BestAbs {
			rep.BestAbs = abs
		}
		if abs > rep.WorstAbs {
			rep.WorstAbs = abs
		}
	}

	s.logger.Infof("depth map complete: best %.3f, worst %.3f", rep.BestAbs, rep.WorstAbs)
	s.report("report", map[string]interface{}{
		"routine": "depthmap", "best": rep.BestAbs, "worst": rep.WorstAbs,
	})
	return rep, nil
}

// SaveDepthMap snapshots the current map into the previous-map slot and
// clears the current map, so the next scan starts from a blank sheet.
func (s *Strategy) SaveDepthMap() {
	s.depthPrev = s.depthCur
	s.depthCur = [numTestPoints]float64{}
}

// PreviousDepthMap returns the snapshotted deviation array in steps.
func (s *Strategy) PreviousDepthMap() [numTestPoints]float64 {
	return s.depthPrev
}
