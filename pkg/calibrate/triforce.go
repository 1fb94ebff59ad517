// Triforce quality scan: six points scored against the center reference.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"math"
	"sort"
)

// TriforceReport scores the calibration quality from six probe points:
// the three tower bases plus the three inter-tower midpoints. Deviations
// are measured against the probe-height-to-trigger reference; the scores
// are distances from it, so opposing tilts cannot cancel out and lower
// always means better.
type TriforceReport struct {
	// Depths are the measured depths at the six points, mm.
	Depths [6]float64

	// Deviations are reference minus measured per point, mm, signed.
	Deviations [6]float64

	// Mean is the average absolute deviation.
	Mean float64

	// Intersextile is the mean of the four middle-ranked absolute
	// deviations, dropping the lowest and highest to suppress outliers.
	Intersextile float64
}

// ProbeTriforce probes the three tower bases and the three inter-tower
// midpoints and scores each against the center reference depth, measuring
// the reference first if it is not yet established.
func (s *Strategy) ProbeTriforce() (*TriforceReport, error) {
	if s.phtt == 0 {
		if err := s.findBedCenterHeight(); err != nil {
			return nil, err
		}
	}
	if err := s.prepareToProbe(); err != nil {
		return nil, err
	}

	pts := testPoints(s.cfg.ProbeRadius)
	scan := [6][2]float64{
		pts[pointTowerX], pts[pointTowerY], pts[pointTowerZ],
		pts[pointMidXY], pts[pointMidYZ], pts[pointMidZX],
	}

	rep := &TriforceReport{}
	var absDev [6]float64
	for i, p := range scan {
		steps, err := s.probeAt(p[0], p[1])
		if err != nil {
			return nil, err
		}
		rep.Depths[i] = s.probe.ZStepsToMM(float64(steps))
		rep.Deviations[i] = s.phtt - rep.Depths[i]
		absDev[i] = math.Abs(rep.Deviations[i])
		rep.Mean += absDev[i] / 6
	}
	rep.Intersextile = intersextileMean(absDev)

	s.logger.Infof("triforce scan: mean %.4f, intersextile %.4f", rep.Mean, rep.Intersextile)
	s.report("report", map[string]interface{}{
		"routine": "triforce", "mean": rep.Mean, "intersextile": rep.Intersextile,
	})
	return rep, nil
}

// intersextileMean ranks six values, drops the lowest and the highest,
// and averages the remaining four.
func intersextileMean(vals [6]float64) float64 {
	sorted := make([]float64, 6)
	copy(sorted, vals[:])
	sort.Float64s(sorted)
	return (sorted[1] + sorted[2] + sorted[3] + sorted[4]) / 4
}
