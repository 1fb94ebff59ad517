// Probe repeatability statistics.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"math"

	perrors "zprobe-go-migration/pkg/errors"
)

const (
	maxRepeatSamples = 30

	// Samples beyond this magnitude mean a mis-triggered sensor, not a
	// depth; they are discarded and re-probed.
	sampleSanityCeiling = 50000

	// Consecutive discards before the sensor is declared faulty.
	maxConsecutiveDiscards = 5
)

// Verdicts for the measured range, worst first.
const (
	VerdictVeryGood   = "very good"
	VerdictAverage    = "average"
	VerdictBorderline = "borderline"
	VerdictUnusable   = "unusable"
)

// RepeatOptions tunes a Repeatability run. Zero values keep the current
// probe settings.
type RepeatOptions struct {
	// Samples requested; clamped to 30, default 10.
	Samples int

	// Eccentricity walks the effector through three radius-10 waypoints
	// before every sample, to expose mechanical slop.
	Eccentricity bool

	// Temporary overrides, restored afterward.
	Acceleration float64
	Feedrate     float64
	Debounce     int
	Smoothing    int
}

// RepeatReport is the statistics of a repeatability run.
type RepeatReport struct {
	Samples   []int
	Discarded int

	MeanSteps   float64
	StdDevSteps float64
	RangeSteps  float64

	MeanMM   float64
	StdDevMM float64
	RangeMM  float64

	Verdict string
}

// Repeatability probes the origin repeatedly and reports mean, population
// standard deviation and range of the measured depths, with a qualitative
// verdict on the range. Overridden acceleration, feedrate and debounce
// settings are restored before returning.
func (s *Strategy) Repeatability(opts RepeatOptions) (*RepeatReport, error) {
	n := opts.Samples
	if n <= 0 {
		n = 10
	}
	if n > maxRepeatSamples {
		n = maxRepeatSamples
	}
	smoothing := opts.Smoothing
	if smoothing <= 0 {
		smoothing = s.cfg.ProbeSmoothing
	}

	if opts.Acceleration > 0 {
		saved := s.mover.Acceleration()
		s.mover.SetAcceleration(opts.Acceleration)
		defer s.mover.SetAcceleration(saved)
	}
	if opts.Feedrate > 0 {
		saved := s.probe.SlowFeedrate()
		s.probe.SetSlowFeedrate(opts.Feedrate)
		defer s.probe.SetSlowFeedrate(saved)
	}
	if opts.Debounce > 0 {
		saved := s.probe.DebounceCount()
		s.probe.SetDebounceCount(opts.Debounce)
		defer s.probe.SetDebounceCount(saved)
	}

	if err := s.prepareToProbe(); err != nil {
		return nil, err
	}

	waypoints := eccentricityWaypoints()
	samples := make([]int, 0, n)
	discarded := 0
	streak := 0

	for len(samples) < n {
		if opts.Eccentricity {
			for _, w := range waypoints {
				if err := s.mover.CoordinatedMove(w[0], w[1], nan, s.cfg.TravelFeedrate, false); err != nil {
					return nil, err
				}
			}
		}

		steps, err := s.probeAtSmoothed(0, 0, smoothing)
		if err != nil {
			return nil, err
		}
		if steps > sampleSanityCeiling {
			discarded++
			streak++
			s.pm.DiscardedSamples.Inc(nil)
			s.logger.Warnf("discarding implausible sample of %d steps", steps)
			if streak >= maxConsecutiveDiscards {
				return nil, perrors.SensorFault("probe keeps exceeding the sample sanity ceiling")
			}
			continue
		}
		streak = 0
		samples = append(samples, steps)
	}

	rep := summarize(samples)
	rep.Discarded = discarded
	rep.MeanMM = s.probe.ZStepsToMM(rep.MeanSteps)
	rep.StdDevMM = s.probe.ZStepsToMM(rep.StdDevSteps)
	rep.RangeMM = s.probe.ZStepsToMM(rep.RangeSteps)
	rep.Verdict = rangeVerdict(rep.RangeMM)

	s.pm.RepeatRange.Set(nil, rep.RangeMM)
	s.logger.Infof("repeatability over %d samples: mean %.3f, stddev %.4f, range %.4f (%s)",
		len(samples), rep.MeanMM, rep.StdDevMM, rep.RangeMM, rep.Verdict)
	s.report("report", map[string]interface{}{
		"routine": "repeatability", "range_mm": rep.RangeMM, "verdict": rep.Verdict,
	})
	return rep, nil
}

// eccentricityWaypoints returns three points on the radius-10 circle, one
// per tower direction.
func eccentricityWaypoints() [3][2]float64 {
	var w [3][2]float64
	for i := 0; i < 3; i++ {
		w[i] = rotate2D([2]float64{0, 10}, float64(i)*120)
	}
	return w
}

// summarize computes mean, population standard deviation and range in
// steps. Deterministic for a given sample sequence.
func summarize(samples []int) *RepeatReport {
	rep := &RepeatReport{Samples: samples}

	min, max := samples[0], samples[0]
	sum := 0
	for _, v := range samples {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	rep.MeanSteps = float64(sum) / float64(len(samples))
	rep.RangeSteps = float64(max - min)

	varsum := 0.0
	for _, v := range samples {
		d := float64(v) - rep.MeanSteps
		varsum += d * d
	}
	rep.StdDevSteps = math.Sqrt(varsum / float64(len(samples)))
	return rep
}

func rangeVerdict(rangeMM float64) string {
	switch {
	case rangeMM < 0.015:
		return VerdictVeryGood
	case rangeMM <= 0.03:
		return VerdictAverage
	case rangeMM <= 0.04:
		return VerdictBorderline
	default:
		return VerdictUnusable
	}
}
