// Straight probe moves (G38 style): a normal coordinated move toward a
// target with a sampler watching the sensor line. On a touch the move is
// aborted mid-block, the actual position read back through forward
// kinematics, and the machine position resynced.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package probe

import (
	perrors "zprobe-go-migration/pkg/errors"
	"zprobe-go-migration/pkg/motion"
	"zprobe-go-migration/pkg/safety"
)

// Sampler cadence for straight probe moves.
const samplerRateHz = 1000

// StraightProbeResult is the outcome of a straight probe move.
type StraightProbeResult struct {
	// Position is the cartesian position where the move ended, read
	// back from the actuators.
	Position [3]float64

	// Triggered reports whether the sensor fired before the target was
	// reached.
	Triggered bool
}

// ReadProbe is the straight-probe sampler. It runs on the slow ticker and
// aborts the in-flight move the instant the sensor fires.
func (z *ZProbe) ReadProbe() {
	if !z.probing.Load() || z.probeDetected.Load() {
		return
	}
	if !z.sensor.Triggered() {
		return
	}
	for _, a := range z.axes {
		a.ForceFinishMove()
	}
	z.probeDetected.Store(true)
}

// StraightProbe moves toward the given cartesian target watching for a
// touch. With invert true the move watches for the sensor releasing
// instead. With strict true a miss (or an unexpected touch when probing
// away) halts the machine.
func (z *ZProbe) StraightProbe(x, y, zmm, feedrate float64, strict, invert bool) (StraightProbeResult, error) {
	var res StraightProbeResult

	if z.mon.IsHalted() {
		return res, perrors.Canceled("straight probe")
	}
	wasInverting := z.sensor.IsInverting()
	if invert {
		z.sensor.SetInverting(!wasInverting)
		defer z.sensor.SetInverting(wasInverting)
	}
	if z.sensor.Triggered() {
		return res, perrors.SensorFault("probe already triggered before move")
	}

	z.probeDetected.Store(false)
	z.probing.Store(true)

	// Segmentation and compensation transforms would smear the stop
	// point; run the move raw.
	z.mover.SuspendTransforms(true)
	err := z.mover.CoordinatedMove(x, y, zmm, feedrate, false)
	z.mover.SuspendTransforms(false)

	z.probing.Store(false)

	if err != nil {
		return res, err
	}
	if z.mon.IsHalted() {
		return res, perrors.Canceled("straight probe")
	}

	res.Triggered = z.probeDetected.Load()

	// Read the actual stop position back from the actuators and resync
	// the planner position to it.
	if z.fwd != nil {
		var carriage [3]float64
		for c := motion.XAxis; c <= motion.ZAxis; c++ {
			carriage[c] = z.axes[c].CurrentPosition()
		}
		res.Position = z.fwd(carriage)
	}
	z.mover.ResetFromActuators()

	if strict && !res.Triggered {
		z.mon.Kill(safety.ReasonProbeFail)
		return res, perrors.SensorFault("probe did not trigger before target")
	}
	return res, nil
}
