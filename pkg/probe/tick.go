// Acceleration tick handler for directed probe moves.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package probe

import "zprobe-go-migration/pkg/motion"

// Below this rate the axis is snapped to a stop rather than ramped.
const minStepRate = 20.0

// AccelerationTick ramps the probe axes toward the target rate, or down to
// a stop once the foreground hands off a triggered move. It runs at the
// configured tick rate and does nothing when no probe move is active.
func (z *ZProbe) AccelerationTick() {
	if !z.cell.running.Load() {
		return
	}
	switch z.cell.mode.Load() {
	case modeAccelerating:
		z.accelerateTick()
	case modeDecelerating:
		z.decelerateTick()
	}
}

func (z *ZProbe) accelerateTick() {
	target := z.cell.targetRate.Load()
	for c := motion.XAxis; c <= motion.ZAxis; c++ {
		a := z.axes[c]
		if !a.IsMoving() {
			continue
		}
		accel := z.mover.Acceleration()
		if c == motion.ZAxis {
			accel = z.mover.ZAcceleration()
		}
		rate := a.Speed()
		rate += (accel / float64(z.cfg.TickRateHz)) * a.StepsPerMM()
		if rate > target {
			rate = target
		}
		a.SetSpeed(rate)
	}
}

func (z *ZProbe) decelerateTick() {
	ceiling := z.cell.runoutCeiling.Load()
	for c := motion.XAxis; c <= motion.ZAxis; c++ {
		a := z.axes[c]
		if !a.IsMoving() {
			continue
		}

		// Runout protection: never allow the decelerating move past
		// the published ceiling.
		if c == motion.ZAxis && int64(a.GetStepped()) >= ceiling {
			z.cell.exceededRunout.Store(true)
			z.cell.stepsAtDecelEnd.Store(int64(a.GetStepped()))
			z.stopProbeAxes()
			return
		}

		accel := z.mover.Acceleration()
		if c == motion.ZAxis {
			accel = z.mover.ZAcceleration()
		}
		rate := a.Speed()
		rate -= (accel / float64(z.cfg.TickRateHz)) * a.StepsPerMM()
		if rate < minStepRate+0.1 {
			if c == motion.ZAxis {
				z.cell.stepsAtDecelEnd.Store(int64(a.GetStepped()))
			}
			a.Move(false, 0)
			continue
		}
		a.SetSpeed(rate)
	}
}
