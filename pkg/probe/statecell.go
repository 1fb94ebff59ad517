package probe

import (
	"math"
	"sync/atomic"
)

// Tick handler modes.
const (
	modeIdle uint32 = iota
	modeAccelerating
	modeDecelerating
)

// stateCell is the shared state between the foreground probe routine and
// the interrupt-context tick handler. Each field has exactly one writer:
//
//	running, mode, runoutCeiling, targetRate: written by the foreground;
//	the trigger-detection instant is the only point where mode changes
//	while a move is in flight (accelerating -> decelerating), and the
//	runout ceiling is published before that flip.
//
//	exceededRunout, stepsAtDecelEnd: written by the tick handler while
//	decelerating; read by the foreground only after all axes stop.
type stateCell struct {
	running        atomic.Bool
	mode           atomic.Uint32
	targetRate     atomicFloat64 // commanded feedrate in steps/sec
	runoutCeiling  atomic.Int64  // trigger steps + runout, in steps
	exceededRunout atomic.Bool
	stepsAtDecelEnd atomic.Int64
}

func (c *stateCell) reset() {
	c.running.Store(false)
	c.mode.Store(modeIdle)
	c.exceededRunout.Store(false)
	c.stepsAtDecelEnd.Store(0)
}

// atomicFloat64 stores a float64 via its bit pattern.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}
