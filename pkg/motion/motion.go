// Package motion defines the contracts this core consumes from the motion
// system: the per-axis stepper driver, the coordinated-move executor, and
// the periodic tick source. It also provides SimDelta, a simulated delta
// machine used by the tests and the probecal tool.
package motion

// Axis indices
const (
	XAxis = 0
	YAxis = 1
	ZAxis = 2
)

// Axis is the per-axis stepper driver contract. The probe state machine
// commands axes directly during a dedicated probe move; everything else
// goes through the Mover.
type Axis interface {
	// IsMoving reports whether the axis is executing a move.
	IsMoving() bool

	// GetStepped returns the steps taken since the current move started.
	GetStepped() int

	// Speed returns the commanded step rate in steps/sec.
	Speed() float64

	// SetSpeed sets the commanded step rate in steps/sec.
	SetSpeed(stepsPerSec float64)

	// Move starts a move of up to steps in the given direction
	// (true = toward the bed). Move(dir, 0) stops the axis.
	Move(dir bool, steps int)

	// ForceFinishMove terminates the current move immediately, without
	// deceleration.
	ForceFinishMove()

	// StepsPerMM returns the axis resolution.
	StepsPerMM() float64

	// CurrentPosition returns the actuator position in mm.
	CurrentPosition() float64

	// SetMovedLastBlock clears or sets the block-move bookkeeping before a
	// direct move.
	SetMovedLastBlock(moved bool)
}

// Mover is the coordinated-move executor contract. CoordinatedMove blocks
// until the motion queue drains; a NaN coordinate holds that axis.
type Mover interface {
	CoordinatedMove(x, y, z, feedrate float64, relative bool) error

	// Home runs the homing cycle and blocks until done.
	Home() error

	// EnableMotors turns the stepper enable pins on.
	EnableMotors()

	// Acceleration returns the planner's X/Y acceleration in mm/sec^2.
	Acceleration() float64

	// ZAcceleration returns the planner's Z acceleration in mm/sec^2.
	ZAcceleration() float64

	// SetAcceleration overrides the planner acceleration (restored by the
	// caller afterward).
	SetAcceleration(accel float64)

	// AxisPosition returns the controller's cartesian position tracking.
	AxisPosition() [3]float64

	// ResetAxisPosition rewrites the controller's cartesian position
	// tracking without moving. Required after any geometry write.
	ResetAxisPosition(pos [3]float64)

	// ResetFromActuators resynchronizes cartesian tracking from actual
	// actuator positions, after a move was terminated early.
	ResetFromActuators()

	// SuspendTransforms disables segmentation/compensation transforms for
	// the duration of a straight probe.
	SuspendTransforms(suspend bool)

	// SetBedHeight pushes a newly measured bed height to the machine.
	SetBedHeight(height float64)
}

// TickAttacher registers callbacks on an external periodic timer source.
// Handlers run in interrupt context: they must never block and must
// tolerate being invoked when nothing is in progress.
type TickAttacher interface {
	Attach(hz int, fn func())
}
