// Package kinematics exposes the geometry of the active kinematics model as
// a typed capability interface, and provides the delta solution used for
// position readback after an interrupted probe move.
//
// Calibration routines read and write geometry through GeometryStore. Any
// write must be followed by a kinematics position reset on the machine or
// the next move will jump.
package kinematics

import "errors"

// ErrUnsupported is returned when the active kinematics model does not
// support a requested parameter (e.g. delta radius on a cartesian machine).
var ErrUnsupported = errors.New("kinematics: parameter unsupported by active model")

// BasicGeometry holds the first-order delta geometry.
type BasicGeometry struct {
	ArmLength float64
	Radius    float64
}

// TowerOffsets holds one per-tower offset triple (A, B, C towers).
type TowerOffsets struct {
	A, B, C float64
}

// GeometryStore is the capability interface exposed by the kinematics
// collaborator. Implementations return ErrUnsupported for parameters the
// active model does not have.
type GeometryStore interface {
	BasicGeometry() (BasicGeometry, error)
	SetBasicGeometry(BasicGeometry) error

	TowerRadiusOffsets() (TowerOffsets, error)
	SetTowerRadiusOffsets(TowerOffsets) error

	TowerAngleOffsets() (TowerOffsets, error)
	SetTowerAngleOffsets(TowerOffsets) error

	TowerArmOffsets() (TowerOffsets, error)
	SetTowerArmOffsets(TowerOffsets) error
}

// Trim is the per-tower endstop offset vector. Only non-positive trim is
// meaningful; a calibrated vector has its maximum component at zero.
type Trim struct {
	X, Y, Z float64
}

// TrimStore is the capability interface exposed by the endstop collaborator.
type TrimStore interface {
	// Trim returns the current trim vector. An error indicates endstops
	// are disabled.
	Trim() (Trim, error)

	// SetTrim replaces the trim vector as a unit.
	SetTrim(Trim) error
}
