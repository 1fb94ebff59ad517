// Unified error handling for the probing and calibration core
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Sensor faults: the probe did not trigger within the travel limit.
	// Recoverable; no geometry is mutated.
	ErrSensorFault ErrorCode = "SENSOR_FAULT"

	// Safety faults: runout exceeded while decelerating after trigger.
	// Never treated as a successful probe.
	ErrSafetyRunout ErrorCode = "SAFETY_RUNOUT"

	// Configuration faults
	ErrConfigGeometry ErrorCode = "CONFIG_GEOMETRY" // kinematics lacks the parameter
	ErrConfigEndstops ErrorCode = "CONFIG_ENDSTOPS" // endstops unavailable
	ErrConfigOption   ErrorCode = "CONFIG_OPTION"   // bad or missing config option

	// Convergence failure: a calibration loop hit its iteration ceiling.
	// The machine is left in its last-attempted state.
	ErrConvergence ErrorCode = "CONVERGENCE"

	// Cancellation: the global halt signal was observed mid-operation.
	ErrCanceled ErrorCode = "CANCELED"
)

// ProbeError is the unified error type for probe and calibration failures
type ProbeError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// SetContext adds additional context
func (e *ProbeError) SetContext(key string, value interface{}) *ProbeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new ProbeError
func New(code ErrorCode, message string) *ProbeError {
	return &ProbeError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new ProbeError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ProbeError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *ProbeError {
	return &ProbeError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether err carries the given code anywhere in its chain
func Is(err error, code ErrorCode) bool {
	var pe *ProbeError
	for errors.As(err, &pe) {
		if pe.Code == code {
			return true
		}
		err = pe.Err
		if err == nil {
			return false
		}
	}
	return false
}

// Sensor faults

// SensorFault creates an error for a probe that never triggered
func SensorFault(message string) *ProbeError {
	return New(ErrSensorFault, message)
}

// Safety faults

// RunoutExceeded creates the runout safety fault. The message carries the
// operator advice from the original firmware: shorten the runout, raise
// acceleration, or lower speed.
func RunoutExceeded(stepped int) *ProbeError {
	return New(ErrSafetyRunout,
		"runout protection was triggered; check decelerate_runout in config and/or try higher accel/lower speed").
		SetContext("stepped", stepped)
}

// Configuration faults

// GeometryUnsupported creates an error for a missing kinematics parameter
func GeometryUnsupported(param string) *ProbeError {
	return Newf(ErrConfigGeometry, "kinematics does not support parameter %q - is this a delta?", param)
}

// EndstopsUnavailable creates an error for a trim store that cannot be used
func EndstopsUnavailable() *ProbeError {
	return New(ErrConfigEndstops, "unable to access trim - are endstops enabled?")
}

// Convergence failures

// ConvergenceFailed creates an error for a loop that hit its iteration ceiling
func ConvergenceFailed(routine string, deviation, target float64) *ProbeError {
	return Newf(ErrConvergence, "%s did not resolve to within %1.3f (deviation %1.3f)", routine, target, deviation).
		SetContext("deviation", deviation).
		SetContext("target", target)
}

// Cancellation

// Canceled creates an error for an operation aborted by the halt signal
func Canceled(operation string) *ProbeError {
	return Newf(ErrCanceled, "%s aborted by halt", operation)
}
