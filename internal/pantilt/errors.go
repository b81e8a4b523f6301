package pantilt

import (
	"errors"
	"fmt"
)

// Sentinel errors for motion commands.
var (
	// ErrOutOfBounds is returned when a pulse target lies outside a
	// channel's configured bounds. The channel is not moved.
	ErrOutOfBounds = errors.New("pantilt: pulse out of bounds")

	// ErrAngleOutOfBounds is returned when an angle command lies outside
	// the axis range. No channel is touched.
	ErrAngleOutOfBounds = errors.New("pantilt: angle out of bounds")

	// ErrMotionCancelled is returned when the context is cancelled during
	// a walk. The channel holds the last pulse written.
	ErrMotionCancelled = errors.New("pantilt: motion cancelled")

	// ErrDriver wraps hardware driver failures during motion.
	ErrDriver = errors.New("pantilt: driver error")

	// ErrInvalidBounds is returned when min > max.
	ErrInvalidBounds = errors.New("pantilt: invalid bounds")
)

// PulseError reports a rejected pulse target.
type PulseError struct {
	Axis  string
	Pulse int
	Min   int
	Max   int
}

func (e *PulseError) Error() string {
	return fmt.Sprintf("pantilt: %s pulse %d outside [%d, %d]", e.Axis, e.Pulse, e.Min, e.Max)
}

// Unwrap makes errors.Is(err, ErrOutOfBounds) true.
func (e *PulseError) Unwrap() error { return ErrOutOfBounds }

// AngleError reports a rejected angle command.
type AngleError struct {
	Axis  string
	Angle float64
	Min   float64
	Max   float64
}

func (e *AngleError) Error() string {
	return fmt.Sprintf("pantilt: %s angle %v outside [%v, %v]", e.Axis, e.Angle, e.Min, e.Max)
}

// Unwrap makes errors.Is(err, ErrAngleOutOfBounds) true.
func (e *AngleError) Unwrap() error { return ErrAngleOutOfBounds }
