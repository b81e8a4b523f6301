package hardware

import "errors"

// Sentinel errors shared by every backend.
var (
	// ErrConnectionRefused is returned when a backend cannot reach its
	// hardware (daemon down, bus missing, no /dev/gpiomem access).
	ErrConnectionRefused = errors.New("hardware: connection refused")

	// ErrInvalidChannel is returned for a channel the backend cannot drive.
	ErrInvalidChannel = errors.New("hardware: invalid channel")

	// ErrInvalidPulse is returned for a pulse outside the servo envelope.
	ErrInvalidPulse = errors.New("hardware: invalid pulse width")

	// ErrCommandFailed is returned when the hardware rejects a command.
	ErrCommandFailed = errors.New("hardware: command failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hardware: driver closed")
)
