package hardware

import (
	"context"
	"fmt"
)

// Servo pulse envelope in microseconds.
const (
	PulseOff = 0
	PulseMin = 500
	PulseMax = 2500
)

// Driver writes and reads servo pulse widths.
type Driver interface {
	// SetPulse sets the pulse width on channel. 0 switches the output off.
	SetPulse(channel, pulse int) error

	// Pulse returns the pulse width channel is outputting, or PulseOff
	// if it is not driven. Walks read it to find their start.
	Pulse(channel int) (int, error)

	// Close releases the underlying connection.
	Close() error
}

// Connector opens a Driver.
type Connector interface {
	Connect(ctx context.Context) (Driver, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Driver, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Driver, error) {
	return f(ctx)
}

// ValidatePulse reports ErrInvalidPulse unless pulse is PulseOff or
// within [PulseMin, PulseMax].
func ValidatePulse(pulse int) error {
	if pulse == PulseOff || (pulse >= PulseMin && pulse <= PulseMax) {
		return nil
	}
	return fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidPulse, pulse, PulseMin, PulseMax)
}
