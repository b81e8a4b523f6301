package periphery

import "context"

// Periphery is a hardware subsystem managed by the Registry.
//
// Parameters are mutable numeric settings persisted in configuration
// files; constants are fixed at construction (pin numbers, resolution).
type Periphery interface {
	// Name is the registry key and the first element of every config triple.
	Name() string

	// Initialize brings the hardware to its start state.
	Initialize(ctx context.Context) error

	// Shutdown returns the hardware to a safe state and releases outputs.
	Shutdown(ctx context.Context) error

	// Parameters returns a copy of the current parameter values.
	Parameters() map[string]float64

	// SetParameter validates and applies one parameter.
	// Unknown names return ErrUnknownParameter; rejected values return
	// ErrParameterOutOfRange.
	SetParameter(name string, value float64) error

	// Constants returns a copy of the immutable values.
	Constants() map[string]float64
}

// BatchSetter is implemented by peripheries whose parameters constrain
// each other, such as a lower and upper bound. The registry hands it
// every entry a file holds for the periphery in one call, so only the
// combined result has to be valid. A rejected batch changes nothing.
type BatchSetter interface {
	SetParameters(params map[string]float64) error
}
