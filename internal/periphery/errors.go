package periphery

import (
	"errors"
	"fmt"
)

// Sentinel errors for periphery and registry operations.
var (
	// ErrUnknownParameter is returned by SetParameter for a name the
	// periphery does not have.
	ErrUnknownParameter = errors.New("periphery: unknown parameter")

	// ErrParameterOutOfRange is returned by SetParameter for a value the
	// periphery rejects.
	ErrParameterOutOfRange = errors.New("periphery: parameter out of range")

	// ErrConfigRead is returned when a config file cannot be read or parsed.
	ErrConfigRead = errors.New("periphery: config read failed")

	// ErrConfigWrite is returned when a config file cannot be written.
	ErrConfigWrite = errors.New("periphery: config write failed")

	// ErrPartialApply is returned when an apply failed and was rolled back
	// to the backup snapshot.
	ErrPartialApply = errors.New("periphery: partial apply rolled back")

	// ErrInconsistentState is returned when a failed apply could not be
	// rolled back. Parameters are in an unknown state.
	ErrInconsistentState = errors.New("periphery: registry inconsistent")

	// ErrNoBackup is returned when a rollback finds no backup file.
	// It also matches ErrInconsistentState.
	ErrNoBackup error = &noBackupError{}

	// ErrInitialization is returned when a periphery fails to initialise.
	ErrInitialization = errors.New("periphery: initialization failed")

	// ErrDuplicate is returned when registering a name twice.
	ErrDuplicate = errors.New("periphery: duplicate name")
)

type noBackupError struct{}

func (*noBackupError) Error() string { return "periphery: no backup available for rollback" }

func (*noBackupError) Is(target error) bool { return target == ErrInconsistentState }

// ParameterError describes a rejected parameter value.
type ParameterError struct {
	Periphery string
	Parameter string
	Value     float64
	Reason    string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("periphery: %s.%s = %v rejected: %s", e.Periphery, e.Parameter, e.Value, e.Reason)
}

// Unwrap makes errors.Is(err, ErrParameterOutOfRange) true.
func (e *ParameterError) Unwrap() error { return ErrParameterOutOfRange }
