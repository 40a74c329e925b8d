package core

import "github.com/pkg/errors"

// Errors reported at the command and configuration boundary. Callers match
// them with errors.Is; wrapped variants carry the offending value.
var (
	// ErrInvalidArgument is returned for parameters outside the physical
	// or configured limits. The rejected request has no effect.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBusy is returned for a settings change while a motion is active.
	ErrBusy = errors.New("busy")

	ErrNotSupported = errors.New("not supported")

	// ErrSensorFault is returned by drivers for an implausible reading.
	ErrSensorFault = errors.New("sensor fault")

	// ErrDriverFault is returned by motor drivers that failed to apply an
	// output.
	ErrDriverFault = errors.New("driver fault")
)
