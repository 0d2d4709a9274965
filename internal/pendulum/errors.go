package pendulum

import "errors"

var (
	// ErrBadParams indicates a physically invalid parameter set.
	ErrBadParams = errors.New("invalid physical parameters")

	// ErrBadStep indicates a sample interval outside the validated range.
	ErrBadStep = errors.New("invalid sample interval")
)
