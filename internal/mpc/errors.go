package mpc

import "errors"

var (
	// ErrDimension indicates mismatched matrix or vector dimensions.
	ErrDimension = errors.New("dimension mismatch")

	// ErrHorizon indicates a prediction horizon shorter than one step.
	ErrHorizon = errors.New("horizon must be at least 1")
)
