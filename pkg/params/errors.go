package params

import (
	"errors"
	"fmt"
)

var (
	ErrParameterMismatch = errors.New("parameter set does not match model layout")
	ErrInvalidEncoding   = errors.New("invalid parameter encoding")
)

// MismatchError describes the first disagreement found between a
// ParameterSet and a model layout. Index is -1 for count mismatches.
type MismatchError struct {
	Index  int
	Slot   string
	Reason string
}

func (e *MismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", ErrParameterMismatch, e.Reason)
	}
	if e.Slot != "" {
		return fmt.Sprintf("%s: slot %d (%s): %s", ErrParameterMismatch, e.Index, e.Slot, e.Reason)
	}

	return fmt.Sprintf("%s: slot %d: %s", ErrParameterMismatch, e.Index, e.Reason)
}

func (e *MismatchError) Unwrap() error {
	return ErrParameterMismatch
}
