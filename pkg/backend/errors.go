package backend

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid backend config")
	ErrSessionClosed     = errors.New("backend session is closed")
	ErrUnsupportedModel  = errors.New("model does not support forward passes")
	ErrPrecisionMismatch = errors.New("model dtype does not match configured precision")
)
