package guard

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations issued against a closed store,
	// including operations still waiting for admission when Close was called.
	ErrClosed = errors.New("guard: store is closed")

	// ErrUnknownBackend is returned by New and ParseBackend for an unrecognised backend name.
	ErrUnknownBackend = errors.New("guard: unknown backend")
)

// AdmissionError is returned when a caller gives up waiting for a store
// before being admitted. The caller's transition never ran.
type AdmissionError struct {
	Store string
	Err   error // the context error that ended the wait
}

// Error implements the error interface.
func (e *AdmissionError) Error() string {
	return fmt.Sprintf("guard %s: not admitted: %v", e.Store, e.Err)
}

// Unwrap exposes the context error so errors.Is(err, context.DeadlineExceeded) holds.
func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// IsNotAdmitted reports whether err means the operation never ran because
// its context ended while waiting.
// Uses errors.As to handle wrapped errors.
func IsNotAdmitted(err error) bool {
	var ae *AdmissionError
	return errors.As(err, &ae)
}
