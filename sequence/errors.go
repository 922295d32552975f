package sequence

import (
	"errors"
	"fmt"
)

// Reason classifies an allocation failure.
type Reason string

const (
	// ReasonSequenceUnknown: the name was never configured. Not retryable.
	ReasonSequenceUnknown Reason = "SEQUENCE_UNKNOWN"
	// ReasonDuplicateSequence: conflicting re-configuration. Fatal at bootstrap.
	ReasonDuplicateSequence Reason = "DUPLICATE_SEQUENCE"
	// ReasonInvalidConfig: the definition itself is malformed. Fatal at bootstrap.
	ReasonInvalidConfig Reason = "INVALID_CONFIG"
	// ReasonTransportFailure: a refill round trip failed. Retryable.
	ReasonTransportFailure Reason = "TRANSPORT_FAILURE"
	// ReasonEmulationRoundTripFailure: the counter table read-modify-write failed. Retryable.
	ReasonEmulationRoundTripFailure Reason = "EMULATION_ROUND_TRIP_FAILURE"
	// ReasonRegistryClosed: the owning registry was torn down.
	ReasonRegistryClosed Reason = "REGISTRY_CLOSED"
)

// Sentinels for errors.Is checks against an *AllocationError.
var (
	ErrSequenceUnknown           = errors.New("sequence unknown")
	ErrDuplicateSequence         = errors.New("duplicate sequence")
	ErrInvalidConfig             = errors.New("invalid sequence config")
	ErrTransportFailure          = errors.New("sequence transport failure")
	ErrEmulationRoundTripFailure = errors.New("emulation round trip failure")
	ErrRegistryClosed            = errors.New("sequence registry closed")
	ErrCounterOutOfRange         = errors.New("raw counter outside reversible domain")
	ErrEmptyFetch                = errors.New("backend returned no values")
)

var reasonSentinels = map[Reason]error{
	ReasonSequenceUnknown:           ErrSequenceUnknown,
	ReasonDuplicateSequence:         ErrDuplicateSequence,
	ReasonInvalidConfig:             ErrInvalidConfig,
	ReasonTransportFailure:          ErrTransportFailure,
	ReasonEmulationRoundTripFailure: ErrEmulationRoundTripFailure,
	ReasonRegistryClosed:            ErrRegistryClosed,
}

// AllocationError is returned by every registry and allocator operation.
type AllocationError struct {
	Reason   Reason
	Sequence string
	Err      error
}

func (e *AllocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: sequence %q: %v", e.Reason, e.Sequence, e.Err)
	}
	return fmt.Sprintf("%s: sequence %q", e.Reason, e.Sequence)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's reason, so callers can write
// errors.Is(err, sequence.ErrTransportFailure).
func (e *AllocationError) Is(target error) bool {
	return reasonSentinels[e.Reason] == target
}

// Retryable reports whether calling Next again may succeed.
func (e *AllocationError) Retryable() bool {
	return e.Reason == ReasonTransportFailure || e.Reason == ReasonEmulationRoundTripFailure
}

func newError(reason Reason, name string, err error) *AllocationError {
	return &AllocationError{Reason: reason, Sequence: name, Err: err}
}

// ReasonOf extracts the reason from err, or "" if err is not an AllocationError.
func ReasonOf(err error) Reason {
	var ae *AllocationError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
