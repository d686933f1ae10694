package scope

import (
	"errors"
	"fmt"
)

// InvalidChannelError indicates a channel name outside the pod's input set.
// It is raised before any device interaction.
type InvalidChannelError struct {
	Name string
}

func (e InvalidChannelError) Error() string {
	return fmt.Sprintf("invalid channel %q", e.Name)
}

// TypeMismatchError indicates a channel that exists but cannot serve the
// requested role under the current slot mapping, e.g. a trigger source that
// is not routed to the ADC.
type TypeMismatchError struct {
	Input  Input
	Reason string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("channel %s: %s", e.Input, e.Reason)
}

// Reasons carried by RangeError.
const (
	ReasonTooManyChannels = "too many channels"
	ReasonTooManySamples  = "too many samples"
	ReasonTimegapSmall    = "timegap too small"
	ReasonTimegapLarge    = "timegap too large"
	ReasonBadSamples      = "sample count must be positive"
	ReasonRange           = "range unsupported"
)

// RangeError indicates a numeric parameter outside the pod's capability.
type RangeError struct {
	Reason string
	Value  float64
	Limit  float64
}

func (e RangeError) Error() string {
	return fmt.Sprintf("%s: requested %g, device limit %g", e.Reason, e.Value, e.Limit)
}

// TransportError wraps a communication failure with the pod.  The pod's
// state is unknown afterwards; the core never retries, the caller decides
// whether to attempt a fresh capture.
type TransportError struct {
	Op  string
	Err error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying handler error.
func (e TransportError) Unwrap() error {
	return e.Err
}

// ErrorClass names the taxonomy class of an error from this package:
// invalid_channel, type_mismatch, range or transport.  Anything else is
// classed other.  The daemon keys its error metrics on these names.
func ErrorClass(err error) string {
	var (
		invalid  InvalidChannelError
		mismatch TypeMismatchError
		rng      RangeError
		transp   TransportError
	)
	switch {
	case errors.As(err, &invalid):
		return "invalid_channel"
	case errors.As(err, &mismatch):
		return "type_mismatch"
	case errors.As(err, &rng):
		return "range"
	case errors.As(err, &transp):
		return "transport"
	default:
		return "other"
	}
}
