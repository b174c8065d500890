package sensor

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownStream   = errors.New("unknown stream")
	ErrNotAttached     = errors.New("registry not attached")
	ErrAlreadyAttached = errors.New("registry already attached")
)

type ErrorClass int

const (
	CapabilityAbsent ErrorClass = iota // requested sensor does not exist on this device
	DeliveryFault                      // source reported a fault on an active registration
)

func (c ErrorClass) String() string {
	switch c {
	case CapabilityAbsent:
		return "CapabilityAbsent"
	case DeliveryFault:
		return "DeliveryFault"
	default:
		return "Unknown"
	}
}

// StreamError is the error payload delivered through a sink.
type StreamError struct {
	Class   ErrorClass
	Code    string
	Message string
	Details string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func absentError(kind Kind) *StreamError {
	msg := fmt.Sprintf("%s sensor not found", kind)
	return &StreamError{
		Class:   CapabilityAbsent,
		Code:    kind.ErrorCode(),
		Message: msg,
		Details: msg,
	}
}

func faultError(kind Kind, err error) *StreamError {
	return &StreamError{
		Class:   DeliveryFault,
		Code:    kind.ErrorCode(),
		Message: err.Error(),
	}
}
