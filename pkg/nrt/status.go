package nrt

import (
	"errors"
	"fmt"
)

// Code is the status code attached to a failed replica RPC.
type Code uint8

const (
	CodeUnknown Code = iota
	CodeUnavailable
	CodeFailedPrecondition
	CodeDeadlineExceeded
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeUnavailable:
		return "UNAVAILABLE"
	case CodeFailedPrecondition:
		return "FAILED_PRECONDITION"
	case CodeDeadlineExceeded:
		return "DEADLINE_EXCEEDED"
	case CodeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// ParseCode converts a wire code string back to a Code.
func ParseCode(s string) Code {
	switch s {
	case "UNAVAILABLE":
		return CodeUnavailable
	case "FAILED_PRECONDITION":
		return CodeFailedPrecondition
	case "DEADLINE_EXCEEDED":
		return CodeDeadlineExceeded
	case "INTERNAL":
		return CodeInternal
	default:
		return CodeUnknown
	}
}

// StatusError is a replica RPC failure carrying a status code. Only
// CodeUnavailable and CodeFailedPrecondition mean the replica is lost to this
// primary; everything else is treated as transient.
type StatusError struct {
	Code    Code
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Statusf builds a StatusError with a formatted message.
func Statusf(code Code, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the status code from an error chain, or CodeUnknown.
func CodeOf(err error) Code {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// IsFatalReplicaStatus reports whether a broadcast failure means the replica
// should be closed and dropped from the registry.
func IsFatalReplicaStatus(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeFailedPrecondition:
		return true
	default:
		return false
	}
}
