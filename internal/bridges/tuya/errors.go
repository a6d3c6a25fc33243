package tuya

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the tuya bridge package.
var (
	// ErrUnknownCommand is returned when a command name has no datapoint.
	ErrUnknownCommand = errors.New("tuya: unknown command")

	// ErrInvalidValue is returned when a value cannot be coerced to the
	// datapoint's type or is outside its enumeration.
	ErrInvalidValue = errors.New("tuya: invalid value")

	// ErrReadOnly is returned when a command targets a read-only datapoint.
	ErrReadOnly = errors.New("tuya: datapoint is read-only")

	// ErrNotConnected is returned by the link when no session exists.
	ErrNotConnected = errors.New("tuya: not connected to device")

	// ErrMissingCredentials is returned when the identity lacks an ID, address or key.
	ErrMissingCredentials = errors.New("tuya: missing device credentials")

	// ErrWriteFailed is returned when a translated command could not be sent.
	ErrWriteFailed = errors.New("tuya: failed to send command")

	// ErrInvalidTable is returned when a datapoint table fails validation.
	ErrInvalidTable = errors.New("tuya: invalid datapoint table")
)

// ValidationError describes a command rejected before any device I/O.
//
// It unwraps to ErrUnknownCommand, ErrInvalidValue or ErrReadOnly so callers
// can branch with errors.Is, and carries the valid enumeration values when
// the rejection was a membership failure.
type ValidationError struct {
	Command string
	Value   any
	Reason  string
	Valid   []string
	kind    error
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.kind, ErrUnknownCommand):
		return "unknown command: " + e.Command
	case errors.Is(e.kind, ErrReadOnly):
		return "command is read-only: " + e.Command
	case len(e.Valid) > 0:
		return fmt.Sprintf("invalid value %v for %s: must be one of [%s]",
			e.Value, e.Command, strings.Join(e.Valid, ", "))
	case e.Reason != "":
		return fmt.Sprintf("invalid value %v for %s: %s", e.Value, e.Command, e.Reason)
	default:
		return fmt.Sprintf("%s: %v", e.kind, e.Command)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

func unknownCommand(name string, value any) *ValidationError {
	return &ValidationError{Command: name, Value: value, kind: ErrUnknownCommand}
}

func invalidValue(name string, value any, reason string) *ValidationError {
	return &ValidationError{Command: name, Value: value, Reason: reason, kind: ErrInvalidValue}
}

func notInEnum(name string, value any, valid []string) *ValidationError {
	return &ValidationError{
		Command: name,
		Value:   value,
		Valid:   append([]string(nil), valid...),
		kind:    ErrInvalidValue,
	}
}

func readOnly(name string, value any) *ValidationError {
	return &ValidationError{Command: name, Value: value, kind: ErrReadOnly}
}
