package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the different kinds of failure a capture run can hit
type ErrorType string

const (
	ErrorTypeParameter ErrorType = "parameter"
	ErrorTypeRemote    ErrorType = "remote"
	ErrorTypeImageTool ErrorType = "image_tool"
	ErrorTypeWorkspace ErrorType = "workspace"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a capture error with type information
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Type, e.Op, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without an underlying cause
func New(errorType ErrorType, op, message string) *Error {
	return &Error{Type: errorType, Op: op, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(errorType ErrorType, op, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a type and operation to err. A nil err stays nil.
func Wrap(errorType ErrorType, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Type: errorType, Op: op, Err: err}
}

// TypeOf returns the type of the first typed error in err's chain
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsType checks if err carries the given error type
func IsType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == errorType
}
