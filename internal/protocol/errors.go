package protocol

import (
	"errors"
	"strings"
)

// DefaultErrorMessage replaces empty failure texts.
const DefaultErrorMessage = "an error occurred."

var (
	ErrUnknownMessage  = errors.New("unknown message.")
	ErrContextNotFound = errors.New("context not found.")
	ErrInvalidEnvelope = errors.New("protocol: invalid envelope")
)

// FieldError is a guard failure. Its text is what peers see.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidEnvelope
}

// NewError builds an error envelope without a context.
func NewError(message string) *Error {
	return &Error{Message: normalizeMessage(message)}
}

// NewContextError builds an error envelope bound to context.
func NewContextError(context uint64, message string) *Error {
	return &Error{Context: &context, Message: normalizeMessage(message)}
}

// ErrorFrom reuses an error envelope found in err's chain as-is, or
// synthesizes one without a context.
func ErrorFrom(err error) *Error {
	var env *Error
	if errors.As(err, &env) {
		return env
	}
	if err == nil {
		return NewError("")
	}
	return NewError(err.Error())
}

func normalizeMessage(message string) string {
	if strings.TrimSpace(message) == "" {
		return DefaultErrorMessage
	}
	return message
}
