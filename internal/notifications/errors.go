package notifications

import (
	"fmt"
	"strings"
)

// FieldError describes a single validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationError reports malformed or unsupported input. It is always
// caused by the client.
type ValidationError struct {
	Problems []FieldError
}

// NewValidationError builds a ValidationError with a single problem.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Problems: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

// NotFoundError reports a channel without a registered backend.
type NotFoundError struct {
	Channel Channel
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown channel: %s", e.Channel)
}

// ServiceError reports a failed call to a chat vendor. Code and Message
// carry the vendor's own error detail when there is one.
type ServiceError struct {
	Channel Channel
	Code    int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Channel, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Channel, e.Err)
	default:
		return fmt.Sprintf("%s: %d - %s", e.Channel, e.Code, e.Message)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// VendorError builds a ServiceError from a vendor status code and message.
func VendorError(channel Channel, code int, message string) *ServiceError {
	return &ServiceError{Channel: channel, Code: code, Message: message}
}

// TransportError wraps a network or decoding failure talking to a vendor.
func TransportError(channel Channel, op string, err error) *ServiceError {
	return &ServiceError{Channel: channel, Message: op, Err: err}
}
