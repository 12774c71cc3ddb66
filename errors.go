package metadefender

import (
	"errors"
	"fmt"
)

// Error codes for machine-readable error classification.
const (
	CodeConfiguration = "configuration_error"
	CodeTransport     = "transport_error"
	CodeTimeout       = "timeout"
	CodeProtocol      = "protocol_violation"
	CodeJobNotFound   = "job_not_found"
	CodePollTimeout   = "poll_timeout"
	CodeValidation    = "validation_error"
)

// Error is the base error type for all client and workflow errors.
type Error struct {
	// Code is a machine-readable error code.
	Code string
	// Message is a human-readable error description.
	Message string
	// StatusCode is the HTTP status code, when the error came from a response.
	StatusCode int
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates an error indicating required configuration is missing.
func NewConfigurationError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeConfiguration,
		Message: msg,
		Cause:   cause,
	}
}

// NewTransportError creates an error indicating the request could not be
// completed or its response body could not be read.
func NewTransportError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeTransport,
		Message: msg,
		Cause:   cause,
	}
}

// NewTimeoutError creates an error indicating a request timed out or was canceled.
func NewTimeoutError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeTimeout,
		Message: msg,
		Cause:   cause,
	}
}

// NewProtocolViolationError creates an error for a response status the
// operation does not define.
func NewProtocolViolationError(msg string, statusCode int, cause error) *Error {
	return &Error{
		Code:       CodeProtocol,
		Message:    msg,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewJobNotFoundError creates an error for a data_id the service does not know.
func NewJobNotFoundError(dataID string) *Error {
	return &Error{
		Code:       CodeJobNotFound,
		Message:    fmt.Sprintf("data_id %q not found", dataID),
		StatusCode: 404,
	}
}

// NewPollTimeoutError creates an error indicating polling gave up before the
// analysis reached the completion threshold.
func NewPollTimeoutError(msg string) *Error {
	return &Error{
		Code:    CodePollTimeout,
		Message: msg,
	}
}

// NewValidationError creates an error indicating invalid input.
func NewValidationError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: msg,
		Cause:   cause,
	}
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfigurationError reports whether err is or wraps a configuration error.
func IsConfigurationError(err error) bool { return hasCode(err, CodeConfiguration) }

// IsTransportError reports whether err is or wraps a transport error.
func IsTransportError(err error) bool { return hasCode(err, CodeTransport) }

// IsTimeoutError reports whether err is or wraps a request timeout error.
func IsTimeoutError(err error) bool { return hasCode(err, CodeTimeout) }

// IsProtocolViolation reports whether err is or wraps a protocol violation.
func IsProtocolViolation(err error) bool { return hasCode(err, CodeProtocol) }

// IsJobNotFound reports whether err is or wraps a job-not-found error.
func IsJobNotFound(err error) bool { return hasCode(err, CodeJobNotFound) }

// IsPollTimeoutError reports whether err is or wraps a poll timeout.
func IsPollTimeoutError(err error) bool { return hasCode(err, CodePollTimeout) }

// IsValidationError reports whether err is or wraps a validation error.
func IsValidationError(err error) bool { return hasCode(err, CodeValidation) }
