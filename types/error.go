package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Schema compiler error codes
const (
	ErrSpecParse           ErrorCode = "SPEC_PARSE"
	ErrReferenceResolution ErrorCode = "REFERENCE_RESOLUTION"
	ErrCyclicReference     ErrorCode = "CYCLIC_REFERENCE"
)

// Router and dispatcher error codes
const (
	ErrRoutingFallback          ErrorCode = "ROUTING_FALLBACK"
	ErrMissingRequiredParameter ErrorCode = "MISSING_REQUIRED_PARAMETER"
	ErrActionNotFound           ErrorCode = "ACTION_NOT_FOUND"
	ErrActionExecution          ErrorCode = "ACTION_EXECUTION"
	ErrMaxRetriesExceeded       ErrorCode = "MAX_RETRIES_EXCEEDED"
)

// Generation backend error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error carrying the same code, so
// sentinel values such as ErrCyclic match any cyclic-reference error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// Sentinels for errors.Is checks. Only the code is compared.
var (
	ErrSpec         = &Error{Code: ErrSpecParse}
	ErrCyclic       = &Error{Code: ErrCyclicReference}
	ErrMissingParam = &Error{Code: ErrMissingRequiredParameter}
	ErrMaxRetries   = &Error{Code: ErrMaxRetriesExceeded}
)

// NewSpecParseError reports an unreadable or malformed API description.
func NewSpecParseError(source string, cause error) *Error {
	return NewError(ErrSpecParse, "cannot parse api description "+source).WithCause(cause)
}

// NewCyclicReferenceError reports a $ref chain that revisits ref.
func NewCyclicReferenceError(ref string) *Error {
	return NewError(ErrCyclicReference, "cyclic reference "+ref)
}

// NewMissingParameterError reports required tool arguments that are absent or empty.
func NewMissingParameterError(tool string, missing []string) *Error {
	return NewError(ErrMissingRequiredParameter, fmt.Sprintf("tool %s missing %v", tool, missing))
}

// NewMaxRetriesExceededError reports an exhausted retry budget.
func NewMaxRetriesExceededError(attempts int, cause error) *Error {
	return NewError(ErrMaxRetriesExceeded, fmt.Sprintf("gave up after %d attempts", attempts)).WithCause(cause)
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
