package api

import (
	"errors"
	"fmt"
)

// Machine-readable error codes shared with the conversion service.
// Validation codes are raised locally before any network call; the rest
// normalize server and transport failures into one shape.
const (
	CodeHTTPError       = "HTTP_ERROR"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeNoFile          = "NO_FILE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeUnsupportedType = "UNSUPPORTED_FILE_TYPE"
	CodePollingTimeout  = "POLLING_TIMEOUT"
	CodeJobExpired      = "JOB_EXPIRED"
)

// Error is the single error shape every caller branches on.
// Status is the HTTP status code, 0 when the server was never reached
// (transport failure or local validation). Code carries the
// machine-readable reason, Message the human-readable one.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("[%s] %s (status %d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewError builds a client-side error that never touched the network.
func NewError(code, message string) *Error {
	return &Error{Status: 0, Code: code, Message: message}
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code string) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsNetwork reports whether err represents an unreachable server.
func IsNetwork(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 0 && apiErr.Code == CodeNetworkError
	}
	return false
}

// IsNotFound reports whether the server answered 404 — for job status
// checks this means the job is unknown and must be purged, not retried.
func IsNotFound(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 404
	}
	return false
}
