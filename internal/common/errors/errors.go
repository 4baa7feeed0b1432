// Package errors provides the standardized error taxonomy of the estimation engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Caller input errors (400-class, caller must fix the request).
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Rate limiting, either the local inter-request gate or an upstream 429.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Network / body-parse failures talking to the marketplace.
	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"

	// Marketplace reachable but answered with an unexpected status.
	ErrCodeUpstreamFailed ErrorCode = "UPSTREAM_FAILED"

	// Non-fatal sink failures, logged but never surfaced to the caller.
	ErrCodeCacheWriteFailed  ErrorCode = "CACHE_WRITE_FAILED"
	ErrCodeObservationFailed ErrorCode = "OBSERVATION_FAILED"
)

// EstimationError represents a structured application error.
type EstimationError struct {
	Code       ErrorCode     `json:"code"`
	Message    string        `json:"message"`
	Details    string        `json:"details,omitempty"`
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	cause      error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("EstimationError[%s]: %s", e.Code, e.Message)
}

func (e *EstimationError) Unwrap() error {
	return e.cause
}

// ==========================
// Error Constructors
// ==========================

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(details string) *EstimationError {
	return &EstimationError{
		Code:      ErrCodeValidationFailed,
		Message:   "Missing or malformed required input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a retryable throttle error carrying a
// retry-after hint for the caller.
func NewRateLimitedError(details string, retryAfter time.Duration) *EstimationError {
	return &EstimationError{
		Code:       ErrCodeRateLimited,
		Message:    "Too many requests, slow down",
		Details:    details,
		Retryable:  true,
		RetryAfter: retryAfter,
		Timestamp:  time.Now().UTC(),
	}
}

// NewTransportError creates a retryable network/parse error.
func NewTransportError(err error) *EstimationError {
	return &EstimationError{
		Code:      ErrCodeTransportFailed,
		Message:   "Marketplace request failed in transit",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewUpstreamError creates a non-retryable upstream response error.
func NewUpstreamError(status int, details string) *EstimationError {
	return &EstimationError{
		Code:      ErrCodeUpstreamFailed,
		Message:   fmt.Sprintf("Marketplace answered with status %d", status),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheWriteError creates a non-fatal cache write error.
func NewCacheWriteError(err error) *EstimationError {
	return &EstimationError{
		Code:      ErrCodeCacheWriteFailed,
		Message:   "Estimation cache write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewObservationError creates a non-fatal observation sink error.
func NewObservationError(err error) *EstimationError {
	return &EstimationError{
		Code:      ErrCodeObservationFailed,
		Message:   "Price observation insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// Utility Functions
// ==========================

// AsEstimationError unwraps err into an *EstimationError when possible.
func AsEstimationError(err error) (*EstimationError, bool) {
	var ee *EstimationError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	if ee, ok := AsEstimationError(err); ok {
		return ee.Code == code
	}
	return false
}

// IsRetryable reports whether the error class permits a retry.
func IsRetryable(err error) bool {
	if ee, ok := AsEstimationError(err); ok {
		return ee.Retryable
	}
	return false
}

// HTTPStatus maps an error to the status the API layer should answer with.
func HTTPStatus(err error) int {
	ee, ok := AsEstimationError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ee.Code {
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
