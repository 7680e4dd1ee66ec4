package salla

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped from Salla API response codes.
var (
	// ErrUnauthorized indicates an expired or revoked token (401).
	ErrUnauthorized = errors.New("salla: unauthorized")
	// ErrNotFound indicates a missing remote resource (404).
	ErrNotFound = errors.New("salla: resource not found")
	// ErrValidation indicates the API rejected the payload (422).
	ErrValidation = errors.New("salla: validation failed")
	// ErrRateLimited indicates the API throttled the caller (429).
	ErrRateLimited = errors.New("salla: rate limited")
)

// APIError carries the status code and message of a failed API call.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("salla: [%d] %s", e.StatusCode, e.Message)
	}
	return "salla: " + e.Message
}

// Unwrap maps well-known status codes onto the sentinel errors so callers
// can branch with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 401:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	case 422:
		return ErrValidation
	case 429:
		return ErrRateLimited
	default:
		return nil
	}
}

// IsRetryable reports whether the call may succeed on retry. Rate limits and
// server-side failures are retryable, client errors are not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	if errors.Is(err, ErrNotConnected) {
		return false
	}
	// Transport-level failures (timeouts, connection resets) surface as
	// plain wrapped errors and are worth retrying.
	return err != nil
}
