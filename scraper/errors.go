package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials means the storefront answered the login but
	// did not show a signed-in page.
	ErrInvalidCredentials = errors.New("invalid credentials or rejected session")

	// ErrSessionClosed is returned for requests on a closed session.
	ErrSessionClosed = errors.New("scraper: session closed")
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrStatus indicates any other unsuccessful HTTP status.
type ErrStatus struct {
	StatusCode int
	Err        error
}

func (e ErrStatus) Error() string {
	return fmt.Errorf("status %d: %w", e.StatusCode, e.Err).Error()
}

func (e ErrStatus) Unwrap() error {
	return e.Err
}

// ErrAuth indicates the login did not produce a signed-in session.
// Err is either ErrInvalidCredentials or the transport failure.
type ErrAuth struct {
	StatusCode int
	Err        error
}

func (e ErrAuth) Error() string {
	return fmt.Errorf("auth: %w", e.Err).Error()
}

func (e ErrAuth) Unwrap() error {
	return e.Err
}

// ErrProfile indicates the profile page could not be read.
type ErrProfile struct {
	Err error
}

func (e ErrProfile) Error() string {
	return fmt.Errorf("profile: %w", e.Err).Error()
}

func (e ErrProfile) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var auth ErrAuth
	if errors.As(err, &auth) {
		return "auth"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return "status"
	}
	var profile ErrProfile
	if errors.As(err, &profile) {
		return "profile"
	}
	return "other"
}

// RequestError describes a failed storefront request. Err carries the
// classified cause (ErrTimeout, ErrNotFound, ...).
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Errorf("%s %s: %w", e.Method, e.URL, e.Err).Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func statusCodeOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}
