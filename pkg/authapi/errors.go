package authapi

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when the client is built without an API key.
	ErrNoAPIKey = errors.New("authapi: API key required")

	// ErrNoImage is returned when a request carries no image.
	ErrNoImage = errors.New("authapi: image required")
)

// APIError is a non-2xx response from the face auth service.
// Message holds the service's "detail" field, or a generic message when
// the body carried none, and is what Error returns.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the human-readable error.
	Message string

	// Endpoint is the path that was called.
	Endpoint string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized returns true for a rejected API key (HTTP 401/403).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsClientError returns true for 4xx responses.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// TransportError wraps a failure to reach the service or read its reply.
type TransportError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("face auth request to %s failed: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsAPIError reports whether err is (or wraps) an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
