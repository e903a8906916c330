package scopus

import (
	"errors"
	"fmt"

	"github.com/matsen/citegraph/internal/fetch"
)

// Common errors returned by the Scopus client.
var (
	// ErrNotFound indicates the identifier is unknown to Scopus. It wraps
	// fetch.ErrNotFound so callers outside this package can test for it.
	ErrNotFound = fmt.Errorf("not found in Scopus: %w", fetch.ErrNotFound)

	// ErrAuthError indicates an authentication error (missing/invalid API key).
	ErrAuthError = errors.New("Scopus authentication error")

	// ErrRateLimited indicates the per-second throttle was hit.
	ErrRateLimited = errors.New("Scopus rate limit exceeded")

	// ErrQuotaExceeded indicates the weekly key quota is used up.
	ErrQuotaExceeded = errors.New("Scopus quota exceeded")

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = errors.New("network error communicating with Scopus")

	// ErrInvalidResponse indicates an unexpected API response.
	ErrInvalidResponse = errors.New("invalid response from Scopus")

	// ErrUnknownIDType indicates an identifier whose type cannot be detected.
	ErrUnknownIDType = errors.New("cannot detect identifier type")
)

// APIError represents an error status returned by the Scopus API.
type APIError struct {
	StatusCode int
	Code       string // statusCode from the service-error body, e.g. "GENERAL_SYSTEM_ERROR"
	Message    string
	ID         string // For context in identifier-related errors
}

func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("Scopus API error (status %d, code %s): %s (id: %s)", e.StatusCode, e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("Scopus API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404 || apiErr.Code == "RESOURCE_NOT_FOUND"
	}
	return false
}

// IsAuthError returns true if the error indicates an authentication problem.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthError) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403 || apiErr.Code == "AUTHENTICATION_ERROR"
	}
	return false
}

// IsRateLimited returns true if the error indicates throttling or an
// exhausted quota.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
