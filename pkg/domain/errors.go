package domain

import (
	"errors"
	"net/http"
)

// Common domain errors
var (
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrMissingDomain        = errors.New("proxy domain not configured")
	ErrAuthNotConfigured    = errors.New("authentication backend not configured")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPathTraversal        = errors.New("path traversal attempt")
	ErrUpstreamUnreachable  = errors.New("upstream service unreachable")
	ErrUpstreamTimeout      = errors.New("upstream service timed out")
	ErrNotFound             = errors.New("not found")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// StatusCode maps an error onto the HTTP status the relay answers with.
// Unclassified errors are reported as 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthNotConfigured), errors.Is(err, ErrConfigInvalid), errors.Is(err, ErrMissingDomain):
		return http.StatusInternalServerError
	case errors.Is(err, ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPathTraversal):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show a client for err. It never
// includes wrapped causes, which may carry upstream hostnames or
// credentials.
func PublicMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	switch StatusCode(err) {
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Not Found"
	case http.StatusBadGateway:
		return "Bad Gateway"
	case http.StatusGatewayTimeout:
		return "Gateway Timeout"
	default:
		return "Internal Server Error"
	}
}
