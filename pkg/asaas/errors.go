package asaas

import (
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Operation  string
	StatusCode int
	Errors     []ErrorItem
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("asaas %s: status %d: %s", e.Operation, e.StatusCode, e.Description())
}

// Description joins every error description returned by the gateway.
func (e *APIError) Description() string {
	if e == nil {
		return ""
	}
	if len(e.Errors) == 0 {
		return http.StatusText(e.StatusCode)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		if item.Description != "" {
			parts = append(parts, item.Description)
		} else if item.Code != "" {
			parts = append(parts, item.Code)
		}
	}
	return strings.Join(parts, "; ")
}

// Temporary reports whether the status code signals a transient failure.
func (e *APIError) Temporary() bool {
	if e == nil {
		return false
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

// TransportError wraps failures that never produced a usable response:
// network errors, timeouts and an open circuit breaker.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("asaas %s: transport: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
