package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common error types for agents and handlers
var (
	// ErrInvalidInput indicates a request is missing fields or carries bad values
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConfigured indicates a required key or backend is absent
	ErrNotConfigured = errors.New("not configured")

	// ErrUpstream indicates the model or another remote service failed
	ErrUpstream = errors.New("upstream request failed")

	// ErrParse indicates the model did not return parseable output
	ErrParse = errors.New("could not parse model response")

	// ErrNotFound indicates a missing record
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a write based on stale state
	ErrConflict = errors.New("conflict")

	// ErrTimeout indicates a deadline was hit waiting on the model
	ErrTimeout = errors.New("operation timed out")
)

// AgentError represents an error that occurred while running a capability
type AgentError struct {
	Capability string
	Err        error
	Details    map[string]interface{}
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s failed: %v", e.Capability, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new agent error
func NewAgentError(capability string, err error) *AgentError {
	return &AgentError{
		Capability: capability,
		Err:        err,
		Details:    make(map[string]interface{}),
	}
}

// Invalid wraps a message as ErrInvalidInput
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotConfigured wraps a message as ErrNotConfigured
func NotConfigured(what string) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, what)
}

// IsInvalidInput checks if an error is a client-side input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// StatusFor maps an error to the HTTP status the API responds with.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
