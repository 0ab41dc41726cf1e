package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed AgentResponse.
type ErrorCode string

const (
	ErrAgentNotFound        ErrorCode = "AGENT_NOT_FOUND"
	ErrPermissionDenied     ErrorCode = "PERMISSION_DENIED"
	ErrValidation           ErrorCode = "VALIDATION_ERROR"
	ErrRateLimited          ErrorCode = "RATE_LIMITED"
	ErrContext              ErrorCode = "CONTEXT_ERROR"
	ErrExecutionFailed      ErrorCode = "EXECUTION_FAILED"
	ErrBatchExecutionFailed ErrorCode = "BATCH_EXECUTION_FAILED"
)

// Retryable reports whether a caller may retry the same request later.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrRateLimited, ErrContext, ErrExecutionFailed, ErrBatchExecutionFailed:
		return true
	}
	return false
}

// AgentError is the structured failure carried by AgentResponse. It also
// implements error so pipeline stages can return it directly.
type AgentError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	cause error
}

func (e *AgentError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *AgentError) Unwrap() error { return e.cause }

// NewAgentError builds an AgentError with a formatted message.
func NewAgentError(code ErrorCode, format string, args ...any) *AgentError {
	return &AgentError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapAgentError classifies an underlying error under code.
func WrapAgentError(code ErrorCode, err error, message string) *AgentError {
	return &AgentError{Code: code, Message: message + ": " + err.Error(), cause: err}
}

// WithDetail attaches a detail entry and returns the error for chaining.
func (e *AgentError) WithDetail(key string, value any) *AgentError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the ErrorCode from err, defaulting to EXECUTION_FAILED.
func CodeOf(err error) ErrorCode {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrExecutionFailed
}
