// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for the
// agent loop. Codes classify failures for logging, metrics and recovery.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies agent errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidPlan indicates a model plan failed validation.
	CodeInvalidPlan ErrorCode = "INVALID_PLAN"

	// CodeToolFailure indicates a tool invocation failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeTransport indicates the MCP transport failed (poll or call).
	CodeTransport ErrorCode = "TRANSPORT_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeStalled indicates a task stopped making progress.
	CodeStalled ErrorCode = "TASK_STALLED"

	// CodeDiaryIO indicates the durable diary could not be written.
	CodeDiaryIO ErrorCode = "DIARY_IO"

	// CodeLLMError indicates an inference backend error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// AgentError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type AgentError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *AgentError) MarshalJSON() ([]byte, error) {
	type Alias AgentError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new AgentError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *AgentError {
	return &AgentError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *AgentError) WithContext(key string, value interface{}) *AgentError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *AgentError) WithRecoverable(recoverable bool) *AgentError {
	e.Recoverable = recoverable
	return e
}

// AsAgentError attempts to convert an error to an AgentError.
// Returns the error as AgentError if it is one, or wraps it otherwise.
func AsAgentError(err error) *AgentError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AgentError); ok {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}
