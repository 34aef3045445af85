// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Weft.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Weft errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeToolNotFound indicates no registered tool matched the requested name.
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeTransport indicates a tool-server transport or process error.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"

	// CodeMemoryError indicates a context-store or memory system error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// WeftError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type WeftError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *WeftError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *WeftError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *WeftError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Message,
		Code:        string(e.Code),
		Err:         errString(e.Err),
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// New creates a new WeftError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *WeftError {
	return &WeftError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *WeftError) WithContext(key string, value interface{}) *WeftError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *WeftError) WithRecoverable(recoverable bool) *WeftError {
	e.Recoverable = recoverable
	return e
}

// AsWeftError attempts to convert an error to a WeftError.
// Returns the error as WeftError if it is one, or wraps it otherwise.
func AsWeftError(err error) *WeftError {
	if err == nil {
		return nil
	}
	if we, ok := err.(*WeftError); ok {
		return we
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err is a WeftError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	we, ok := err.(*WeftError)
	return ok && we.Code == code
}
