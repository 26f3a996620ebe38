// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for concord.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies concord errors for monitoring and wire translation.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodePolicyDenied indicates a governance decision refused a tool call.
	CodePolicyDenied ErrorCode = "POLICY_DENIED"

	// CodeGovernanceUnavailable indicates the policy service could not be reached.
	CodeGovernanceUnavailable ErrorCode = "GOVERNANCE_UNAVAILABLE"

	// CodeSpecialistUnreachable indicates a downstream agent call failed.
	CodeSpecialistUnreachable ErrorCode = "SPECIALIST_UNREACHABLE"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeConflict indicates the operation is not allowed in the current state.
	CodeConflict ErrorCode = "CONFLICT"
)

// Error is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	StatusCode  int // HTTP status equivalent
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		StatusCode  int                    `json:"status_code"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Recoverable: e.Recoverable,
		StatusCode:  e.StatusCode,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	e.Recoverable = recoverable
	return e
}

// As returns the first *Error in err's chain, or wraps err as an internal error.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if stderrors.As(err, &ce) {
		return ce
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, "deadline exceeded", err)
	}
	return New(CodeInternal, err.Error(), err)
}

// CodeOf returns the code carried by err, CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return As(err).Code
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	if stderrors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsTimeout reports whether err represents an exceeded deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return IsCode(err, CodeTimeout) || stderrors.Is(err, context.DeadlineExceeded)
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *Error) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeInvalidInput:
		return 400
	case CodeTimeout:
		return 504
	case CodeRateLimit:
		return 429
	case CodeConflict:
		return 409
	case CodePolicyDenied:
		return 403
	case CodeGovernanceUnavailable, CodeSpecialistUnreachable:
		return 502
	default:
		return 500
	}
}
