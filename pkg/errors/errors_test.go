// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	ce := New(CodeSpecialistUnreachable, "finance agent unreachable", cause)

	if ce.Code != CodeSpecialistUnreachable {
		t.Errorf("expected CodeSpecialistUnreachable, got %v", ce.Code)
	}
	if ce.Message != "finance agent unreachable" {
		t.Errorf("unexpected message %q", ce.Message)
	}
	if !errors.Is(ce, cause) {
		t.Errorf("expected errors.Is to see the cause")
	}
	if ce.StatusCode != 502 {
		t.Errorf("expected status 502, got %d", ce.StatusCode)
	}
}

func TestWithContext(t *testing.T) {
	ce := New(CodeNotFound, "task not found", nil).
		WithContext("task_id", "t-1").
		WithRecoverable(true)

	if ce.Context["task_id"] != "t-1" {
		t.Errorf("expected context task_id")
	}
	if !ce.Recoverable || ce.RecoverableString() != "true" {
		t.Errorf("expected recoverable error")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		ce       *Error
		expected string
	}{
		{
			name:     "with cause",
			ce:       New(CodeTimeout, "policy check timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] policy check timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			ce:       New(CodeNotFound, "task not found", nil),
			expected: "[NOT_FOUND] task not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ce.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(CodeConflict, "task is terminal", nil))

	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "typed", err: New(CodeRateLimit, "slow down", nil), expected: CodeRateLimit},
		{name: "wrapped typed", err: wrapped, expected: CodeConflict},
		{name: "deadline", err: context.DeadlineExceeded, expected: CodeTimeout},
		{name: "generic", err: errors.New("boom"), expected: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(fmt.Errorf("call: %w", context.DeadlineExceeded)) {
		t.Errorf("expected wrapped deadline to be a timeout")
	}
	if !IsTimeout(New(CodeTimeout, "slow", nil)) {
		t.Errorf("expected TIMEOUT code to be a timeout")
	}
	if IsTimeout(errors.New("other")) || IsTimeout(nil) {
		t.Errorf("expected non-timeouts to be rejected")
	}
}

func TestMarshalJSON(t *testing.T) {
	ce := New(CodeGovernanceUnavailable, "policy service down", errors.New("503")).
		WithContext("agent_id", "hr-agent")

	data, err := json.Marshal(ce)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}
	if result["code"] != "GOVERNANCE_UNAVAILABLE" {
		t.Errorf("unexpected code %v", result["code"])
	}
	if result["error"] != "503" {
		t.Errorf("unexpected cause %v", result["error"])
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeNotFound, 404},
		{CodeInvalidInput, 400},
		{CodeTimeout, 504},
		{CodeRateLimit, 429},
		{CodeConflict, 409},
		{CodePolicyDenied, 403},
		{CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "test", nil).StatusCode; got != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, got)
			}
		})
	}
}
