// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jllopis/concord/pkg/errors"
)

// CLIError wraps a typed error with a hint for the operator.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(err *errors.Error, hint string) *CLIError {
	return &CLIError{Err: err, Hint: hint}
}

// Error returns the message followed by the hint.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the typed error.
func (e *CLIError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

func wrapConfigError(err error, path string) *CLIError {
	typed := errors.New(errors.CodeInvalidInput, "invalid configuration", err)
	if path != "" {
		typed = typed.WithContext("path", path)
	}
	return NewCLIError(typed, "check the config file and CONCORD_* environment variables")
}

// wrapAgentError adds a hint matching the failure of a call to url.
func wrapAgentError(err error, url string) *CLIError {
	typed := errors.As(err).WithContext("url", url)
	switch typed.Code {
	case errors.CodeSpecialistUnreachable:
		return NewCLIError(typed, fmt.Sprintf("check that an agent is serving at %s", url))
	case errors.CodeTimeout:
		return NewCLIError(typed, "increase --timeout or check the agent health")
	case errors.CodeRateLimit:
		return NewCLIError(typed, "slow down or raise server.rate_limit")
	case errors.CodeNotFound:
		return NewCLIError(typed, "check the task id")
	default:
		return NewCLIError(typed, "")
	}
}

// printError writes err to w, as JSON when asJSON is set.
func printError(w io.Writer, err error, asJSON bool) {
	var hint string
	typed := errors.As(err)
	if cliErr, ok := err.(*CLIError); ok && cliErr.Err != nil {
		hint = cliErr.Hint
		typed = cliErr.Err
	}

	if asJSON {
		payload := map[string]any{"code": typed.Code, "message": typed.Message}
		if hint != "" {
			payload["hint"] = hint
		}
		if typed.Err != nil {
			payload["cause"] = typed.Err.Error()
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": payload})
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", typed.Code, typed.Message)
	if typed.Err != nil {
		fmt.Fprintf(w, "  Cause: %s\n", typed.Err)
	}
	if hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", hint)
	}
}

func wrapInput(msg string) *errors.Error {
	return errors.New(errors.CodeInvalidInput, msg, nil)
}
