// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/jllopis/concord/pkg/errors"
)

// NewTaskNotFoundError creates a task not found error.
func NewTaskNotFoundError(taskID string) *errors.Error {
	return errors.New(errors.CodeNotFound, "task not found", nil).
		WithContext("task_id", taskID).
		WithRecoverable(false)
}

// NewTaskTerminalError reports a message or cancel aimed at a finished task.
func NewTaskTerminalError(taskID string) *errors.Error {
	return errors.New(errors.CodeConflict, "task is in a terminal state", nil).
		WithContext("task_id", taskID).
		WithRecoverable(false)
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(msg string) *errors.Error {
	return errors.New(errors.CodeInvalidInput, msg, nil).
		WithRecoverable(false)
}

// TranslateError maps a failure surfaced by a2asrv, a task store or an
// executor to a typed error. Typed errors anywhere in the chain win.
func TranslateError(err error, taskID string) *errors.Error {
	var typed *errors.Error
	switch {
	case err == nil:
		return nil
	case stderrors.As(err, &typed):
		return typed
	case stderrors.Is(err, a2a.ErrTaskNotFound):
		return NewTaskNotFoundError(taskID)
	case stderrors.Is(err, a2a.ErrTaskNotCancelable), stderrors.Is(err, ErrTaskTerminal):
		return NewTaskTerminalError(taskID)
	case stderrors.Is(err, ErrStateRegression):
		return errors.New(errors.CodeConflict, "task state cannot move backwards", err).
			WithContext("task_id", taskID)
	case stderrors.Is(err, a2a.ErrInvalidParams), stderrors.Is(err, a2a.ErrInvalidRequest):
		return errors.New(errors.CodeInvalidInput, "invalid request", err).
			WithRecoverable(false)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", err).
			WithRecoverable(true)
	}
	out := errors.New(errors.CodeInternal, "task execution failed", err).
		WithRecoverable(false)
	if taskID != "" {
		out = out.WithContext("task_id", taskID)
	}
	return out
}

func panicError(recovered any) *errors.Error {
	return errors.New(errors.CodeInternal, fmt.Sprintf("executor panic: %v", recovered), nil).
		WithRecoverable(false)
}
