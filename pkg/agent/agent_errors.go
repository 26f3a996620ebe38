// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/jllopis/concord/pkg/errors"
)

// WrapResponderError wraps a responder failure with the agent and tool it
// happened in. Typed errors keep their code.
func WrapResponderError(err error, agentID, toolName string) *errors.Error {
	if err == nil {
		return nil
	}
	code := errors.CodeOf(err)
	return errors.New(code, "agent responder failed", err).
		WithContext("agent_id", agentID).
		WithContext("tool_name", toolName).
		WithRecoverable(code == errors.CodeTimeout)
}

// NewConfigError reports an invalid agent configuration.
func NewConfigError(msg string) *errors.Error {
	return errors.New(errors.CodeInvalidInput, msg, nil).
		WithRecoverable(false)
}
