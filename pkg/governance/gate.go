// SPDX-License-Identifier: Apache-2.0

// Package governance decides whether an agent may invoke a tool and keeps
// an audit trail of those decisions.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DecisionSource records which authority produced a decision.
type DecisionSource string

const (
	// SourceRemote is a decision returned by the policy service.
	SourceRemote DecisionSource = "remote"
	// SourceLocal is a decision from the local rule table.
	SourceLocal DecisionSource = "local"
	// SourceFailClosed is a denial produced because no authority could answer.
	SourceFailClosed DecisionSource = "fail-closed"
)

// FailClosedPrefix starts the reason of every decision denied because the
// policy service could not be consulted.
const FailClosedPrefix = "Governance Check Failed: "

// PolicyRequest asks whether AgentID may invoke ToolName with Params.
type PolicyRequest struct {
	AgentID  string         `json:"agentId"`
	ToolName string         `json:"toolName"`
	Params   any            `json:"params"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the request carries an identity and a tool name.
func (r PolicyRequest) Validate() error {
	if strings.TrimSpace(r.AgentID) == "" {
		return fmt.Errorf("agent id is required")
	}
	if strings.TrimSpace(r.ToolName) == "" {
		return fmt.Errorf("tool name is required")
	}
	return nil
}

// PolicyDecision is the answer to a PolicyRequest. Reason is never empty
// when Allowed is false.
type PolicyDecision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"requestId"`
	// Modifications is advisory output of the policy service; it is kept for
	// the audit trail and never applied.
	Modifications json.RawMessage `json:"modifications,omitempty"`

	Source DecisionSource `json:"-"`
	RuleID string         `json:"-"`
}

// Denied reports whether the decision forbids the call.
func (d PolicyDecision) Denied() bool { return !d.Allowed }

// Gate is consulted before every tool invocation. Implementations never
// return an error: any failure is expressed as a denied decision.
type Gate interface {
	CheckPolicy(ctx context.Context, req PolicyRequest) PolicyDecision
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context, req PolicyRequest) PolicyDecision

// CheckPolicy implements Gate.
func (f GateFunc) CheckPolicy(ctx context.Context, req PolicyRequest) PolicyDecision {
	return f(ctx, req)
}

// FailClosed builds the denial returned when no decision could be obtained.
func FailClosed(cause string) PolicyDecision {
	return PolicyDecision{
		Allowed:   false,
		Reason:    FailClosedPrefix + cause,
		RequestID: uuid.NewString(),
		Source:    SourceFailClosed,
	}
}

func invalidRequest(err error) PolicyDecision {
	return PolicyDecision{
		Allowed:   false,
		Reason:    "Invalid policy request: " + err.Error(),
		RequestID: uuid.NewString(),
		Source:    SourceLocal,
	}
}
