// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides logging, tracing and metrics setup for concord
// agents, plus the attribute names shared by spans and instruments.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on spans and metric data points.
const (
	// Agent attributes
	AttrAgentID    = "concord.agent.id"
	AttrAgentPhase = "concord.agent.phase"

	// Governance attributes
	AttrToolName       = "concord.tool.name"
	AttrPolicyAllowed  = "concord.policy.allowed"
	AttrPolicyReason   = "concord.policy.reason"
	AttrPolicySource   = "concord.policy.source"
	AttrPolicyRequest  = "concord.policy.request_id"
	AttrPolicyDuration = "concord.policy.duration_ms"

	// Routing attributes
	AttrRouteTargets   = "concord.route.targets"
	AttrSpecialist     = "concord.route.specialist"
	AttrRouteOutcome   = "concord.route.outcome"
	AttrRouteDuration  = "concord.route.duration_ms"

	// Task attributes
	AttrTaskID    = "concord.task.id"
	AttrContextID = "concord.context.id"
	AttrTaskState = "concord.task.state"

	// JSON-RPC attributes
	AttrRPCMethod = "rpc.method"
)

// AgentAttributes returns the common attributes for an agent run.
func AgentAttributes(agentID, toolName string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrAgentID, agentID)}
	if toolName != "" {
		attrs = append(attrs, attribute.String(AttrToolName, toolName))
	}
	return attrs
}

// PolicyAttributes returns attributes describing a governance decision.
func PolicyAttributes(allowed bool, source, requestID, reason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrPolicyAllowed, allowed),
		attribute.String(AttrPolicySource, source),
	}
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrPolicyRequest, requestID))
	}
	if reason != "" {
		attrs = append(attrs, attribute.String(AttrPolicyReason, TruncateString(reason, 256)))
	}
	return attrs
}

// TruncateString truncates s to maxLen runes, appending "..." when shortened.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
