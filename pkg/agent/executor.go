// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the governed executor every concord agent runs:
// read the request, ask the governance gate whether the selected tool may
// run, then either answer or publish a block notice. The HR, Finance and
// orchestrator agents are configurations of the same executor.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/concord/pkg/a2a/message"
	"github.com/jllopis/concord/pkg/governance"
	"github.com/jllopis/concord/pkg/telemetry"
)

// Phase is a step of one execution.
type Phase string

const (
	PhaseReceived      Phase = "received"
	PhasePolicyChecked Phase = "policy-checked"
	PhaseResponded     Phase = "responded"
	PhaseBlocked       Phase = "blocked"
	// PhaseFailed ends a run whose responder returned an error.
	PhaseFailed Phase = "failed"
)

// Terminal reports whether no further phase follows p.
func (p Phase) Terminal() bool {
	return p == PhaseResponded || p == PhaseBlocked || p == PhaseFailed
}

// DefaultBlockPrefix starts the reply published when the gate denies a run.
const DefaultBlockPrefix = "Request blocked by policy"

const maxAuditDetail = 256

// ToolSelector names the tool a request would invoke.
type ToolSelector func(content string) string

// StaticTool selects the same tool for every request.
func StaticTool(name string) ToolSelector {
	return func(string) string { return name }
}

// Responder produces the reply text once a run is allowed.
type Responder interface {
	Respond(ctx context.Context, content string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, content string) (string, error)

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, content string) (string, error) {
	return f(ctx, content)
}

// Config describes one agent.
type Config struct {
	// ID is the identity presented to the governance gate.
	ID          string
	Card        *a2a.AgentCard
	SelectTool  ToolSelector
	Responder   Responder
	BlockPrefix string
}

// Executor runs the governed request lifecycle. It holds no per-request
// state and is safe for concurrent use.
type Executor struct {
	id          string
	card        *a2a.AgentCard
	selectTool  ToolSelector
	responder   Responder
	blockPrefix string

	gate    governance.Gate
	auditor *governance.Auditor
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithGate sets the governance gate. It is required.
func WithGate(gate governance.Gate) Option {
	return func(e *Executor) {
		e.gate = gate
	}
}

// WithAuditor records one audit event per finished run.
func WithAuditor(a *governance.Auditor) Option {
	return func(e *Executor) {
		e.auditor = a
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records decisions and run outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New builds an executor from cfg.
func New(cfg Config, opts ...Option) (*Executor, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, NewConfigError("agent id is required")
	}
	if cfg.Card == nil {
		return nil, NewConfigError("agent card is required")
	}
	if cfg.SelectTool == nil {
		return nil, NewConfigError("tool selector is required")
	}
	if cfg.Responder == nil {
		return nil, NewConfigError("responder is required")
	}
	e := &Executor{
		id:          cfg.ID,
		card:        cfg.Card,
		selectTool:  cfg.SelectTool,
		responder:   cfg.Responder,
		blockPrefix: cfg.BlockPrefix,
		logger:      slog.Default(),
		tracer:      otel.Tracer("concord/agent"),
	}
	if e.blockPrefix == "" {
		e.blockPrefix = DefaultBlockPrefix
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.gate == nil {
		return nil, NewConfigError("governance gate is required")
	}
	e.logger = telemetry.Component(e.logger, "agent").With(slog.String("agent_id", e.id))
	return e, nil
}

// ID returns the agent identity.
func (e *Executor) ID() string { return e.id }

// Card returns the agent card.
func (e *Executor) Card() *a2a.AgentCard { return e.card }

// Execute implements a2asrv.AgentExecutor. Exactly one agent message is
// written per call unless the responder fails.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	ctx, span := e.tracer.Start(ctx, "agent.execute", trace.WithAttributes(
		attribute.String(telemetry.AttrAgentID, e.id),
		attribute.String(telemetry.AttrTaskID, taskID(reqCtx)),
	))
	defer span.End()

	state := &run{phase: PhaseReceived}
	content, _ := message.FirstText(reqCtx.Message)
	toolName := e.selectTool(content)
	e.logger.InfoContext(ctx, "agent.request.received",
		slog.String("tool", toolName),
		slog.String("content", telemetry.TruncateString(content, maxAuditDetail)),
	)

	decision := e.checkPolicy(ctx, toolName, content)
	state.advance(PhasePolicyChecked)

	if decision.Denied() {
		state.advance(PhaseBlocked)
		span.SetAttributes(attribute.String(telemetry.AttrAgentPhase, string(state.phase)))
		err := e.publish(ctx, queue, fmt.Sprintf("%s: %s", e.blockPrefix, decision.Reason))
		e.finish(ctx, state.phase, toolName, decision, decision.Reason)
		return err
	}

	text, err := e.responder.Respond(ctx, content)
	if err != nil {
		state.advance(PhaseFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordError(ctx, err, "agent")
		e.finish(ctx, state.phase, toolName, decision, err.Error())
		return WrapResponderError(err, e.id, toolName)
	}

	state.advance(PhaseResponded)
	span.SetAttributes(attribute.String(telemetry.AttrAgentPhase, string(state.phase)))
	if err := e.publish(ctx, queue, text); err != nil {
		return err
	}
	e.finish(ctx, state.phase, toolName, decision, text)
	return nil
}

// Cancel implements a2asrv.AgentExecutor. Runs finish on their own; the
// server writes the canceled status.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, _ eventqueue.Queue) error {
	e.logger.InfoContext(ctx, "agent.cancel", slog.String("task_id", taskID(reqCtx)))
	return nil
}

func (e *Executor) checkPolicy(ctx context.Context, toolName, content string) governance.PolicyDecision {
	ctx, span := e.tracer.Start(ctx, "governance.check", trace.WithAttributes(
		attribute.String(telemetry.AttrAgentID, e.id),
		attribute.String(telemetry.AttrToolName, toolName),
	))
	defer span.End()

	decision := e.gate.CheckPolicy(ctx, governance.PolicyRequest{
		AgentID:  e.id,
		ToolName: toolName,
		Params:   map[string]any{"content": content},
	})
	span.SetAttributes(telemetry.PolicyAttributes(decision.Allowed, string(decision.Source), decision.RequestID, decision.Reason)...)
	e.metrics.RecordDecision(ctx, e.id, toolName, decision.Allowed, string(decision.Source))

	if decision.Denied() {
		e.logger.WarnContext(ctx, "agent.policy.denied",
			slog.String("tool", toolName),
			slog.String("reason", decision.Reason),
			slog.String("source", string(decision.Source)),
			slog.String("request_id", decision.RequestID),
		)
	} else {
		e.logger.DebugContext(ctx, "agent.policy.allowed",
			slog.String("tool", toolName),
			slog.String("request_id", decision.RequestID),
		)
	}
	return decision
}

func (e *Executor) publish(ctx context.Context, queue eventqueue.Queue, text string) error {
	msg := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text})
	msg.Metadata = map[string]any{"agentId": e.id}
	return queue.Write(ctx, msg)
}

func (e *Executor) finish(ctx context.Context, phase Phase, toolName string, decision governance.PolicyDecision, detail string) {
	e.metrics.RecordAgentRun(ctx, e.id, string(phase))

	status := governance.AuditSuccess
	if phase != PhaseResponded {
		status = governance.AuditFailure
	}
	metadata := map[string]any{
		governance.AuditKeyDecisionSource: string(decision.Source),
		governance.AuditKeyRequestID:      decision.RequestID,
		governance.AuditKeyPhase:          string(phase),
	}
	if decision.RuleID != "" {
		metadata[governance.AuditKeyRuleID] = decision.RuleID
	}
	if len(decision.Modifications) > 0 {
		metadata["modifications"] = string(decision.Modifications)
	}
	e.auditor.LogEvent(ctx, governance.AuditEvent{
		AgentID:  e.id,
		Action:   toolName,
		Details:  telemetry.TruncateString(detail, maxAuditDetail),
		Status:   status,
		Metadata: metadata,
	})

	e.logger.InfoContext(ctx, "agent.request.complete",
		slog.String("tool", toolName),
		slog.String("phase", string(phase)),
	)
}

// run tracks the phase of one execution.
type run struct {
	phase Phase
}

func (r *run) advance(next Phase) {
	if r.phase.Terminal() {
		return
	}
	r.phase = next
}

func taskID(reqCtx *a2asrv.RequestContext) string {
	if reqCtx == nil {
		return ""
	}
	return string(reqCtx.TaskID)
}
