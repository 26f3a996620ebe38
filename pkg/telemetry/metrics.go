// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/concord/pkg/errors"
)

// MeterName is the instrumentation scope of concord instruments.
const MeterName = "github.com/jllopis/concord"

// Metrics holds the counters recorded by agents, the governance gate and the router.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	decisions    metric.Int64Counter
	agentRuns    metric.Int64Counter
	routerCalls  metric.Int64Counter
	errorCounter metric.Int64Counter
	callDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(MeterName))
}

// NewMetricsWithMeter creates the instruments on the given meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	decisions, err := meter.Int64Counter(
		"concord.governance.decisions",
		metric.WithDescription("Governance decisions by outcome and source"),
	)
	if err != nil {
		return nil, err
	}

	agentRuns, err := meter.Int64Counter(
		"concord.agent.runs",
		metric.WithDescription("Agent executions by agent and final phase"),
	)
	if err != nil {
		return nil, err
	}

	routerCalls, err := meter.Int64Counter(
		"concord.router.calls",
		metric.WithDescription("Specialist calls made by the orchestrator"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"concord.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	callDuration, err := meter.Float64Histogram(
		"concord.router.call.duration",
		metric.WithDescription("Specialist call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		decisions:    decisions,
		agentRuns:    agentRuns,
		routerCalls:  routerCalls,
		errorCounter: errorCounter,
		callDuration: callDuration,
	}, nil
}

// RecordDecision counts one governance decision.
func (m *Metrics) RecordDecision(ctx context.Context, agentID, toolName string, allowed bool, source string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrToolName, toolName),
		attribute.Bool(AttrPolicyAllowed, allowed),
		attribute.String(AttrPolicySource, source),
	))
}

// RecordAgentRun counts one finished agent execution.
func (m *Metrics) RecordAgentRun(ctx context.Context, agentID, phase string) {
	if m == nil {
		return
	}
	m.agentRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrAgentPhase, phase),
	))
}

// RecordRouterCall counts one specialist call and its latency.
func (m *Metrics) RecordRouterCall(ctx context.Context, specialist, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrSpecialist, specialist),
		attribute.String(AttrRouteOutcome, outcome),
	)
	m.routerCalls.Add(ctx, 1, attrs)
	m.callDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordError increments the error counter for the given error and component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	ce := errors.As(err)
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", string(ce.Code)),
		attribute.String("component", component),
		attribute.String("recoverable", ce.RecoverableString()),
	))
}
