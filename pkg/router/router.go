// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package router picks the specialist agents a request needs and combines
// their replies into one answer.
//
// Classification is deterministic: each route owns a list of keywords and a
// request goes to every route with at least one keyword in it. Specialists
// are called one after another in route order and each reply becomes one
// segment of the combined text. A failed call becomes an inline note and
// never stops the remaining calls.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/concord/pkg/a2a/message"
	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/telemetry"
)

// HelpText is the reply when no route matches.
const HelpText = "I can orchestrate tasks for HR and Finance. Try asking about 'hiring' or 'payroll'."

// segmentSeparator joins specialist segments.
const segmentSeparator = "\n\n"

// Default keyword sets.
var (
	HRKeywords      = []string{"hire", "employee", "offer"}
	FinanceKeywords = []string{"payroll", "budget", "expense"}
)

// Call outcomes reported in metrics and spans.
const (
	OutcomeMessage    = "message"
	OutcomeTask       = "task"
	OutcomeUnexpected = "unexpected"
	OutcomeFailed     = "failed"
)

// Route binds a specialist to the keywords that select it.
type Route struct {
	Specialist Specialist
	Keywords   []string
}

// Target is one specialist call planned for a request.
type Target struct {
	Specialist Specialist
	Text       string
}

// Decision is the ordered list of specialist calls for one request.
type Decision struct {
	Targets []Target
}

// Empty reports whether no specialist is needed.
func (d Decision) Empty() bool { return len(d.Targets) == 0 }

// Names returns the specialist names in call order.
func (d Decision) Names() []string {
	names := make([]string, 0, len(d.Targets))
	for _, t := range d.Targets {
		names = append(names, t.Specialist.Name())
	}
	return names
}

// Router classifies requests and fans them out to specialists.
type Router struct {
	routes  []Route
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records one counter sample per specialist call.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New creates a router. Routes are tried in the given order.
func New(routes []Route, opts ...Option) (*Router, error) {
	r := &Router{
		logger: slog.Default(),
		tracer: otel.Tracer("concord/router"),
	}
	for i, route := range routes {
		if route.Specialist == nil {
			return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("route %d has no specialist", i), nil)
		}
		if len(route.Keywords) == 0 {
			return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("route %q has no keywords", route.Specialist.Name()), nil)
		}
		keywords := make([]string, 0, len(route.Keywords))
		for _, kw := range route.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		r.routes = append(r.routes, Route{Specialist: route.Specialist, Keywords: keywords})
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = telemetry.Component(r.logger, "router")
	return r, nil
}

// NewHRFinance creates the HR-then-Finance router with the default keywords.
func NewHRFinance(hr, finance Specialist, opts ...Option) (*Router, error) {
	return New([]Route{
		{Specialist: hr, Keywords: HRKeywords},
		{Specialist: finance, Keywords: FinanceKeywords},
	}, opts...)
}

// Classify decides which specialists content needs. Matching is a
// case-insensitive substring test and every route is checked on its own.
func (r *Router) Classify(content string) Decision {
	lower := strings.ToLower(content)
	var d Decision
	for _, route := range r.routes {
		for _, kw := range route.Keywords {
			if strings.Contains(lower, kw) {
				d.Targets = append(d.Targets, Target{Specialist: route.Specialist, Text: content})
				break
			}
		}
	}
	return d
}

// Route classifies content, calls each selected specialist in order and
// returns the combined reply. It always returns text.
func (r *Router) Route(ctx context.Context, content string) string {
	decision := r.Classify(content)
	ctx, span := r.tracer.Start(ctx, "router.route", trace.WithAttributes(
		attribute.StringSlice(telemetry.AttrRouteTargets, decision.Names()),
	))
	defer span.End()

	if decision.Empty() {
		r.logger.DebugContext(ctx, "router.no_match")
		return HelpText
	}

	segments := make([]string, 0, len(decision.Targets))
	for _, target := range decision.Targets {
		segments = append(segments, r.call(ctx, target))
	}
	return strings.Join(segments, segmentSeparator)
}

func (r *Router) call(ctx context.Context, target Target) string {
	name := target.Specialist.Name()
	ctx, span := r.tracer.Start(ctx, "router.call", trace.WithAttributes(
		attribute.String(telemetry.AttrSpecialist, name),
	))
	defer span.End()

	start := time.Now()
	r.logger.InfoContext(ctx, "router.call.start", slog.String("specialist", name))

	reply, err := target.Specialist.Send(ctx, message.UserText(target.Text))
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(telemetry.AttrRouteOutcome, OutcomeFailed))
		r.metrics.RecordRouterCall(ctx, name, OutcomeFailed, elapsed)
		r.metrics.RecordError(ctx, err, "router")
		r.logger.WarnContext(ctx, "router.call.error",
			slog.String("specialist", name),
			slog.String("error", err.Error()),
			slog.String("error_code", string(errors.CodeOf(err))),
		)
		return fmt.Sprintf("Failed to contact %s Agent: %s", name, failureReason(err))
	}

	text, outcome := describeReply(name, reply)
	span.SetAttributes(attribute.String(telemetry.AttrRouteOutcome, outcome))
	r.metrics.RecordRouterCall(ctx, name, outcome, elapsed)
	r.logger.InfoContext(ctx, "router.call.complete",
		slog.String("specialist", name),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
	)
	return text
}

// describeReply renders a specialist reply as one segment.
func describeReply(name string, reply a2a.SendMessageResult) (string, string) {
	switch v := reply.(type) {
	case *a2a.Message:
		if v != nil {
			text, _ := message.FirstText(v)
			return fmt.Sprintf("%s Agent says: %s", name, text), OutcomeMessage
		}
	case *a2a.Task:
		if v != nil {
			return fmt.Sprintf("%s Agent returned a Task (ID: %s). Check status later.", name, v.ID), OutcomeTask
		}
	}
	return fmt.Sprintf("%s Agent returned unexpected response.", name), OutcomeUnexpected
}

// failureReason is the human part of a call error.
func failureReason(err error) string {
	ce := errors.As(err)
	if ce.Err != nil && ce.Err.Error() != ce.Message {
		return ce.Message + ": " + ce.Err.Error()
	}
	return ce.Message
}
