// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"
)

// AuditStatus is the outcome recorded for an audited action.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
)

// Metadata keys set by agents on audit events.
const (
	AuditKeyDecisionSource = "decision_source"
	AuditKeyRequestID      = "request_id"
	AuditKeyRuleID         = "rule_id"
	AuditKeyPhase          = "phase"
)

// AuditEvent is one entry of the governance audit trail.
type AuditEvent struct {
	AgentID   string         `json:"agentId"`
	Action    string         `json:"action"`
	Details   string         `json:"details"`
	Status    AuditStatus    `json:"status"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditSink persists or forwards audit events.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// MultiSink records every event on each sink and joins their errors.
type MultiSink []AuditSink

// Record implements AuditSink.
func (m MultiSink) Record(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// LogAuditSink writes events to a logger. It stands in for the audit
// service when governance runs in local mode.
type LogAuditSink struct {
	Logger *slog.Logger
}

// Record implements AuditSink.
func (s LogAuditSink) Record(ctx context.Context, event AuditEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "[mock audit]",
		"agent_id", event.AgentID,
		"action", event.Action,
		"status", string(event.Status),
		"details", event.Details,
	)
	return nil
}

// Auditor delivers audit events without blocking the caller. Each event is
// recorded on its own goroutine with a context detached from the request,
// so a finished or canceled request never aborts its audit record.
type Auditor struct {
	sink    AuditSink
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// AuditorOption configures an Auditor.
type AuditorOption func(*Auditor)

// WithAuditTimeout bounds a single delivery.
func WithAuditTimeout(d time.Duration) AuditorOption {
	return func(a *Auditor) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithAuditLogger sets the logger for delivery failures.
func WithAuditLogger(logger *slog.Logger) AuditorOption {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuditor creates an auditor over sink.
func NewAuditor(sink AuditSink, opts ...AuditorOption) *Auditor {
	a := &Auditor{
		sink:    sink,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LogEvent schedules delivery of event and returns immediately. Delivery
// errors are logged and otherwise ignored.
func (a *Auditor) LogEvent(ctx context.Context, event AuditEvent) {
	if a == nil || a.sink == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.Status == "" {
		event.Status = AuditSuccess
	}

	detached := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()
		if err := a.sink.Record(ctx, event); err != nil {
			a.logger.WarnContext(ctx, "audit delivery failed",
				"agent_id", event.AgentID,
				"action", event.Action,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (a *Auditor) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}
