// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	"github.com/jllopis/concord/pkg/a2a/agentcard"
	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/telemetry"
)

const metricsComponent = "a2a.server"

// Handler serves one agent: its card and the a2asrv request handler built
// around its executor. Failures leave it as typed errors.
type Handler struct {
	card     *a2a.AgentCard
	cardJSON []byte
	requests a2asrv.RequestHandler
	store    a2asrv.TaskStore
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	timeout  time.Duration
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithStore overrides the in-memory task store.
func WithStore(store a2asrv.TaskStore) HandlerOption {
	return func(h *Handler) {
		if store != nil {
			h.store = store
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithExecutionTimeout bounds each executor run. Zero disables the bound.
func WithExecutionTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = d
	}
}

// WithMetrics records handler failures on m.
func WithMetrics(m *telemetry.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler wires an executor to its agent card. The card is encoded once
// here and never mutated afterwards.
func NewHandler(card *a2a.AgentCard, exec a2asrv.AgentExecutor, opts ...HandlerOption) (*Handler, error) {
	if exec == nil {
		return nil, errors.New(errors.CodeInvalidInput, "executor is required", nil)
	}
	payload, err := agentcard.Encode(card)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "encode agent card", err)
	}
	h := &Handler{
		card:     card,
		cardJSON: payload,
		store:    NewMemoryTaskStore(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.logger = telemetry.Component(h.logger, "a2a.server").With("agent", card.Name)

	run := &runner{inner: exec, timeout: h.timeout, logger: h.logger}
	h.requests = a2asrv.NewHandler(run, a2asrv.WithTaskStore(h.store))
	return h, nil
}

// AgentCard returns the static card. Callers must not modify it.
func (h *Handler) AgentCard() *a2a.AgentCard {
	return h.card
}

// AgentCardJSON returns the pre-encoded card bytes. Callers must not modify them.
func (h *Handler) AgentCardJSON() []byte {
	return h.cardJSON
}

// CardHandler serves the card over HTTP.
func (h *Handler) CardHandler() http.Handler {
	return agentcard.Handler(h.cardJSON)
}

// SendMessage runs the executor and returns its answer: the reply message
// or, in task mode, the task.
func (h *Handler) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.SendMessageResult, error) {
	if err := validateParams(params); err != nil {
		return nil, h.fail(ctx, err, "")
	}
	result, err := h.requests.OnSendMessage(ctx, params)
	if err != nil {
		return nil, h.fail(ctx, err, string(params.Message.TaskID))
	}
	return result, nil
}

// SendStreamingMessage runs the executor and yields each event as it is
// produced. In task mode the last event is a final status update.
func (h *Handler) SendStreamingMessage(ctx context.Context, params *a2a.MessageSendParams) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		if err := validateParams(params); err != nil {
			yield(nil, h.fail(ctx, err, ""))
			return
		}
		for event, err := range h.requests.OnSendMessageStream(ctx, params) {
			if err != nil {
				yield(nil, h.fail(ctx, err, string(params.Message.TaskID)))
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

// GetTask returns a stored task.
func (h *Handler) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	if params == nil || params.ID == "" {
		return nil, h.fail(ctx, NewInvalidRequestError("task id is required"), "")
	}
	task, err := h.requests.OnGetTask(ctx, params)
	if err != nil {
		return nil, h.fail(ctx, err, string(params.ID))
	}
	return task, nil
}

// CancelTask asks the executor to stop and returns the canceled task. A
// task that already finished is a conflict.
func (h *Handler) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	if params == nil || params.ID == "" {
		return nil, h.fail(ctx, NewInvalidRequestError("task id is required"), "")
	}
	stored, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, h.fail(ctx, err, string(params.ID))
	}
	if stored.Status.State.Terminal() {
		return nil, h.fail(ctx, NewTaskTerminalError(string(params.ID)), "")
	}
	task, err := h.requests.OnCancelTask(ctx, params)
	if err != nil {
		return nil, h.fail(ctx, err, string(params.ID))
	}
	h.logger.InfoContext(ctx, "task canceled", "task_id", task.ID)
	return task, nil
}

func (h *Handler) fail(ctx context.Context, err error, taskID string) error {
	ce := TranslateError(err, taskID)
	h.metrics.RecordError(ctx, ce, metricsComponent)
	if ce.Code == errors.CodeInternal || ce.Code == errors.CodeTimeout {
		h.logger.ErrorContext(ctx, "request failed", "code", ce.Code, "error", ce)
	} else {
		h.logger.InfoContext(ctx, "request rejected", "code", ce.Code, "error", ce)
	}
	return ce
}

// validateParams checks the envelope only. Parts and role are not required:
// a message without text is answered as empty content.
func validateParams(params *a2a.MessageSendParams) error {
	if params == nil || params.Message == nil {
		return NewInvalidRequestError("message is required")
	}
	if params.Message.ID == "" {
		return NewInvalidRequestError("messageId is required")
	}
	return nil
}
