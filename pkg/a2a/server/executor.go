// SPDX-License-Identifier: Apache-2.0

// Package server runs concord agents behind a2asrv: it wraps each agent's
// a2asrv.AgentExecutor with the exchange rules they share, provides the task
// stores and exposes the resulting request handler.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/jllopis/concord/pkg/a2a/message"
	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/resilience"
)

// runner wraps an agent executor. The agent writes one agent message per
// reply; runner decides whether that message is the answer or becomes the
// status of a task, bounds the run and turns panics into errors.
type runner struct {
	inner   a2asrv.AgentExecutor
	timeout time.Duration
	logger  *slog.Logger
}

var _ a2asrv.AgentExecutor = (*runner)(nil)

// Execute implements a2asrv.AgentExecutor.
func (r *runner) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	if stored := reqCtx.StoredTask; stored != nil && stored.Status.State.Terminal() {
		return NewTaskTerminalError(string(stored.ID))
	}
	if reqCtx.StoredTask == nil && !message.WantsTask(reqCtx.Message) {
		return r.direct(ctx, reqCtx, queue)
	}
	return r.task(ctx, reqCtx, queue)
}

// Cancel implements a2asrv.AgentExecutor. The agent is told first; the
// canceled status is written regardless of what it answers.
func (r *runner) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	if err := r.inner.Cancel(ctx, reqCtx, queue); err != nil {
		r.logger.WarnContext(ctx, "executor cancel failed", "task_id", reqCtx.TaskID, "error", err)
	}
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

func (r *runner) direct(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	q := &replyQueue{Queue: queue, reqCtx: reqCtx}
	if err := r.run(ctx, reqCtx, q); err != nil {
		return err
	}
	if q.last() == nil {
		return errors.New(errors.CodeInternal, "executor produced no reply", nil)
	}
	return nil
}

// task runs the exchange as a task: submitted (when new), working, then a
// final completed or failed status carrying the reply.
func (r *runner) task(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	if reqCtx.StoredTask == nil {
		if err := queue.Write(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateSubmitted, nil)); err != nil {
			return err
		}
	}
	if err := queue.Write(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)); err != nil {
		return err
	}

	q := &replyQueue{Queue: queue, reqCtx: reqCtx, hold: true}
	runErr := r.run(ctx, reqCtx, q)

	var final *a2a.TaskStatusUpdateEvent
	if runErr != nil {
		reason := a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.TextPart{Text: errors.As(runErr).Message})
		final = a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateFailed, reason)
	} else {
		final = a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCompleted, q.last())
	}
	final.Final = true
	// The run may have outlived the request; record the outcome regardless.
	return queue.Write(context.WithoutCancel(ctx), final)
}

// run calls the agent with the configured bound, converting panics to errors.
func (r *runner) run(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	start := time.Now()
	_, err := resilience.CallWithTimeout(ctx, r.timeout, func(ctx context.Context) (_ struct{}, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.ErrorContext(ctx, "executor panic recovered", "panic", rec, "task_id", reqCtx.TaskID)
				err = panicError(rec)
			}
		}()
		return struct{}{}, r.inner.Execute(ctx, reqCtx, queue)
	})
	r.logger.DebugContext(ctx, "executor finished",
		"task_id", reqCtx.TaskID,
		"context_id", reqCtx.ContextID,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

// replyQueue binds agent messages to the exchange. With hold set the
// messages are kept for the final task status instead of being written.
type replyQueue struct {
	eventqueue.Queue
	reqCtx *a2asrv.RequestContext
	hold   bool

	mu    sync.Mutex
	reply *a2a.Message
}

func (q *replyQueue) Write(ctx context.Context, event a2a.Event) error {
	msg, ok := event.(*a2a.Message)
	if !ok {
		return q.Queue.Write(ctx, event)
	}
	msg.ContextID = q.reqCtx.ContextID
	if q.hold {
		msg.TaskID = q.reqCtx.TaskID
	} else {
		msg.TaskID = ""
	}
	q.mu.Lock()
	q.reply = msg
	q.mu.Unlock()
	if q.hold {
		return nil
	}
	return q.Queue.Write(ctx, msg)
}

func (q *replyQueue) last() *a2a.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reply
}
