// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/concord/pkg/a2a/agentcard"
	"github.com/jllopis/concord/pkg/a2a/jsonrpc"
	"github.com/jllopis/concord/pkg/a2a/message"
	"github.com/jllopis/concord/pkg/a2a/server"
	"github.com/jllopis/concord/pkg/errors"
)

type echoExecutor struct {
	delay time.Duration
}

func (e echoExecutor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	text, _ := message.FirstText(reqCtx.Message)
	return queue.Write(ctx, a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "echo: " + text}))
}

func (echoExecutor) Cancel(context.Context, *a2asrv.RequestContext, eventqueue.Queue) error {
	return nil
}

func agentServer(t *testing.T, exec a2asrv.AgentExecutor) *httptest.Server {
	t.Helper()
	card := agentcard.Build(agentcard.Config{Name: "hr-agent"})
	h, err := server.NewHandler(card, exec)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/", jsonrpc.New(h))
	mux.Handle(agentcard.WellKnownPath, h.CardHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c := New(url, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func textParams(text string) *a2a.MessageSendParams {
	return &a2a.MessageSendParams{Message: message.UserText(text)}
}

func TestSendMessage(t *testing.T) {
	srv := agentServer(t, echoExecutor{})
	c := newClient(t, srv.URL)

	result, err := c.SendMessage(context.Background(), textParams("hello"))
	require.NoError(t, err)
	msg, ok := result.(*a2a.Message)
	require.True(t, ok, "got %T", result)
	text, _ := message.FirstText(msg)
	assert.Equal(t, "echo: hello", text)
}

func TestSendMessageTaskReply(t *testing.T) {
	srv := agentServer(t, echoExecutor{})
	c := newClient(t, srv.URL)

	result, err := c.SendMessage(context.Background(), &a2a.MessageSendParams{
		Message: message.RequestTask(message.UserText("x")),
	})
	require.NoError(t, err)
	task, ok := result.(*a2a.Task)
	require.True(t, ok, "got %T", result)

	got, err := c.GetTask(context.Background(), string(task.ID))
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)

	_, err = c.CancelTask(context.Background(), string(task.ID))
	assert.True(t, errors.IsCode(err, errors.CodeConflict), "got %v", err)

	_, err = c.GetTask(context.Background(), "missing")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound), "got %v", err)
}

func TestSendStreamingMessage(t *testing.T) {
	srv := agentServer(t, echoExecutor{})
	c := newClient(t, srv.URL)

	var texts []string
	err := c.SendStreamingMessage(context.Background(), textParams("hi"), func(ev a2a.Event) error {
		text, _ := message.FirstText(ev.(*a2a.Message))
		texts = append(texts, text)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"echo: hi"}, texts)
}

func TestSendStreamingTask(t *testing.T) {
	srv := agentServer(t, echoExecutor{})
	c := newClient(t, srv.URL)

	var last a2a.Event
	params := &a2a.MessageSendParams{Message: message.RequestTask(message.UserText("hi"))}
	err := c.SendStreamingMessage(context.Background(), params, func(ev a2a.Event) error {
		last = ev
		return nil
	})
	require.NoError(t, err)
	final, ok := last.(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok, "got %T", last)
	assert.True(t, final.Final)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
}

func TestClientTimeout(t *testing.T) {
	srv := agentServer(t, echoExecutor{delay: time.Second})
	c := newClient(t, srv.URL, WithTimeout(30*time.Millisecond))

	_, err := c.SendMessage(context.Background(), textParams("x"))
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err), "got %v", err)
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url).SendMessage(context.Background(), textParams("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeSpecialistUnreachable), "got %v", err)

	err = newClient(t, url).SendStreamingMessage(context.Background(), textParams("x"), func(a2a.Event) error { return nil })
	assert.True(t, errors.IsCode(err, errors.CodeSpecialistUnreachable), "got %v", err)
}

func TestClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).SendMessage(context.Background(), textParams("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeSpecialistUnreachable), "got %v", err)

	err = newClient(t, srv.URL).SendStreamingMessage(context.Background(), textParams("x"), func(a2a.Event) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestStreamPropagatesHeadersAndRejectsUnknownResult(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", jsonrpc.NDJSONMediaType)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"kind":"hologram"}}` + "\n"))
	}))
	defer srv.Close()

	err := newClient(t, srv.URL).SendStreamingMessage(context.Background(), textParams("x"), func(a2a.Event) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInternal))
	assert.Equal(t, jsonrpc.NDJSONMediaType, accept)
}

func TestAgentCard(t *testing.T) {
	srv := agentServer(t, echoExecutor{})
	card, err := newClient(t, srv.URL).AgentCard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hr-agent", card.Name)
}

func TestInputValidation(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")
	_, err := c.SendMessage(context.Background(), nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
	_, err = c.CancelTask(context.Background(), " ")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
	_, err = c.GetTask(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
	err = c.SendStreamingMessage(context.Background(), textParams("x"), nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}
