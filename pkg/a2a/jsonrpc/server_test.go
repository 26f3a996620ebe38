// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/concord/pkg/a2a/agentcard"
	"github.com/jllopis/concord/pkg/a2a/message"
	"github.com/jllopis/concord/pkg/a2a/server"
)

type replyExecutor struct {
	reply string
	delay time.Duration
}

func (e replyExecutor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.reply == "" {
		return nil
	}
	return queue.Write(ctx, a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: e.reply}))
}

func (replyExecutor) Cancel(context.Context, *a2asrv.RequestContext, eventqueue.Queue) error {
	return nil
}

func newTestServer(t *testing.T, exec a2asrv.AgentExecutor, opts ...Option) (*Server, *server.Handler) {
	t.Helper()
	return newTestServerWithHandlerOpts(t, exec, nil, opts...)
}

func newTestServerWithHandlerOpts(t *testing.T, exec a2asrv.AgentExecutor, hopts []server.HandlerOption, opts ...Option) (*Server, *server.Handler) {
	t.Helper()
	card := agentcard.Build(agentcard.Config{
		Name:        "finance-agent",
		Description: "Handles expenses and payroll",
		URL:         "http://localhost:3000/api/agents/finance",
	})
	h, err := server.NewHandler(card, exec, hopts...)
	require.NoError(t, err)
	return New(h, opts...), h
}

func rpcBody(t *testing.T, method string, params any) string {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(Request{JSONRPC: Version, ID: json.RawMessage(`"req-1"`), Method: method, Params: raw})
	require.NoError(t, err)
	return string(body)
}

func post(srv http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func decodeLines(t *testing.T, body []byte) []Response {
	t.Helper()
	var out []Response
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		out = append(out, resp)
	}
	return out
}

func sendParams(text string) *a2a.MessageSendParams {
	return &a2a.MessageSendParams{Message: message.UserText(text)}
}

func decodeMessage(t *testing.T, raw json.RawMessage) *a2a.Message {
	t.Helper()
	event, err := DecodeEvent(raw)
	require.NoError(t, err)
	msg, ok := event.(*a2a.Message)
	require.True(t, ok, "got %T", event)
	return msg
}

func TestServerServesAgentCard(t *testing.T) {
	srv, h := newTestServer(t, replyExecutor{})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, h.AgentCardJSON(), rec.Body.Bytes())
	}
}

func TestServerSendMessageSingleResult(t *testing.T) {
	for _, method := range []string{MethodSendMessage, "SendMessage"} {
		t.Run(method, func(t *testing.T) {
			srv, _ := newTestServer(t, replyExecutor{reply: "Expense Summary for Q1"})
			rec := post(srv, rpcBody(t, method, sendParams("expense report")))

			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decodeResponse(t, rec)
			assert.Nil(t, resp.Error)
			assert.JSONEq(t, `"req-1"`, string(resp.ID))

			msg := decodeMessage(t, resp.Result)
			text, _ := message.FirstText(msg)
			assert.Equal(t, "Expense Summary for Q1", text)
			assert.Equal(t, a2a.MessageRoleAgent, msg.Role)
			assert.Empty(t, msg.TaskID)
		})
	}
}

func TestServerStreamTaskEndsWithFinalStatus(t *testing.T) {
	srv, _ := newTestServer(t, replyExecutor{reply: "Offer letter generated"})
	params := &a2a.MessageSendParams{Message: message.RequestTask(message.UserText("offer letter"))}
	rec := post(srv, rpcBody(t, MethodSendStreamingMessage, params))

	assert.Equal(t, NDJSONMediaType, rec.Header().Get("Content-Type"))
	lines := decodeLines(t, rec.Body.Bytes())
	require.GreaterOrEqual(t, len(lines), 2)
	for _, line := range lines {
		require.Nil(t, line.Error)
	}

	event, err := DecodeEvent(lines[len(lines)-1].Result)
	require.NoError(t, err)
	final, ok := event.(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok, "got %T", event)
	assert.True(t, final.Final)
	assert.Equal(t, a2a.TaskStateCompleted, final.Status.State)
	text, _ := message.FirstText(final.Status.Message)
	assert.Equal(t, "Offer letter generated", text)
}

func TestServerStreamAlwaysNDJSON(t *testing.T) {
	srv, _ := newTestServer(t, replyExecutor{reply: "only"})
	rec := post(srv, rpcBody(t, MethodSendStreamingMessage, sendParams("x")))

	assert.Equal(t, NDJSONMediaType, rec.Header().Get("Content-Type"))
	lines := decodeLines(t, rec.Body.Bytes())
	require.Len(t, lines, 1)
	assert.Nil(t, lines[0].Error)
	text, _ := message.FirstText(decodeMessage(t, lines[0].Result))
	assert.Equal(t, "only", text)
}

func TestServerStreamReportsErrorsInline(t *testing.T) {
	srv, _ := newTestServerWithHandlerOpts(t,
		replyExecutor{reply: "late", delay: time.Second},
		[]server.HandlerOption{server.WithExecutionTimeout(20 * time.Millisecond)},
	)
	rec := post(srv, rpcBody(t, MethodSendStreamingMessage, sendParams("x")))

	assert.Equal(t, NDJSONMediaType, rec.Header().Get("Content-Type"))
	lines := decodeLines(t, rec.Body.Bytes())
	require.Len(t, lines, 1)
	require.NotNil(t, lines[0].Error)
	assert.Equal(t, CodeInternalError, lines[0].Error.Code)
	assert.Equal(t, "TIMEOUT", lines[0].Error.Data.Code)
}

func TestServerTaskRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, replyExecutor{reply: "Payroll simulation"})
	params := &a2a.MessageSendParams{Message: message.RequestTask(message.UserText("run payroll"))}

	resp := decodeResponse(t, post(srv, rpcBody(t, MethodSendMessage, params)))
	require.Nil(t, resp.Error)
	event, err := DecodeEvent(resp.Result)
	require.NoError(t, err)
	task, ok := event.(*a2a.Task)
	require.True(t, ok, "got %T", event)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)

	resp = decodeResponse(t, post(srv, rpcBody(t, "GetTask", a2a.TaskQueryParams{ID: task.ID})))
	require.Nil(t, resp.Error)
	var got a2a.Task
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)

	resp = decodeResponse(t, post(srv, rpcBody(t, MethodCancelTask, a2a.TaskIDParams{ID: task.ID})))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeConflict, resp.Error.Code)
}

func TestServerAcceptsEmptyPartsAndNoRole(t *testing.T) {
	srv, _ := newTestServer(t, replyExecutor{reply: "ok"})
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"kind":"message","messageId":"m1","parts":[]}}}`

	resp := decodeResponse(t, post(srv, body))
	require.Nil(t, resp.Error)
	text, _ := message.FirstText(decodeMessage(t, resp.Result))
	assert.Equal(t, "ok", text)
}

func TestServerToleratesUnknownPartKinds(t *testing.T) {
	var seen atomicMessage
	srv, _ := newTestServer(t, &recordingExecutor{seen: &seen})
	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","parts":[{"kind":"hologram","beam":1},{"kind":"text","text":"hi"}]}}}`

	resp := decodeResponse(t, post(srv, body))
	require.Nil(t, resp.Error)
	got := seen.Load()
	require.NotNil(t, got)
	require.Len(t, got.Parts, 2)
	kind, ok := message.OpaqueKind(got.Parts[0])
	assert.True(t, ok)
	assert.Equal(t, "hologram", kind)
}

func TestServerErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		data string
	}{
		{name: "parse error", body: `{"jsonrpc":`, code: CodeParseError},
		{name: "wrong version", body: `{"jsonrpc":"1.0","id":1,"method":"message/send"}`, code: CodeInvalidRequest},
		{name: "missing method", body: `{"jsonrpc":"2.0","id":1}`, code: CodeInvalidRequest},
		{name: "unknown method", body: `{"jsonrpc":"2.0","id":1,"method":"tasks/resubscribe","params":{}}`, code: CodeMethodNotFound},
		{name: "missing params", body: `{"jsonrpc":"2.0","id":1,"method":"message/send"}`, code: CodeInvalidParams},
		{name: "params of wrong shape", body: `{"jsonrpc":"2.0","id":1,"method":"message/send","params":[1,2]}`, code: CodeInvalidParams},
		{name: "message without id", body: `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"kind":"message","role":"user","parts":[]}}}`, code: CodeInvalidParams, data: "INVALID_INPUT"},
		{name: "task not found", body: `{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":"nope"}}`, code: CodeTaskNotFound, data: "NOT_FOUND"},
	}

	srv, _ := newTestServer(t, replyExecutor{reply: "ok"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(srv, tt.body)
			assert.Equal(t, http.StatusOK, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Result)
			if tt.data != "" {
				require.NotNil(t, resp.Error.Data)
				assert.Equal(t, tt.data, resp.Error.Data.Code)
			}
		})
	}
}

func TestServerParseErrorHasNullID(t *testing.T) {
	srv, _ := newTestServer(t, replyExecutor{})
	rec := post(srv, `not json`)
	assert.Contains(t, rec.Body.String(), `"id":null`)
}

func TestServerTimeoutCarriesCode(t *testing.T) {
	srv, _ := newTestServerWithHandlerOpts(t,
		replyExecutor{reply: "late", delay: time.Second},
		[]server.HandlerOption{server.WithExecutionTimeout(20 * time.Millisecond)},
	)
	resp := decodeResponse(t, post(srv, rpcBody(t, MethodSendMessage, sendParams("x"))))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
	assert.Equal(t, "TIMEOUT", resp.Error.Data.Code)
}

func TestServerRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, replyExecutor{reply: "ok"}, WithRateLimit(0.001, 1))

	first := decodeResponse(t, post(srv, rpcBody(t, MethodSendMessage, sendParams("x"))))
	assert.Nil(t, first.Error)

	second := decodeResponse(t, post(srv, rpcBody(t, MethodSendMessage, sendParams("x"))))
	require.NotNil(t, second.Error)
	assert.Equal(t, CodeRateLimited, second.Error.Code)
}

func TestServerRejectsOtherVerbs(t *testing.T) {
	srv, _ := newTestServer(t, replyExecutor{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestErrorRoundTrip(t *testing.T) {
	rpcErr := &Error{Code: CodeInternalError, Message: "slow", Data: &ErrorData{Code: "TIMEOUT"}}
	typed := rpcErr.Typed()
	assert.Equal(t, "TIMEOUT", string(typed.Code))
	assert.True(t, typed.Recoverable)

	assert.Equal(t, "NOT_FOUND", string((&Error{Code: CodeTaskNotFound}).Typed().Code))
	assert.Equal(t, MethodGetTask, CanonicalMethod("GetTask"))
	assert.Equal(t, "tasks/list", CanonicalMethod("tasks/list"))
	assert.Equal(t, "RATE_LIMITED", string((&Error{Code: CodeRateLimited}).Typed().Code))

	_, err := DecodeEvent(json.RawMessage(`{"kind":"hologram"}`))
	assert.Error(t, err)
}

// recordingExecutor keeps the last message it was asked to handle.
type recordingExecutor struct {
	seen *atomicMessage
}

func (e *recordingExecutor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	e.seen.Store(reqCtx.Message)
	return queue.Write(ctx, a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "seen"}))
}

func (*recordingExecutor) Cancel(context.Context, *a2asrv.RequestContext, eventqueue.Queue) error {
	return nil
}

type atomicMessage = atomic.Pointer[a2a.Message]
