// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/jllopis/concord/pkg/errors"
)

// Version is the only accepted value of the "jsonrpc" member.
const Version = "2.0"

// Method names. The A2A slash names are canonical; the camel-case aliases
// are accepted for older clients.
const (
	MethodSendMessage          = "message/send"
	MethodSendStreamingMessage = "message/stream"
	MethodGetTask              = "tasks/get"
	MethodCancelTask           = "tasks/cancel"
)

var methodAliases = map[string]string{
	"SendMessage":          MethodSendMessage,
	"SendStreamingMessage": MethodSendStreamingMessage,
	"GetTask":              MethodGetTask,
	"CancelTask":           MethodCancelTask,
}

// CanonicalMethod resolves aliases to the canonical method name.
func CanonicalMethod(method string) string {
	if canonical, ok := methodAliases[method]; ok {
		return canonical
	}
	return method
}

// JSON-RPC and A2A error codes. RATE_LIMITED sits in the implementation
// range clear of the codes A2A reserves (-32001 to -32006).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeTaskNotFound   = -32001
	CodeConflict       = -32002
	CodeRateLimited    = -32029
)

// NDJSONMediaType is the content type of streamed responses.
const NDJSONMediaType = "application/x-ndjson"

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope. ID is null when the request
// id could not be read.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the typed error code so callers can tell a timeout from
// a denial or an internal failure.
type ErrorData struct {
	Code string `json:"code"`
}

func (e *Error) Error() string {
	if e.Data != nil && e.Data.Code != "" {
		return fmt.Sprintf("jsonrpc error %d (%s): %s", e.Code, e.Data.Code, e.Message)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Typed converts a wire error back into a typed error.
func (e *Error) Typed() *errors.Error {
	code := errors.CodeInternal
	switch {
	case e.Data != nil && e.Data.Code != "":
		code = errors.ErrorCode(e.Data.Code)
	case e.Code == CodeTaskNotFound:
		code = errors.CodeNotFound
	case e.Code == CodeConflict:
		code = errors.CodeConflict
	case e.Code == CodeRateLimited:
		code = errors.CodeRateLimit
	case e.Code == CodeInvalidParams || e.Code == CodeInvalidRequest || e.Code == CodeParseError:
		code = errors.CodeInvalidInput
	}
	return errors.New(code, e.Message, nil).
		WithContext("rpc_code", e.Code).
		WithRecoverable(code == errors.CodeTimeout || code == errors.CodeRateLimit)
}

// FromError translates a handler error to its wire form.
func FromError(err error) *Error {
	ce := errors.As(err)
	msg := ce.Message
	if ce.Err != nil && ce.Err.Error() != ce.Message {
		msg += ": " + ce.Err.Error()
	}
	out := &Error{Message: msg, Data: &ErrorData{Code: string(ce.Code)}}
	switch ce.Code {
	case errors.CodeInvalidInput:
		out.Code = CodeInvalidParams
	case errors.CodeNotFound:
		out.Code = CodeTaskNotFound
	case errors.CodeConflict:
		out.Code = CodeConflict
	case errors.CodeRateLimit:
		out.Code = CodeRateLimited
	default:
		out.Code = CodeInternalError
	}
	return out
}

// DecodeEvent decodes one streamed result by its "kind" member.
func DecodeEvent(raw json.RawMessage) (a2a.Event, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	var event a2a.Event
	switch head.Kind {
	case "message":
		event = &a2a.Message{}
	case "task":
		event = &a2a.Task{}
	case "status-update":
		event = &a2a.TaskStatusUpdateEvent{}
	case "artifact-update":
		event = &a2a.TaskArtifactUpdateEvent{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", head.Kind)
	}
	if err := json.Unmarshal(raw, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
	}
	return event, nil
}
