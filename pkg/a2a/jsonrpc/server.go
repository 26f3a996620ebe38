// SPDX-License-Identifier: Apache-2.0

// Package jsonrpc exposes an A2A handler over JSON-RPC 2.0 on HTTP. GET
// serves the agent card; POST carries the protocol methods. message/send
// answers with a single JSON-RPC response; message/stream writes NDJSON, one
// JSON-RPC response per line.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
	"golang.org/x/time/rate"

	"github.com/jllopis/concord/pkg/a2a/message"
	"github.com/jllopis/concord/pkg/telemetry"
)

const maxRequestBytes = 1 << 20

// Handler is the A2A surface served over JSON-RPC. *server.Handler
// implements it.
type Handler interface {
	CardHandler() http.Handler
	SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.SendMessageResult, error)
	SendStreamingMessage(ctx context.Context, params *a2a.MessageSendParams) iter.Seq2[a2a.Event, error]
	GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error)
	CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error)
}
// Server exposes the JSON-RPC binding for an A2A handler.
type Server struct {
	handler Handler
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithRateLimit admits at most rps requests per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a JSON-RPC server for handler.
func New(handler Handler, opts ...Option) *Server {
	s := &Server{handler: handler, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = telemetry.Component(s.logger, "a2a.jsonrpc")
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handler.CardHandler().ServeHTTP(w, r)
	case http.MethodPost:
		s.serveRPC(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, &Error{Code: CodeParseError, Message: "request body could not be read"})
		return
	}
	var req Request
	if err := json.Unmarshal(bytes.TrimSpace(body), &req); err != nil {
		writeError(w, nil, &Error{Code: CodeParseError, Message: "invalid json"})
		return
	}
	if req.JSONRPC != Version || req.Method == "" {
		writeError(w, req.ID, &Error{Code: CodeInvalidRequest, Message: "invalid request"})
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, req.ID, &Error{Code: CodeRateLimited, Message: "rate limit exceeded", Data: &ErrorData{Code: "RATE_LIMITED"}})
		return
	}

	ctx := r.Context()
	method := CanonicalMethod(req.Method)
	s.logger.DebugContext(ctx, "rpc request", telemetry.AttrRPCMethod, method)

	switch method {
	case MethodSendMessage:
		s.handleSendMessage(ctx, w, req)
	case MethodSendStreamingMessage:
		s.handleSendStreamingMessage(ctx, w, req)
	case MethodGetTask:
		var params a2a.TaskQueryParams
		if !decodeParams(w, req, &params) {
			return
		}
		task, err := s.handler.GetTask(ctx, &params)
		s.writeReply(w, req.ID, task, err)
	case MethodCancelTask:
		var params a2a.TaskIDParams
		if !decodeParams(w, req, &params) {
			return
		}
		task, err := s.handler.CancelTask(ctx, &params)
		s.writeReply(w, req.ID, task, err)
	default:
		writeError(w, req.ID, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method})
	}
}

func (s *Server) handleSendMessage(ctx context.Context, w http.ResponseWriter, req Request) {
	var params a2a.MessageSendParams
	if !decodeParams(w, req, &params, message.TolerateParts) {
		return
	}
	result, err := s.handler.SendMessage(ctx, &params)
	s.writeReply(w, req.ID, result, err)
}

func (s *Server) handleSendStreamingMessage(ctx context.Context, w http.ResponseWriter, req Request) {
	var params a2a.MessageSendParams
	if !decodeParams(w, req, &params, message.TolerateParts) {
		return
	}
	stream := newNDJSONWriter(w, req.ID)
	defer stream.begin()
	for event, err := range s.handler.SendStreamingMessage(ctx, &params) {
		if err != nil {
			_ = stream.fail(FromError(err))
			return
		}
		if err := stream.result(event); err != nil {
			s.logger.WarnContext(ctx, "write event failed", "error", err)
			return
		}
	}
}

func (s *Server) writeReply(w http.ResponseWriter, id json.RawMessage, result any, err error) {
	if err != nil {
		writeError(w, id, FromError(err))
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("encode result failed", "error", err)
		writeError(w, id, &Error{Code: CodeInternalError, Message: "encode result"})
		return
	}
	writeJSON(w, Response{JSONRPC: Version, ID: id, Result: raw})
}

// decodeParams reads req.Params into target after applying the optional
// rewrites.
func decodeParams(w http.ResponseWriter, req Request, target any, rewrites ...func(json.RawMessage) json.RawMessage) bool {
	if len(req.Params) == 0 || bytes.Equal(req.Params, []byte("null")) {
		writeError(w, req.ID, &Error{Code: CodeInvalidParams, Message: "missing params"})
		return false
	}
	raw := req.Params
	for _, rewrite := range rewrites {
		raw = rewrite(raw)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		writeError(w, req.ID, &Error{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *Error) {
	writeJSON(w, Response{JSONRPC: Version, ID: id, Error: rpcErr})
}

func writeJSON(w http.ResponseWriter, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// ndjsonWriter writes one JSON-RPC response per line and flushes each one.
// Headers are sent with the first line, or by begin when nothing was written.
type ndjsonWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	id      json.RawMessage

	mu      sync.Mutex
	started bool
}

func newNDJSONWriter(w http.ResponseWriter, id json.RawMessage) *ndjsonWriter {
	flusher, _ := w.(http.Flusher)
	return &ndjsonWriter{w: w, flusher: flusher, id: id}
}

func (n *ndjsonWriter) result(ev a2a.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.write(Response{JSONRPC: Version, ID: n.id, Result: raw})
}

func (n *ndjsonWriter) fail(rpcErr *Error) error {
	return n.write(Response{JSONRPC: Version, ID: n.id, Error: rpcErr})
}

func (n *ndjsonWriter) write(resp Response) error {
	line, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startLocked()
	if _, err := n.w.Write(append(line, '\n')); err != nil {
		return err
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

func (n *ndjsonWriter) begin() {
	n.mu.Lock()
	n.startLocked()
	n.mu.Unlock()
}

func (n *ndjsonWriter) startLocked() {
	if n.started {
		return
	}
	n.started = true
	n.w.Header().Set("Content-Type", NDJSONMediaType)
	n.w.Header().Set("Cache-Control", "no-cache")
	n.w.WriteHeader(http.StatusOK)
}
