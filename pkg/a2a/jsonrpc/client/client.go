// SPDX-License-Identifier: Apache-2.0

// Package client calls concord agents. Unary methods go through a2aclient;
// message/stream is read here because concord streams NDJSON, not SSE.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jllopis/concord/pkg/a2a/agentcard"
	"github.com/jllopis/concord/pkg/a2a/jsonrpc"
	"github.com/jllopis/concord/pkg/errors"
)

// Client talks to one agent endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration

	once     sync.Once
	protocol *a2aclient.Client
	initErr  error
}

// Option configures the client.
type Option func(*Client)

// New creates a client bound to an agent endpoint. Nothing is dialed until
// the first call.
func New(endpoint string, opts ...Option) *Client {
	client := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// WithHTTPClient overrides the HTTP client used for streams and card
// resolution.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout bounds every call. Zero leaves calls bounded only by ctx.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Endpoint returns the agent URL the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close releases the underlying a2aclient.
func (c *Client) Close() error {
	if c.protocol == nil {
		return nil
	}
	return c.protocol.Destroy()
}

// protocolClient returns the a2aclient for the endpoint. The card is built
// locally from the endpoint so no discovery round trip is needed.
func (c *Client) protocolClient(ctx context.Context) (*a2aclient.Client, error) {
	c.once.Do(func() {
		card := &a2a.AgentCard{
			URL:                c.endpoint,
			PreferredTransport: a2a.TransportProtocolJSONRPC,
		}
		c.protocol, c.initErr = a2aclient.NewFromCard(context.WithoutCancel(ctx), card)
	})
	if c.initErr != nil {
		return nil, errors.New(errors.CodeInternal, "create a2a client", c.initErr)
	}
	return c.protocol, nil
}

// SendMessage invokes message/send and returns the agent's answer: a
// message, or a task when one was requested.
func (c *Client) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.SendMessageResult, error) {
	if params == nil || params.Message == nil {
		return nil, errors.New(errors.CodeInvalidInput, "message is required", nil)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	protocol, err := c.protocolClient(ctx)
	if err != nil {
		return nil, err
	}
	result, err := protocol.SendMessage(ctx, params)
	if err != nil {
		return nil, translate(ctx, err)
	}
	return result, nil
}

// GetTask invokes tasks/get.
func (c *Client) GetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New(errors.CodeInvalidInput, "task id is required", nil)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	protocol, err := c.protocolClient(ctx)
	if err != nil {
		return nil, err
	}
	task, err := protocol.GetTask(ctx, &a2a.TaskQueryParams{ID: a2a.TaskID(taskID)})
	if err != nil {
		return nil, translate(ctx, err)
	}
	return task, nil
}

// CancelTask invokes tasks/cancel.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New(errors.CodeInvalidInput, "task id is required", nil)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	protocol, err := c.protocolClient(ctx)
	if err != nil {
		return nil, err
	}
	task, err := protocol.CancelTask(ctx, &a2a.TaskIDParams{ID: a2a.TaskID(taskID)})
	if err != nil {
		return nil, translate(ctx, err)
	}
	return task, nil
}

// AgentCard resolves the card published under the endpoint.
func (c *Client) AgentCard(ctx context.Context) (*a2a.AgentCard, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	card, err := agentcard.Resolve(ctx, c.httpClient, c.endpoint)
	if err != nil {
		return nil, translate(ctx, err)
	}
	return card, nil
}

// SendStreamingMessage invokes message/stream and calls fn for each event
// as it arrives. An error returned by fn stops reading.
func (c *Client) SendStreamingMessage(ctx context.Context, params *a2a.MessageSendParams, fn func(a2a.Event) error) error {
	if params == nil || params.Message == nil {
		return errors.New(errors.CodeInvalidInput, "message is required", nil)
	}
	if fn == nil {
		return errors.New(errors.CodeInvalidInput, "event callback is required", nil)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(params)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "encode params", err)
	}
	id, _ := json.Marshal(uuid.NewString())
	body, err := json.Marshal(jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Method:  jsonrpc.MethodSendStreamingMessage,
		Params:  payload,
	})
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "encode request", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "build request", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", jsonrpc.NDJSONMediaType)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(request.Header))

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return translate(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp)
	}

	decoder := json.NewDecoder(resp.Body)
	for {
		var line jsonrpc.Response
		if err := decoder.Decode(&line); err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return translate(ctx, err)
			}
			return errors.New(errors.CodeInternal, "malformed agent response", err)
		}
		if line.Error != nil {
			return line.Error.Typed()
		}
		event, err := jsonrpc.DecodeEvent(line.Result)
		if err != nil {
			return errors.New(errors.CodeInternal, "unexpected agent result", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// translate maps a call failure to a typed error. Protocol errors keep
// their meaning; anything else means the agent could not be reached.
func translate(ctx context.Context, err error) *errors.Error {
	var typed *errors.Error
	switch {
	case stderrors.As(err, &typed):
		return typed
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded), stderrors.Is(err, context.DeadlineExceeded):
		return errors.New(errors.CodeTimeout, "agent did not answer in time", err).WithRecoverable(true)
	case stderrors.Is(err, context.Canceled):
		return errors.New(errors.CodeInternal, "call canceled", err).WithRecoverable(false)
	case stderrors.Is(err, a2a.ErrTaskNotFound):
		return errors.New(errors.CodeNotFound, "task not found", err)
	case stderrors.Is(err, a2a.ErrTaskNotCancelable):
		return errors.New(errors.CodeConflict, "task is in a terminal state", err)
	case stderrors.Is(err, a2a.ErrInvalidParams), stderrors.Is(err, a2a.ErrInvalidRequest):
		return errors.New(errors.CodeInvalidInput, "agent rejected the request", err)
	case stderrors.Is(err, a2a.ErrInternalError):
		return errors.New(errors.CodeInternal, "agent failed", err)
	}
	return errors.New(errors.CodeSpecialistUnreachable, "agent unreachable", err).WithRecoverable(true)
}

func parseHTTPError(response *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	detail := strings.TrimSpace(string(payload))
	if detail == "" {
		detail = response.Status
	}
	code := errors.CodeSpecialistUnreachable
	switch response.StatusCode {
	case http.StatusNotFound:
		code = errors.CodeNotFound
	case http.StatusTooManyRequests:
		code = errors.CodeRateLimit
	}
	return errors.New(code, fmt.Sprintf("agent returned %s", response.Status), stderrors.New(detail)).
		WithContext("status", response.StatusCode)
}
