// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/sony/gobreaker/v2"

	"github.com/jllopis/concord/pkg/a2a/jsonrpc/client"
	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/resilience"
)

// DefaultCallTimeout bounds one specialist call when no timeout is set.
const DefaultCallTimeout = 10 * time.Second

// Specialist is an agent the router can delegate to. Send returns the
// agent's reply, a *a2a.Message or a *a2a.Task.
type Specialist interface {
	Name() string
	Send(ctx context.Context, msg *a2a.Message) (a2a.SendMessageResult, error)
}

// RemoteSpecialist calls an agent through a2aclient with a hard per-call
// timeout behind a circuit breaker.
type RemoteSpecialist struct {
	name    string
	client  *client.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[a2a.SendMessageResult]
}

// RemoteOption configures a RemoteSpecialist.
type RemoteOption func(*remoteOptions)

type remoteOptions struct {
	timeout time.Duration
	breaker resilience.BreakerConfig
	logger  *slog.Logger
}

// WithCallTimeout bounds each call.
func WithCallTimeout(d time.Duration) RemoteOption {
	return func(o *remoteOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBreaker tunes the circuit breaker.
func WithBreaker(cfg resilience.BreakerConfig) RemoteOption {
	return func(o *remoteOptions) {
		o.breaker = cfg
	}
}

// WithRemoteLogger sets the logger used for breaker state changes.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(o *remoteOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewRemoteSpecialist creates a specialist backed by c.
func NewRemoteSpecialist(name string, c *client.Client, opts ...RemoteOption) *RemoteSpecialist {
	o := remoteOptions{
		timeout: DefaultCallTimeout,
		breaker: resilience.DefaultBreakerConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	// Only transport failures count against the breaker.
	o.breaker.IsSuccessful = func(err error) bool {
		return err == nil || !(errors.IsTimeout(err) || errors.IsCode(err, errors.CodeSpecialistUnreachable))
	}
	return &RemoteSpecialist{
		name:    name,
		client:  c,
		timeout: o.timeout,
		breaker: resilience.NewBreaker[a2a.SendMessageResult]("specialist."+strings.ToLower(name), o.breaker, o.logger),
	}
}

// Name implements Specialist.
func (s *RemoteSpecialist) Name() string { return s.name }

// Close releases the underlying client.
func (s *RemoteSpecialist) Close() error { return s.client.Close() }

// Send implements Specialist.
func (s *RemoteSpecialist) Send(ctx context.Context, msg *a2a.Message) (a2a.SendMessageResult, error) {
	reply, err := s.breaker.Execute(func() (a2a.SendMessageResult, error) {
		return resilience.CallWithTimeout(ctx, s.timeout, func(ctx context.Context) (a2a.SendMessageResult, error) {
			return s.client.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
		})
	})
	if resilience.IsOpen(err) {
		return nil, errors.New(errors.CodeSpecialistUnreachable, "circuit breaker is open", nil).
			WithContext("specialist", s.name).
			WithRecoverable(true)
	}
	return reply, err
}

// MessageSender is the in-process surface LocalSpecialist calls.
// *server.Handler implements it.
type MessageSender interface {
	SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.SendMessageResult, error)
}

// LocalSpecialist calls an agent handler in the same process.
type LocalSpecialist struct {
	name    string
	handler MessageSender
}

// NewLocalSpecialist creates a specialist backed by an in-process handler.
func NewLocalSpecialist(name string, handler MessageSender) *LocalSpecialist {
	return &LocalSpecialist{name: name, handler: handler}
}

// Name implements Specialist.
func (s *LocalSpecialist) Name() string { return s.name }

// Send implements Specialist.
func (s *LocalSpecialist) Send(ctx context.Context, msg *a2a.Message) (a2a.SendMessageResult, error) {
	reply, err := s.handler.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, errors.New(errors.CodeInternal, "agent produced no reply", nil).
			WithContext("specialist", s.name)
	}
	return reply, nil
}
