// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/resilience"
)

// Policy service wire constants.
const (
	ValidatePath       = "/policies/validate"
	AuditPath          = "/audit/events"
	VersionHeader      = "X-Archestra-Version"
	APIVersion         = "1.0"
	DefaultGateTimeout = 5 * time.Second
)

const defaultRemoteDenyReason = "Denied by governance policy"

// RemoteGate asks an HTTP policy service for every decision and fails
// closed when the service cannot answer.
type RemoteGate struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker[PolicyDecision]
	logger     *slog.Logger
}

// RemoteOption configures a RemoteGate.
type RemoteOption func(*remoteOptions)

type remoteOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	breaker    resilience.BreakerConfig
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client used for policy calls.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(o *remoteOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithTimeout bounds each policy call.
func WithTimeout(d time.Duration) RemoteOption {
	return func(o *remoteOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBreaker tunes the circuit breaker wrapping policy calls.
func WithBreaker(cfg resilience.BreakerConfig) RemoteOption {
	return func(o *remoteOptions) {
		o.breaker = cfg
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(o *remoteOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewRemoteGate creates a gate for the policy service at baseURL.
func NewRemoteGate(baseURL, apiKey string, opts ...RemoteOption) *RemoteGate {
	o := remoteOptions{
		httpClient: http.DefaultClient,
		timeout:    DefaultGateTimeout,
		breaker:    resilience.DefaultBreakerConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &RemoteGate{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: o.httpClient,
		timeout:    o.timeout,
		breaker:    resilience.NewBreaker[PolicyDecision]("governance", o.breaker, o.logger),
		logger:     o.logger,
	}
}

// CheckPolicy implements Gate.
func (g *RemoteGate) CheckPolicy(ctx context.Context, req PolicyRequest) PolicyDecision {
	if err := req.Validate(); err != nil {
		return invalidRequest(err)
	}

	decision, err := g.breaker.Execute(func() (PolicyDecision, error) {
		return g.validate(ctx, req)
	})
	if err != nil {
		cause := g.describeFailure(err)
		g.logger.ErrorContext(ctx, "governance check failed, denying",
			"agent_id", req.AgentID,
			"tool", req.ToolName,
			"error", err,
		)
		return FailClosed(cause)
	}
	return decision
}

func (g *RemoteGate) describeFailure(err error) string {
	switch {
	case resilience.IsOpen(err):
		return "policy service circuit is open"
	case errors.IsTimeout(err):
		return fmt.Sprintf("policy service did not answer within %s", g.timeout)
	default:
		ce := errors.As(err)
		if ce.Code != errors.CodeGovernanceUnavailable {
			return err.Error()
		}
		if ce.Err != nil {
			return ce.Message + ": " + ce.Err.Error()
		}
		return ce.Message
	}
}

type validateResponse struct {
	Allowed       *bool           `json:"allowed"`
	Reason        string          `json:"reason"`
	RequestID     string          `json:"requestId"`
	Modifications json.RawMessage `json:"modifications"`
}

func (g *RemoteGate) validate(ctx context.Context, req PolicyRequest) (PolicyDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return PolicyDecision{}, unavailable("encode policy request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+ValidatePath, bytes.NewReader(body))
	if err != nil {
		return PolicyDecision{}, unavailable("build policy request", err)
	}
	g.setHeaders(httpReq)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return PolicyDecision{}, errors.New(errors.CodeTimeout, "policy service timed out", ctx.Err())
		}
		return PolicyDecision{}, unavailable("policy service unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PolicyDecision{}, unavailable("read policy response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PolicyDecision{}, unavailable(fmt.Sprintf("policy service returned %s", resp.Status), nil).
			WithContext("body", string(truncate(raw, 256)))
	}

	var out validateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return PolicyDecision{}, unavailable("malformed policy response", err)
	}
	if out.Allowed == nil {
		return PolicyDecision{}, unavailable("malformed policy response: missing allowed", nil)
	}

	decision := PolicyDecision{
		Allowed:       *out.Allowed,
		Reason:        out.Reason,
		RequestID:     out.RequestID,
		Modifications: out.Modifications,
		Source:        SourceRemote,
	}
	if decision.RequestID == "" {
		decision.RequestID = uuid.NewString()
	}
	if !decision.Allowed && strings.TrimSpace(decision.Reason) == "" {
		decision.Reason = defaultRemoteDenyReason
	}
	if len(decision.Modifications) > 0 && string(decision.Modifications) != "null" {
		g.logger.DebugContext(ctx, "policy modifications received and not applied",
			"request_id", decision.RequestID,
		)
	}
	return decision, nil
}

func (g *RemoteGate) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(VersionHeader, APIVersion)
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

func unavailable(msg string, cause error) *errors.Error {
	return errors.New(errors.CodeGovernanceUnavailable, msg, cause).WithRecoverable(true)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
