// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/resilience"
)

// HTTPAuditSink posts events to the audit endpoint of the policy service.
// Server errors and transport failures are retried with backoff; client
// errors are not.
type HTTPAuditSink struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewHTTPAuditSink creates a sink posting to baseURL + AuditPath.
func NewHTTPAuditSink(baseURL, apiKey string, client *http.Client) *HTTPAuditSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAuditSink{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: client,
		retry: resilience.DefaultRetryConfig().
			WithInitialDelay(200 * time.Millisecond).
			WithMaxDelay(2 * time.Second),
	}
}

// WithRetry replaces the retry policy.
func (s *HTTPAuditSink) WithRetry(rc resilience.RetryConfig) *HTTPAuditSink {
	s.retry = rc
	return s
}

// Record implements AuditSink.
func (s *HTTPAuditSink) Record(ctx context.Context, event AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "encode audit event", err)
	}
	return s.retry.Do(ctx, func() error {
		return s.post(ctx, body)
	})
}

func (s *HTTPAuditSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+AuditPath, bytes.NewReader(body))
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "build audit request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(VersionHeader, APIVersion)
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.New(errors.CodeGovernanceUnavailable, "audit service unreachable", err).WithRecoverable(true)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return errors.New(errors.CodeGovernanceUnavailable, fmt.Sprintf("audit service returned %s", resp.Status), nil).
		WithRecoverable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
}
