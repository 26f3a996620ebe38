// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"log/slog"
	"net/http"

	"github.com/jllopis/concord/pkg/config"
	"github.com/jllopis/concord/pkg/resilience"
)

// NewGate selects the gate implementation from configuration: an empty or
// mock API key yields a LocalGate, anything else a RemoteGate. The local
// gate is returned separately (nil in remote mode) so callers can reload
// its rule table.
func NewGate(cfg config.GovernanceConfig, logger *slog.Logger) (Gate, *LocalGate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UsesLocalPolicy() {
		rules, err := RuleSetFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}
		local := NewLocalGate(rules, WithLocalLogger(logger))
		logger.Info("governance running with local policy table", "rules", len(rules.Rules))
		return local, local, nil
	}
	remote := NewRemoteGate(cfg.BaseURL, cfg.APIKey,
		WithTimeout(cfg.Timeout),
		WithBreaker(resilience.BreakerConfigFrom(cfg.Breaker)),
		WithRemoteLogger(logger),
	)
	logger.Info("governance delegating to policy service", "base_url", cfg.BaseURL)
	return remote, nil, nil
}

// NewAuditSink returns the audit sink matching the gate mode: the policy
// service in remote mode, the log in local mode.
func NewAuditSink(cfg config.GovernanceConfig, logger *slog.Logger, client *http.Client) AuditSink {
	if cfg.UsesLocalPolicy() {
		return LogAuditSink{Logger: logger}
	}
	return NewHTTPAuditSink(cfg.BaseURL, cfg.APIKey, client)
}
