// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/concord/pkg/config"
)

// LocalGate answers policy requests from an in-process rule table. It is
// used when no policy service is configured. The table can be replaced at
// runtime with SetRules.
type LocalGate struct {
	rules  atomic.Pointer[RuleSet]
	logger *slog.Logger
}

// LocalOption configures a LocalGate.
type LocalOption func(*LocalGate)

// WithLocalLogger sets the logger used for decisions.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(g *LocalGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewLocalGate creates a gate over rules; nil selects DefaultRuleSet.
func NewLocalGate(rules *RuleSet, opts ...LocalOption) *LocalGate {
	g := &LocalGate{logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	if rules == nil {
		rules = DefaultRuleSet()
	}
	g.rules.Store(rules)
	return g
}

// SetRules atomically replaces the rule table.
func (g *LocalGate) SetRules(rules *RuleSet) {
	if rules == nil {
		return
	}
	g.rules.Store(rules)
	g.logger.Info("local policy table replaced", "rules", len(rules.Rules))
}

// Rules returns the active rule table.
func (g *LocalGate) Rules() *RuleSet {
	return g.rules.Load()
}

// CheckPolicy implements Gate.
func (g *LocalGate) CheckPolicy(ctx context.Context, req PolicyRequest) PolicyDecision {
	if err := req.Validate(); err != nil {
		return invalidRequest(err)
	}
	eval := g.rules.Load().Evaluate(req.AgentID, req.ToolName)
	decision := PolicyDecision{
		Allowed:   eval.Allowed,
		Reason:    eval.Reason,
		RequestID: uuid.NewString(),
		Source:    SourceLocal,
		RuleID:    eval.RuleID,
	}
	if !decision.Allowed {
		g.logger.WarnContext(ctx, "local policy denied tool call",
			"agent_id", req.AgentID,
			"tool", req.ToolName,
			"rule_id", eval.RuleID,
		)
	}
	return decision
}

// LoadPolicyFile reads a YAML rule table.
//
//	default: allow
//	rules:
//	  - id: sensitive-tools
//	    effect: deny
//	    tools: [execute_payroll, delete_user]
//	    exempt_agents: [admin-agent]
func LoadPolicyFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var rules RuleSet
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	for i, rule := range rules.Rules {
		switch strings.ToLower(rule.Effect) {
		case EffectAllow, EffectDeny:
		default:
			return nil, fmt.Errorf("policy file %s: rule %d has unknown effect %q", path, i, rule.Effect)
		}
		if strings.TrimSpace(rule.ID) == "" {
			rules.Rules[i].ID = fmt.Sprintf("rule-%d", i)
		}
	}
	if rules.Default == "" {
		rules.Default = EffectAllow
	}
	return &rules, nil
}

// RuleSetFromConfig builds the local rule table: the policy file when one
// is configured, otherwise the sensitive tool table from config keys.
func RuleSetFromConfig(cfg config.GovernanceConfig) (*RuleSet, error) {
	if cfg.PolicyFile != "" {
		return LoadPolicyFile(cfg.PolicyFile)
	}
	return SensitiveToolRules(cfg.SensitiveTools, cfg.AllowedAgents), nil
}
