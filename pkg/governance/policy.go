// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"path"
	"slices"
	"strings"
)

// Rule effects.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// DefaultSensitiveTools are denied unless the caller is allow-listed.
var DefaultSensitiveTools = []string{"payroll_execution", "delete_user", "system_shutdown", "execute_payroll"}

// DefaultAllowedAgents may invoke sensitive tools.
var DefaultAllowedAgents = []string{"admin-agent", "orchestrator-agent"}

// DefaultDenyReason is the reason template of the sensitive tool rule.
// {agent} and {tool} are replaced with the request values.
const DefaultDenyReason = "Policy Violation: Agent '{agent}' is not authorized to use restricted tool '{tool}' without human-in-the-loop approval."

// Rule defines a single policy rule.
type Rule struct {
	ID     string   `yaml:"id"`
	Effect string   `yaml:"effect"` // allow or deny
	Tools  []string `yaml:"tools"`  // glob patterns, empty matches every tool
	Agents []string `yaml:"agents"` // glob patterns, empty matches every agent
	// ExemptAgents are skipped by the rule even when Agents matches.
	ExemptAgents []string `yaml:"exempt_agents"`
	Reason       string   `yaml:"reason"`
}

func (r Rule) matches(agentID, toolName string) bool {
	if len(r.Tools) > 0 && !matchAny(r.Tools, toolName) {
		return false
	}
	if len(r.Agents) > 0 && !matchAny(r.Agents, agentID) {
		return false
	}
	return !matchAny(r.ExemptAgents, agentID)
}

// Evaluation is the outcome of a rule table lookup.
type Evaluation struct {
	Allowed bool
	Reason  string
	RuleID  string
}

// RuleSet evaluates rules in order; the first matching rule wins.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
	// Default is the effect applied when no rule matches. Empty means allow.
	Default string `yaml:"default"`
}

// NewRuleSet creates a rule set with a default allow decision.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{
		Rules:   append([]Rule(nil), rules...),
		Default: EffectAllow,
	}
}

// SensitiveToolRules returns the default table: the given tools are denied
// to every agent not in allowed.
func SensitiveToolRules(tools, allowed []string) *RuleSet {
	if len(tools) == 0 {
		return NewRuleSet(nil)
	}
	return NewRuleSet([]Rule{{
		ID:           "sensitive-tools",
		Effect:       EffectDeny,
		Tools:        slices.Clone(tools),
		ExemptAgents: slices.Clone(allowed),
		Reason:       DefaultDenyReason,
	}})
}

// DefaultRuleSet returns the built-in sensitive tool table.
func DefaultRuleSet() *RuleSet {
	return SensitiveToolRules(DefaultSensitiveTools, DefaultAllowedAgents)
}

// Evaluate checks rules in order and returns the first match.
func (r *RuleSet) Evaluate(agentID, toolName string) Evaluation {
	if r == nil {
		return Evaluation{Allowed: true}
	}
	for _, rule := range r.Rules {
		if !rule.matches(agentID, toolName) {
			continue
		}
		eval := Evaluation{RuleID: rule.ID, Allowed: !strings.EqualFold(rule.Effect, EffectDeny)}
		if !eval.Allowed {
			eval.Reason = renderReason(rule.Reason, agentID, toolName)
		}
		return eval
	}
	if strings.EqualFold(r.Default, EffectDeny) {
		return Evaluation{
			Allowed: false,
			Reason:  renderReason("Policy Violation: no rule allows agent '{agent}' to use tool '{tool}'.", agentID, toolName),
			RuleID:  "default",
		}
	}
	return Evaluation{Allowed: true}
}

func renderReason(template, agentID, toolName string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultDenyReason
	}
	return strings.NewReplacer("{agent}", agentID, "{tool}", toolName).Replace(template)
}

func matchAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, value) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, value string) bool {
	if pattern == "" {
		return false
	}
	ok, err := path.Match(pattern, value)
	if err == nil && ok {
		return true
	}
	return pattern == value
}
