// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/jllopis/concord/pkg/a2a/agentcard"
	"github.com/jllopis/concord/pkg/router"
)

// Agent identities presented to the governance gate.
const (
	HRAgentID           = "hr-agent"
	FinanceAgentID      = "finance-agent"
	OrchestratorAgentID = "orchestrator-agent"
)

// Path segments under /api/agents.
const (
	HRSlug           = "hr"
	FinanceSlug      = "finance"
	OrchestratorSlug = "orchestrator"
)

// Tool names checked by each agent.
const (
	ToolProcessHRRequest = "process_hr_request"
	ToolViewFinance      = "view_finance"
	ToolExecutePayroll   = "execute_payroll"
	ToolRouteRequest     = "route_request"
)

// Block prefixes of the specialist agents.
const (
	HRBlockPrefix      = "Request blocked by policy"
	FinanceBlockPrefix = "Request blocked by Archestra Policy"
)

// HRResponder answers HR requests.
var HRResponder = KeywordResponder{
	Rules: []KeywordRule{
		{Keyword: "employee lookup", Reply: "Found employee: John Doe (ID: 12345) - Engineering Dept."},
		{Keyword: "offer letter", Reply: "Generated offer letter for Candidate X. Sent for approval."},
	},
	Default: "I can help with Employee Lookup and Offer Letters. What do you need?",
}

// FinanceResponder answers Finance requests.
var FinanceResponder = KeywordResponder{
	Rules: []KeywordRule{
		{Keyword: "expense", Reply: "Expense Summary for Q1: $120,500. Travel budget exceeded by 15%."},
		{Keyword: "payroll", Reply: "Payroll simulation for March completed. Net outlay: $450,000."},
	},
	Default: "I can help with Expenses and Payroll. What do you need?",
}

// AgentURL returns the endpoint of the agent with slug under baseURL.
func AgentURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/api/agents/" + slug
}

// HRCard returns the HR agent card for an agent served under baseURL.
func HRCard(baseURL string) *a2a.AgentCard {
	return agentcard.Build(agentcard.Config{
		Name:        HRAgentID,
		Description: "Handles HR related tasks like employee lookup and offer letters.",
		URL:         AgentURL(baseURL, HRSlug),
		Skills: []a2a.AgentSkill{
			{
				ID:          "employee-lookup",
				Name:        "Employee Lookup",
				Description: "Finds an employee record.",
				Tags:        []string{"hr", "employee"},
				Examples:    []string{"employee lookup for John"},
			},
			{
				ID:          "offer-letter",
				Name:        "Offer Letters",
				Description: "Drafts an offer letter and sends it for approval.",
				Tags:        []string{"hr", "hiring"},
				Examples:    []string{"generate an offer letter"},
			},
		},
	})
}

// FinanceCard returns the Finance agent card.
func FinanceCard(baseURL string) *a2a.AgentCard {
	return agentcard.Build(agentcard.Config{
		Name:        FinanceAgentID,
		Description: "Handles Finance related tasks like expense summary and payroll.",
		URL:         AgentURL(baseURL, FinanceSlug),
		Skills: []a2a.AgentSkill{
			{
				ID:          "expense-summary",
				Name:        "Expense Summary",
				Description: "Summarizes quarterly expenses.",
				Tags:        []string{"finance", "expense"},
				Examples:    []string{"show the expense report"},
			},
			{
				ID:          "payroll",
				Name:        "Payroll",
				Description: "Simulates a payroll run. Restricted by policy.",
				Tags:        []string{"finance", "payroll"},
				Examples:    []string{"run payroll for March"},
			},
		},
	})
}

// OrchestratorCard returns the orchestrator agent card.
func OrchestratorCard(baseURL string) *a2a.AgentCard {
	return agentcard.Build(agentcard.Config{
		Name:        OrchestratorAgentID,
		Description: "Orchestrates tasks across HR and Finance agents.",
		URL:         AgentURL(baseURL, OrchestratorSlug),
		Skills: []a2a.AgentSkill{
			{
				ID:          "route",
				Name:        "Route",
				Description: "Delegates to the HR and Finance agents and combines their answers.",
				Tags:        []string{"orchestration"},
				Examples:    []string{"hire an engineer and check the budget"},
			},
		},
	})
}

// NewHR builds the HR agent. Every request is checked as process_hr_request.
func NewHR(baseURL string, opts ...Option) (*Executor, error) {
	return New(Config{
		ID:          HRAgentID,
		Card:        HRCard(baseURL),
		SelectTool:  StaticTool(ToolProcessHRRequest),
		Responder:   HRResponder,
		BlockPrefix: HRBlockPrefix,
	}, opts...)
}

// NewFinance builds the Finance agent. Requests mentioning payroll are
// checked as execute_payroll, everything else as view_finance.
func NewFinance(baseURL string, opts ...Option) (*Executor, error) {
	return New(Config{
		ID:          FinanceAgentID,
		Card:        FinanceCard(baseURL),
		SelectTool:  KeywordTool("payroll", ToolExecutePayroll, ToolViewFinance),
		Responder:   FinanceResponder,
		BlockPrefix: FinanceBlockPrefix,
	}, opts...)
}

// NewOrchestrator builds the orchestrator agent. Allowed requests are routed
// through r and answered with one combined message.
func NewOrchestrator(r *router.Router, baseURL string, opts ...Option) (*Executor, error) {
	if r == nil {
		return nil, NewConfigError("router is required")
	}
	return New(Config{
		ID:         OrchestratorAgentID,
		Card:       OrchestratorCard(baseURL),
		SelectTool: StaticTool(ToolRouteRequest),
		Responder: ResponderFunc(func(ctx context.Context, content string) (string, error) {
			return r.Route(ctx, content), nil
		}),
	}, opts...)
}
