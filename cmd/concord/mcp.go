// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jllopis/concord/internal/app"
	"github.com/jllopis/concord/pkg/a2a/jsonrpc/client"
	"github.com/jllopis/concord/pkg/agent"
	"github.com/jllopis/concord/pkg/config"
	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/mcp"
	"github.com/jllopis/concord/pkg/resilience"
	"github.com/jllopis/concord/pkg/router"
)

var mcpAgents = []struct {
	slug, name, description string
}{
	{agent.OrchestratorSlug, "Orchestrator", "Ask the orchestrator. It routes hiring questions to HR and payroll or budget questions to Finance and combines the answers."},
	{agent.HRSlug, "HR", "Ask the HR agent about employee lookups and offer letters."},
	{agent.FinanceSlug, "Finance", "Ask the Finance agent about expenses and payroll. Payroll runs are restricted by policy."},
}

func newMCPCmd(root *rootOptions) *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the agents as MCP tools over stdio",
		Long: `Serve one MCP tool per agent (ask_orchestrator, ask_hr, ask_finance) over
stdio. Each tool takes a single "text" argument.

The agents run in-process unless --remote points at a running concord
server. Logs go to stderr.

Examples:
  # In-process agents
  concord mcp

  # Forward to a running server
  concord mcp --remote http://localhost:3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(nil)
			if err != nil {
				return err
			}
			configureLogging(cmd, cfg)

			tools, cleanup, err := mcpTools(cfg, remote)
			if err != nil {
				return err
			}
			defer cleanup()

			srv, err := mcp.NewServer("concord", version, tools, mcp.WithLogger(slog.Default()))
			if err != nil {
				return err
			}
			slog.Info("mcp server ready", "tools", srv.Tools(), "remote", remote)
			return srv.Listen(commandContext(cmd), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a running concord server")
	return cmd
}

// mcpTools binds every agent to a tool, in-process or over JSON-RPC.
func mcpTools(cfg *config.Config, remote string) ([]mcp.AgentTool, func(), error) {
	tools := make([]mcp.AgentTool, 0, len(mcpAgents))

	if remote != "" {
		remotes := make([]*router.RemoteSpecialist, 0, len(mcpAgents))
		for _, a := range mcpAgents {
			remoteAgent := router.NewRemoteSpecialist(a.name, client.New(agent.AgentURL(remote, a.slug)),
				router.WithCallTimeout(cfg.Server.RequestTimeout),
				router.WithBreaker(resilience.BreakerConfigFrom(cfg.Router.Breaker)),
			)
			remotes = append(remotes, remoteAgent)
			tools = append(tools, mcp.AgentTool{Name: mcp.ToolName(a.slug), Description: a.description, Agent: remoteAgent})
		}
		return tools, func() {
			for _, r := range remotes {
				_ = r.Close()
			}
		}, nil
	}

	local, err := app.New(cfg, app.WithLogger(slog.Default()), app.WithVersion(version))
	if err != nil {
		return nil, nil, err
	}
	for _, a := range mcpAgents {
		h := local.Agent(a.slug)
		if h == nil {
			_ = local.Close(context.Background())
			return nil, nil, errors.New(errors.CodeNotFound, "agent not wired", nil).WithContext("agent", a.slug)
		}
		tools = append(tools, mcp.AgentTool{
			Name:        mcp.ToolName(a.slug),
			Description: a.description,
			Agent:       router.NewLocalSpecialist(a.name, h),
		})
	}
	return tools, func() { _ = local.Close(context.Background()) }, nil
}
