// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes concord agents as MCP tools so MCP hosts can talk to
// them. Each agent becomes one tool that takes a text argument and returns
// the agent's reply.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/concord/pkg/a2a/message"
	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/router"
	"github.com/jllopis/concord/pkg/telemetry"
)

// TextArgument is the name of the single argument of every agent tool.
const TextArgument = "text"

// AgentTool binds an MCP tool name to an agent.
type AgentTool struct {
	Name        string
	Description string
	Agent       router.Specialist
}

// ToolName returns the conventional tool name for an agent slug.
func ToolName(slug string) string {
	return "ask_" + slug
}

// Server wraps the mcp-go server with one tool per agent.
type Server struct {
	mcpServer *server.MCPServer
	tools     map[string]AgentTool
	logger    *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an MCP server exposing tools.
func NewServer(name, version string, tools []AgentTool, opts ...Option) (*Server, error) {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		tools:     make(map[string]AgentTool, len(tools)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = telemetry.Component(s.logger, "mcp")

	for _, tool := range tools {
		if err := s.register(tool); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) register(tool AgentTool) error {
	if strings.TrimSpace(tool.Name) == "" {
		return errors.New(errors.CodeInvalidInput, "mcp tool name is required", nil)
	}
	if tool.Agent == nil {
		return errors.New(errors.CodeInvalidInput, "mcp tool agent is required", nil).WithContext("tool", tool.Name)
	}
	if _, dup := s.tools[tool.Name]; dup {
		return errors.New(errors.CodeConflict, "duplicate mcp tool", nil).WithContext("tool", tool.Name)
	}
	s.tools[tool.Name] = tool

	description := tool.Description
	if description == "" {
		description = fmt.Sprintf("Send a request to the %s agent and return its reply.", tool.Agent.Name())
	}
	s.mcpServer.AddTool(
		mcp.NewTool(tool.Name,
			mcp.WithDescription(description),
			mcp.WithString(TextArgument, mcp.Required(), mcp.Description("The request, in plain language.")),
		),
		s.handler(tool),
	)
	return nil
}

// Tools returns the registered tool names.
func (s *Server) Tools() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

// Handle calls the tool named in req. It is the handler mcp-go invokes.
func (s *Server) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tool, ok := s.tools[req.Params.Name]
	if !ok {
		return mcp.NewToolResultError("unknown tool: " + req.Params.Name), nil
	}
	return s.handler(tool)(ctx, req)
}

func (s *Server) handler(tool AgentTool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString(TextArgument)
		if err != nil || strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("argument \"text\" is required"), nil
		}

		reply, err := tool.Agent.Send(ctx, message.UserText(text))
		if err != nil {
			s.logger.WarnContext(ctx, "mcp.tool.error",
				slog.String("tool", tool.Name),
				slog.String("error", err.Error()),
				slog.String("error_code", string(errors.CodeOf(err))),
			)
			return mcp.NewToolResultError(fmt.Sprintf("%s agent failed: %s", tool.Agent.Name(), errors.As(err).Message)), nil
		}
		s.logger.DebugContext(ctx, "mcp.tool.complete", slog.String("tool", tool.Name))
		return mcp.NewToolResultText(renderReply(reply)), nil
	}
}

func renderReply(reply a2a.SendMessageResult) string {
	switch v := reply.(type) {
	case *a2a.Message:
		return message.Text(v)
	case *a2a.Task:
		if v.Status.Message != nil {
			return message.Text(v.Status.Message)
		}
		return fmt.Sprintf("Task %s is %s.", v.ID, v.Status.State)
	default:
		return "The agent returned an unexpected response."
	}
}

// ServeStdio serves MCP over the process stdio until it closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Listen serves MCP over the given streams until ctx is done or in closes.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}
