// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http/httptest"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/concord/internal/app"
	"github.com/jllopis/concord/pkg/config"
	"github.com/jllopis/concord/pkg/errors"
	"github.com/jllopis/concord/pkg/mcp"
)

func startServer(t *testing.T) string {
	t.Helper()
	t.Setenv("CONCORD_GOVERNANCE_API_KEY", "")
	cfg, err := config.LoadWithOverrides("", map[string]any{"telemetry.exporter": "none"})
	require.NoError(t, err)
	a, err := app.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close(context.Background())
	})
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSendPrintsReply(t *testing.T) {
	base := startServer(t)

	out, err := run(t, "send", "--url", base+"/api/agents/orchestrator", "employee", "lookup")
	require.NoError(t, err)
	assert.Equal(t, "HR Agent says: Found employee: John Doe (ID: 12345) - Engineering Dept.\n", out)
}

func TestSendTaskFlow(t *testing.T) {
	base := startServer(t)
	url := base + "/api/agents/finance"

	out, err := run(t, "--json", "send", "--url", url, "--task", "expense report")
	require.NoError(t, err)
	var task struct {
		ID     string `json:"id"`
		Status struct {
			State string `json:"state"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, "completed", task.Status.State)

	out, err = run(t, "send", "--url", url, "--get", task.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "task "+task.ID+" [completed]\n"), out)

	_, err = run(t, "send", "--url", url, "--cancel", task.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
}

func TestSendStream(t *testing.T) {
	base := startServer(t)

	out, err := run(t, "send", "--url", base+"/api/agents/hr", "--task", "--stream", "offer letter")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated offer letter for Candidate X. Sent for approval.")
}

func TestSendRequiresText(t *testing.T) {
	_, err := run(t, "send", "--url", "http://127.0.0.1:1/api/agents/hr", "  ")
	require.Error(t, err)
	var cliErr *CLIError
	require.True(t, stderrors.As(err, &cliErr))
	assert.Equal(t, errors.CodeInvalidInput, cliErr.Err.Code)
	assert.NotEmpty(t, cliErr.Hint)
}

func TestSendUnreachableHasHint(t *testing.T) {
	_, err := run(t, "send", "--url", "http://127.0.0.1:1/api/agents/hr", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeSpecialistUnreachable))
	assert.Contains(t, err.Error(), "Hint: check that an agent is serving at http://127.0.0.1:1/api/agents/hr")
}

func TestCardCommand(t *testing.T) {
	base := startServer(t)

	out, err := run(t, "card", "--url", base+"/api/agents/finance")
	require.NoError(t, err)
	var card map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &card))
	assert.Equal(t, "finance-agent", card["name"])
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "concord dev\n", out)
}

func TestPrintError(t *testing.T) {
	cliErr := NewCLIError(errors.New(errors.CodeTimeout, "request timed out", stderrors.New("slow")), "increase --timeout")

	var text bytes.Buffer
	printError(&text, cliErr, false)
	assert.Equal(t, "Error [TIMEOUT]: request timed out\n  Cause: slow\n  Hint: increase --timeout\n", text.String())

	var js bytes.Buffer
	printError(&js, cliErr, true)
	var payload struct {
		Error map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(js.Bytes(), &payload))
	assert.Equal(t, "TIMEOUT", payload.Error["code"])
	assert.Equal(t, "increase --timeout", payload.Error["hint"])

	var plain bytes.Buffer
	printError(&plain, stderrors.New("boom"), false)
	assert.Equal(t, "Error [INTERNAL_ERROR]: boom\n  Cause: boom\n", plain.String())
}

func TestMCPToolsInProcess(t *testing.T) {
	t.Setenv("CONCORD_GOVERNANCE_API_KEY", "")
	cfg, err := config.LoadWithOverrides("", map[string]any{"telemetry.exporter": "none"})
	require.NoError(t, err)

	tools, cleanup, err := mcpTools(cfg, "")
	require.NoError(t, err)
	defer cleanup()

	srv, err := mcp.NewServer("concord", "test", tools)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ask_orchestrator", "ask_hr", "ask_finance"}, srv.Tools())

	var req mcpgo.CallToolRequest
	req.Params.Name = "ask_finance"
	req.Params.Arguments = map[string]any{"text": "run payroll"}
	res, err := srv.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentText(t, res), "Request blocked by Archestra Policy: "))
}

func TestMCPToolsRemote(t *testing.T) {
	base := startServer(t)
	cfg, err := config.LoadWithOverrides("", nil)
	require.NoError(t, err)

	tools, cleanup, err := mcpTools(cfg, base)
	require.NoError(t, err)
	defer cleanup()

	srv, err := mcp.NewServer("concord", "test", tools)
	require.NoError(t, err)

	var req mcpgo.CallToolRequest
	req.Params.Name = "ask_hr"
	req.Params.Arguments = map[string]any{"text": "employee lookup"}
	res, err := srv.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Found employee: John Doe (ID: 12345) - Engineering Dept.", contentText(t, res))
}

func contentText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcpgo.TextContent:
		return c.Text
	case *mcpgo.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}
