// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/spf13/cobra"

	"github.com/jllopis/concord/pkg/a2a/jsonrpc/client"
	"github.com/jllopis/concord/pkg/a2a/message"
	"github.com/jllopis/concord/pkg/agent"
)

// targetFlags select the agent a client command talks to.
type targetFlags struct {
	url     string
	agent   string
	timeout time.Duration
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.url, "url", "", "agent endpoint URL (overrides --agent)")
	cmd.Flags().StringVarP(&t.agent, "agent", "a", agent.OrchestratorSlug, "agent slug under server.base_url")
	cmd.Flags().DurationVar(&t.timeout, "timeout", 30*time.Second, "request timeout")
}

func (t *targetFlags) client(root *rootOptions) (*client.Client, string, error) {
	url := t.url
	if url == "" {
		cfg, err := root.loadConfig(nil)
		if err != nil {
			return nil, "", err
		}
		url = agent.AgentURL(cfg.Server.BaseURL, t.agent)
	}
	return client.New(url, client.WithTimeout(t.timeout)), url, nil
}

func newSendCmd(root *rootOptions) *cobra.Command {
	var (
		target   targetFlags
		asTask   bool
		stream   bool
		getTask  string
		cancelID string
	)
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send a message to an agent",
		Long: `Send a text message to an agent and print its reply.

Examples:
  # Ask the orchestrator on localhost
  concord send "employee lookup and expense report"

  # Track the exchange as a task, streaming status updates
  concord send --agent finance --task --stream "expense report"

  # Look up or cancel a task
  concord send --agent hr --get <task-id>
  concord send --agent hr --cancel <task-id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, url, err := target.client(root)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := commandContext(cmd)
			out := cmd.OutOrStdout()

			switch {
			case getTask != "":
				task, err := c.GetTask(ctx, getTask)
				if err != nil {
					return wrapAgentError(err, url)
				}
				return printEvent(out, task, root.jsonOutput)
			case cancelID != "":
				task, err := c.CancelTask(ctx, cancelID)
				if err != nil {
					return wrapAgentError(err, url)
				}
				return printEvent(out, task, root.jsonOutput)
			}

			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return NewCLIError(wrapInput("message text is required"), `pass the text as arguments, e.g. concord send "run payroll"`)
			}
			msg := message.UserText(text)
			if asTask {
				msg = message.RequestTask(msg)
			}
			params := &a2a.MessageSendParams{Message: msg}

			if stream {
				err := c.SendStreamingMessage(ctx, params, func(ev a2a.Event) error {
					return printEvent(out, ev, root.jsonOutput)
				})
				if err != nil {
					return wrapAgentError(err, url)
				}
				return nil
			}
			reply, err := c.SendMessage(ctx, params)
			if err != nil {
				return wrapAgentError(err, url)
			}
			return printEvent(out, reply, root.jsonOutput)
		},
	}
	target.register(cmd)
	cmd.Flags().BoolVar(&asTask, "task", false, "track the exchange as a task")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream events as they are produced")
	cmd.Flags().StringVar(&getTask, "get", "", "print the task with this id")
	cmd.Flags().StringVar(&cancelID, "cancel", "", "cancel the task with this id")
	cmd.MarkFlagsMutuallyExclusive("get", "cancel", "stream")
	return cmd
}

func newCardCmd(root *rootOptions) *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Print the agent card of an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, url, err := target.client(root)
			if err != nil {
				return err
			}
			defer c.Close()
			card, err := c.AgentCard(commandContext(cmd))
			if err != nil {
				return wrapAgentError(err, url)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(card)
		},
	}
	target.register(cmd)
	return cmd
}

// printEvent renders one reply or stream event, as a JSON line when asJSON
// is set.
func printEvent(w io.Writer, ev any, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(ev)
	}
	var err error
	switch v := ev.(type) {
	case *a2a.Message:
		_, err = fmt.Fprintln(w, message.Text(v))
	case *a2a.Task:
		_, err = fmt.Fprintf(w, "task %s [%s]\n", v.ID, v.Status.State)
		if err == nil && v.Status.Message != nil {
			_, err = fmt.Fprintln(w, message.Text(v.Status.Message))
		}
	case *a2a.TaskStatusUpdateEvent:
		_, err = fmt.Fprintf(w, "task %s -> %s\n", v.TaskID, v.Status.State)
		if err == nil && v.Final && v.Status.Message != nil {
			_, err = fmt.Fprintln(w, message.Text(v.Status.Message))
		}
	default:
		_, err = fmt.Fprintf(w, "unexpected %T event\n", ev)
	}
	return err
}
