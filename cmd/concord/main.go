// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the Concord CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jllopis/concord/pkg/config"
	"github.com/jllopis/concord/pkg/telemetry"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	jsonOutput bool
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		printError(cmd.ErrOrStderr(), err, rootJSON(cmd))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "concord",
		Short: "Governed multi-agent orchestrator",
		Long: `concord serves an orchestrator agent and HR and Finance specialists over
the A2A JSON-RPC protocol. Every request is checked against a governance
policy before an agent acts, and every decision is audited.

Examples:
  # Start the agents on :3000
  concord serve

  # Ask the orchestrator
  concord send "hire an engineer and check the budget"

  # Expose the agents to an MCP host over stdio
  concord mcp`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results and errors as JSON")

	root.AddCommand(
		newServeCmd(opts),
		newSendCmd(opts),
		newCardCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the config file and applies flag overrides.
func (o *rootOptions) loadConfig(overrides map[string]any) (*config.Config, error) {
	if overrides == nil {
		overrides = map[string]any{}
	}
	if o.logLevel != "" {
		overrides["log.level"] = o.logLevel
	}
	if o.logFormat != "" {
		overrides["log.format"] = o.logFormat
	}
	cfg, err := config.LoadWithOverrides(o.configPath, overrides)
	if err != nil {
		return nil, wrapConfigError(err, o.configPath)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the concord version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "concord %s\n", version)
		},
	}
}

func rootJSON(cmd *cobra.Command) bool {
	v, err := cmd.PersistentFlags().GetBool("json")
	return err == nil && v
}

// configureLogging writes logs to stderr so stdout stays free for results.
func configureLogging(cmd *cobra.Command, cfg *config.Config) {
	telemetry.SetupLogging(cmd.ErrOrStderr(), telemetry.LogConfig{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.Telemetry.ServiceName,
		Version: version,
	})
}
